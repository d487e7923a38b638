package storage

import (
	"context"
	"time"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/payload"
)

// SourceSystem is the provenance tag written by automatic computations.
const SourceSystem = "SYSTEM"

// ValueKey is the idempotency key for indicator values: at most one row may
// exist per (indicator, period, region, gender). Region and gender are empty
// strings, not NULLs, so the storage-level unique constraint holds.
type ValueKey struct {
	IndicatorCode string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	RegionCode    string
	Gender        string
}

// IndicatorValue is one observation for an indicator over a period.
// Exactly one of Value and QualitativeValue is set; the manual-entry
// service enforces that before anything reaches the store.
type IndicatorValue struct {
	ID               string    `db:"id" csv:"-"`
	IndicatorCode    string    `db:"indicator_code" csv:"indicator_code"`
	PeriodStart      time.Time `db:"period_start" csv:"period_start"`
	PeriodEnd        time.Time `db:"period_end" csv:"period_end"`
	RegionCode       string    `db:"region_code" csv:"region_code"`
	Gender           string    `db:"gender" csv:"gender"`
	Value            *float64  `db:"value" csv:"value"`
	QualitativeValue string    `db:"qualitative_value" csv:"qualitative_value"`
	Source           string    `db:"source" csv:"source"`
	Validated        bool      `db:"validated" csv:"validated"`
	ValidatedBy      string    `db:"validated_by" csv:"validated_by"`
	CreatedAt        time.Time `db:"created_at" csv:"-"`
	UpdatedAt        time.Time `db:"updated_at" csv:"-"`
}

// Key returns the uniqueness key of the value.
func (v IndicatorValue) Key() ValueKey {
	return ValueKey{
		IndicatorCode: v.IndicatorCode,
		PeriodStart:   v.PeriodStart,
		PeriodEnd:     v.PeriodEnd,
		RegionCode:    v.RegionCode,
		Gender:        v.Gender,
	}
}

// ComputedValue is what an automatic computation hands to the upsert.
type ComputedValue struct {
	Key    ValueKey
	Value  *float64
	Source string
}

// MonitoringLog is the audit record of one batch run. It is written once,
// after the run finishes, and never mutated afterward.
type MonitoringLog struct {
	ID              int64     `db:"id"`
	PeriodStart     time.Time `db:"period_start"`
	PeriodEnd       time.Time `db:"period_end"`
	ExecutedAt      time.Time `db:"executed_at"`
	ExecutedBy      string    `db:"executed_by"`
	IndicatorsCount int       `db:"indicators_count"`
	Success         bool      `db:"success"`
	ErrorDetails    string    `db:"error_details"`
}

// Submission is a mapped field-survey record, produced upstream and consumed
// read-only by custom formulas.
type Submission struct {
	ID             string    `db:"id"`
	FormType       string    `db:"form_type"`
	SubmissionUUID string    `db:"submission_uuid"`
	SubmittedAt    time.Time `db:"submitted_at"`
	BeneficiaryID  string    `db:"beneficiary_id"`
	LocationCode   string    `db:"location_code"`
	Period         string    `db:"period"`
	JSONExt        []byte    `db:"json_ext"`
}

// Ext returns the decoded survey payload.
func (s Submission) Ext() payload.Payload {
	return payload.Decode(s.JSONExt)
}

// Beneficiary is an enrolled program participant.
type Beneficiary struct {
	ID           string    `db:"id"`
	IndividualID string    `db:"individual_id"`
	PlanCode     string    `db:"plan_code"`
	Status       string    `db:"status"`
	JSONExt      []byte    `db:"json_ext"`
	Deleted      bool      `db:"is_deleted"`
	CreatedAt    time.Time `db:"created_at"`
}

// Ext returns the decoded registration payload.
func (b Beneficiary) Ext() payload.Payload {
	return payload.Decode(b.JSONExt)
}

// PaidIndividual is one distinct individual that received a payment,
// together with the registration payload of their beneficiary record.
type PaidIndividual struct {
	IndividualID string `db:"individual_id"`
	JSONExt      []byte `db:"json_ext"`
}

// Ext returns the decoded registration payload.
func (p PaidIndividual) Ext() payload.Payload {
	return payload.Decode(p.JSONExt)
}

// Ticket is a grievance ticket.
type Ticket struct {
	ID          string    `db:"id"`
	Status      string    `db:"status"`
	DateCreated time.Time `db:"date_created"`
	JSONExt     []byte    `db:"json_ext"`
}

// Ext returns the decoded ticket payload.
func (t Ticket) Ext() payload.Payload {
	return payload.Decode(t.JSONExt)
}

// SubmissionFilter selects survey submissions.
type SubmissionFilter struct {
	FormType      string
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
}

// PaymentFilter selects benefit payments by plan and status over a due-date
// range. PlanCodeContains matches plan codes by substring (the TMU plans are
// identified that way); PlanCode matches exactly. Both empty means any plan.
type PaymentFilter struct {
	PlanCode         string
	PlanCodeContains string
	Statuses         []string
	DueFrom          time.Time
	DueTo            time.Time
}

// TicketFilter selects grievance tickets.
type TicketFilter struct {
	Statuses    []string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ValueFilter selects stored indicator values for listing and export.
type ValueFilter struct {
	IndicatorCode string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	Limit         int
}

// ValueStore is the idempotent sink for indicator values.
type ValueStore interface {
	// UpsertComputed creates or updates the value for its key. It reports
	// whether a row was actually written: identical resolved values result
	// in no write at all.
	UpsertComputed(ctx context.Context, v ComputedValue) (bool, error)

	// GetValue fetches the value for a key, or nil when absent.
	GetValue(ctx context.Context, key ValueKey) (*IndicatorValue, error)

	// ListValues returns stored values matching the filter.
	ListValues(ctx context.Context, f ValueFilter) ([]IndicatorValue, error)

	// InsertManual stores a manually entered value. The unique constraint
	// is the backstop against concurrent duplicates.
	InsertManual(ctx context.Context, v IndicatorValue) error

	// LastNumericValue returns the most recently recorded numeric value for
	// an indicator, or nil when none exists.
	LastNumericValue(ctx context.Context, indicatorCode string) (*float64, error)

	// MarkValidated flags a value as validated by the given actor.
	MarkValidated(ctx context.Context, id, validatedBy string) error
}

// LogStore persists batch execution audit records.
type LogStore interface {
	AppendLog(ctx context.Context, log *MonitoringLog) error
	ListLogs(ctx context.Context, limit int) ([]MonitoringLog, error)
}

// SubmissionSource is the read-only survey submission collection.
type SubmissionSource interface {
	ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error)
}

// ProgramSource is the read-only view over the transactional program data
// (beneficiaries, payments, tickets) that custom formulas join across.
type ProgramSource interface {
	// PaidIndividuals returns the distinct individuals with at least one
	// payment matching the filter, with their registration payloads.
	PaidIndividuals(ctx context.Context, f PaymentFilter) ([]PaidIndividual, error)

	// ActiveBeneficiaries returns non-deleted active beneficiaries created
	// on or before asOf.
	ActiveBeneficiaries(ctx context.Context, asOf time.Time) ([]Beneficiary, error)

	// ListTickets returns grievance tickets matching the filter.
	ListTickets(ctx context.Context, f TicketFilter) ([]Ticket, error)
}

// DefinitionStore mirrors loaded indicator definitions into the database so
// the reporting side can join values against their definitions.
type DefinitionStore interface {
	UpsertDefinition(ctx context.Context, ind *indicator.Indicator) error
	ListDefinitions(ctx context.Context) ([]indicator.Indicator, error)
}
