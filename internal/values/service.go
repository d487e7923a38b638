// Package values implements the manual indicator-value entry path: data
// entered by program staff rather than computed, validated synchronously
// before anything is persisted.
package values

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tkonate/mesuivi/internal/indicator"
	"github.com/tkonate/mesuivi/internal/storage"
)

// SourceManual is the provenance tag for manually entered values.
const SourceManual = "MANUAL"

// ValidationError carries all rejection reasons for one manual entry.
// Nothing is written when it is returned.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid manual entry: " + strings.Join(e.Reasons, "; ")
}

// Entry is one manual observation to record.
type Entry struct {
	IndicatorCode    string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	RegionCode       string
	Gender           string
	Value            *float64
	QualitativeValue string
	Source           string
}

// Service validates and persists manual entries.
type Service struct {
	store storage.ValueStore
	defs  map[string]indicator.Indicator
}

// NewService creates a manual-entry service over the given value store and
// the loaded indicator definitions.
func NewService(store storage.ValueStore, defs []indicator.Indicator) *Service {
	byCode := make(map[string]indicator.Indicator, len(defs))
	for _, d := range defs {
		byCode[d.Code] = d
	}
	return &Service{store: store, defs: byCode}
}

// Create validates and stores one manual entry. All validation failures are
// collected into a single *ValidationError; on any failure no write occurs.
// Manual entries start unvalidated and are confirmed through Validate.
func (s *Service) Create(ctx context.Context, e Entry) (*storage.IndicatorValue, error) {
	var reasons []string

	def, known := s.defs[e.IndicatorCode]
	if !known {
		reasons = append(reasons, fmt.Sprintf("unknown indicator %q", e.IndicatorCode))
	}

	if e.PeriodStart.After(e.PeriodEnd) {
		reasons = append(reasons, "period_start must not be after period_end")
	}

	// Exactly one of numeric and qualitative must be provided.
	hasValue := e.Value != nil
	hasQualitative := e.QualitativeValue != ""
	switch {
	case !hasValue && !hasQualitative:
		reasons = append(reasons, "either a numeric value or a qualitative value is required")
	case hasValue && hasQualitative:
		reasons = append(reasons, "numeric and qualitative values are mutually exclusive")
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	key := storage.ValueKey{
		IndicatorCode: e.IndicatorCode,
		PeriodStart:   e.PeriodStart,
		PeriodEnd:     e.PeriodEnd,
		RegionCode:    e.RegionCode,
		Gender:        e.Gender,
	}
	existing, err := s.store.GetValue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check existing value: %w", err)
	}
	if existing != nil {
		reasons = append(reasons,
			"a value is already recorded for this indicator, period, and disaggregation")
	}

	// Cumulative indicators must never regress below their last recorded
	// value. The policy is per indicator, not global.
	if known && def.Cumulative && hasValue {
		last, err := s.store.LastNumericValue(ctx, e.IndicatorCode)
		if err != nil {
			return nil, fmt.Errorf("check last recorded value: %w", err)
		}
		if last != nil && *e.Value < *last {
			reasons = append(reasons, fmt.Sprintf(
				"cumulative indicator cannot regress: new value %.2f is below last recorded %.2f",
				*e.Value, *last))
		}
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	source := e.Source
	if source == "" {
		source = SourceManual
	}

	row := storage.IndicatorValue{
		IndicatorCode:    e.IndicatorCode,
		PeriodStart:      e.PeriodStart,
		PeriodEnd:        e.PeriodEnd,
		RegionCode:       e.RegionCode,
		Gender:           e.Gender,
		Value:            e.Value,
		QualitativeValue: e.QualitativeValue,
		Source:           source,
		Validated:        false,
	}

	if err := s.store.InsertManual(ctx, row); err != nil {
		return nil, fmt.Errorf("store manual value: %w", err)
	}

	stored, err := s.store.GetValue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read back manual value: %w", err)
	}

	return stored, nil
}

// Validate marks a stored value as reviewed by the given actor.
func (s *Service) Validate(ctx context.Context, id, validatedBy string) error {
	if id == "" {
		return &ValidationError{Reasons: []string{"missing value id"}}
	}
	return s.store.MarkValidated(ctx, id, validatedBy)
}
