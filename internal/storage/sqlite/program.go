package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tkonate/mesuivi/internal/storage"
)

// PaidIndividuals returns the distinct individuals holding an active
// beneficiary record whose payments match the filter, together with the
// beneficiary registration payload the formulas disaggregate on.
func (s *Store) PaidIndividuals(ctx context.Context, f storage.PaymentFilter) ([]storage.PaidIndividual, error) {
	query := `
		SELECT DISTINCT p.individual_id AS individual_id, b.json_ext AS json_ext
		FROM payments p
		JOIN beneficiaries b
		  ON b.individual_id = p.individual_id
		 AND b.is_deleted = 0
		 AND b.status = ?
		WHERE p.is_deleted = 0
		  AND p.date_due >= ? AND p.date_due <= ?
	`
	args := []interface{}{storage.BeneficiaryActive, f.DueFrom, f.DueTo}

	if f.PlanCode != "" {
		query += " AND b.plan_code = ?"
		args = append(args, f.PlanCode)
	}

	if f.PlanCodeContains != "" {
		query += " AND b.plan_code LIKE '%' || ? || '%'"
		args = append(args, f.PlanCodeContains)
	}

	if len(f.Statuses) > 0 {
		in, inArgs, err := sqlx.In(" AND p.status IN (?)", f.Statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to expand status filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	query += " ORDER BY p.individual_id"

	var paid []storage.PaidIndividual
	if err := s.db.SelectContext(ctx, &paid, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query paid individuals: %w", err)
	}

	return paid, nil
}

// ActiveBeneficiaries returns non-deleted active beneficiaries created on or
// before asOf.
func (s *Store) ActiveBeneficiaries(ctx context.Context, asOf time.Time) ([]storage.Beneficiary, error) {
	query := `
		SELECT id, individual_id, plan_code, status, json_ext, is_deleted, created_at
		FROM beneficiaries
		WHERE status = ? AND is_deleted = 0 AND created_at <= ?
		ORDER BY id
	`

	var bens []storage.Beneficiary
	if err := s.db.SelectContext(ctx, &bens, query, storage.BeneficiaryActive, asOf); err != nil {
		return nil, fmt.Errorf("failed to query active beneficiaries: %w", err)
	}

	return bens, nil
}

// ListTickets retrieves grievance tickets with optional filtering.
func (s *Store) ListTickets(ctx context.Context, f storage.TicketFilter) ([]storage.Ticket, error) {
	query := `
		SELECT id, status, date_created, json_ext
		FROM tickets
		WHERE 1=1
	`
	args := []interface{}{}

	if len(f.Statuses) > 0 {
		in, inArgs, err := sqlx.In(" AND status IN (?)", f.Statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to expand status filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	if f.CreatedFrom != nil {
		query += " AND date_created >= ?"
		args = append(args, *f.CreatedFrom)
	}

	if f.CreatedTo != nil {
		query += " AND date_created <= ?"
		args = append(args, *f.CreatedTo)
	}

	query += " ORDER BY date_created, id"

	var tickets []storage.Ticket
	if err := s.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	return tickets, nil
}

// Seeding helpers for fixtures and tests. In production these tables are
// written by the upstream program modules.

// InsertPlan stores one benefit plan.
func (s *Store) InsertPlan(ctx context.Context, code, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO benefit_plans (code, name) VALUES (?, ?)`, code, name)
	if err != nil {
		return fmt.Errorf("failed to insert benefit plan: %w", err)
	}
	return nil
}

// InsertBeneficiary stores one beneficiary record.
func (s *Store) InsertBeneficiary(ctx context.Context, b storage.Beneficiary) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if len(b.JSONExt) == 0 {
		b.JSONExt = []byte("{}")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO beneficiaries (id, individual_id, plan_code, status, json_ext, is_deleted, created_at)
		VALUES (:id, :individual_id, :plan_code, :status, :json_ext, :is_deleted, :created_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("failed to insert beneficiary: %w", err)
	}
	return nil
}

// Payment is the seed record for one benefit payment.
type Payment struct {
	ID           string    `db:"id"`
	IndividualID string    `db:"individual_id"`
	PlanCode     string    `db:"plan_code"`
	Status       string    `db:"status"`
	Amount       float64   `db:"amount"`
	DateDue      time.Time `db:"date_due"`
	Deleted      bool      `db:"is_deleted"`
}

// InsertPayment stores one payment record.
func (s *Store) InsertPayment(ctx context.Context, p Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payments (id, individual_id, plan_code, status, amount, date_due, is_deleted)
		VALUES (:id, :individual_id, :plan_code, :status, :amount, :date_due, :is_deleted)
	`
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// InsertTicket stores one grievance ticket.
func (s *Store) InsertTicket(ctx context.Context, t storage.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if len(t.JSONExt) == 0 {
		t.JSONExt = []byte("{}")
	}

	query := `
		INSERT INTO tickets (id, status, date_created, json_ext)
		VALUES (:id, :status, :date_created, :json_ext)
	`
	if _, err := s.db.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}
