package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkonate/mesuivi/internal/storage"
)

const valueColumns = `id, indicator_code, period_start, period_end, region_code, gender,
	value, qualitative_value, source, validated, validated_by, created_at, updated_at`

// UpsertComputed implements the idempotent create-or-update for automatic
// computations. The insert races safely against concurrent batches: the
// unique key absorbs the conflict and the loser falls through to the
// change-detection update, which writes nothing when the resolved value,
// source, and validation state are all unchanged.
func (s *Store) UpsertComputed(ctx context.Context, v storage.ComputedValue) (bool, error) {
	now := time.Now().UTC()

	insert := `
		INSERT INTO indicator_values (
			id, indicator_code, period_start, period_end, region_code, gender,
			value, qualitative_value, source, validated, validated_by, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, 1, '', ?, ?)
		ON CONFLICT (indicator_code, period_start, period_end, region_code, gender) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, insert,
		uuid.New().String(),
		v.Key.IndicatorCode,
		v.Key.PeriodStart,
		v.Key.PeriodEnd,
		v.Key.RegionCode,
		v.Key.Gender,
		v.Value,
		v.Source,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert indicator value: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Row exists: detect an actual change before writing.
	existing, err := s.GetValue(ctx, v.Key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("indicator value vanished during upsert for %s", v.Key.IndicatorCode)
	}

	if !valueChanged(existing, v) {
		return false, nil
	}

	update := `
		UPDATE indicator_values
		SET value = ?, qualitative_value = '', source = ?, validated = 1, updated_at = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, update, v.Value, v.Source, now, existing.ID); err != nil {
		return false, fmt.Errorf("failed to update indicator value: %w", err)
	}

	return true, nil
}

// valueChanged reports whether the resolved computation differs from the
// stored row in value, source, or validation state.
func valueChanged(existing *storage.IndicatorValue, v storage.ComputedValue) bool {
	switch {
	case existing.Value == nil && v.Value != nil,
		existing.Value != nil && v.Value == nil:
		return true
	case existing.Value != nil && v.Value != nil && *existing.Value != *v.Value:
		return true
	}
	if existing.Source != v.Source {
		return true
	}
	if !existing.Validated {
		return true
	}
	return false
}

// GetValue fetches the value stored under a key, or nil when absent.
func (s *Store) GetValue(ctx context.Context, key storage.ValueKey) (*storage.IndicatorValue, error) {
	query := `
		SELECT ` + valueColumns + `
		FROM indicator_values
		WHERE indicator_code = ? AND period_start = ? AND period_end = ?
		  AND region_code = ? AND gender = ?
	`

	var value storage.IndicatorValue
	err := s.db.GetContext(ctx, &value, query,
		key.IndicatorCode, key.PeriodStart, key.PeriodEnd, key.RegionCode, key.Gender)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indicator value: %w", err)
	}

	return &value, nil
}

// ListValues retrieves stored values with optional filtering.
func (s *Store) ListValues(ctx context.Context, f storage.ValueFilter) ([]storage.IndicatorValue, error) {
	query := `
		SELECT ` + valueColumns + `
		FROM indicator_values
		WHERE 1=1
	`
	args := []interface{}{}

	if f.IndicatorCode != "" {
		query += " AND indicator_code = ?"
		args = append(args, f.IndicatorCode)
	}

	if f.PeriodStart != nil {
		query += " AND period_start = ?"
		args = append(args, *f.PeriodStart)
	}

	if f.PeriodEnd != nil {
		query += " AND period_end = ?"
		args = append(args, *f.PeriodEnd)
	}

	query += " ORDER BY indicator_code, period_start, region_code, gender"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var values []storage.IndicatorValue
	if err := s.db.SelectContext(ctx, &values, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list indicator values: %w", err)
	}

	return values, nil
}

// InsertManual stores a manually entered value. Uniqueness violations come
// back as errors; the manual-entry service rejects duplicates before this
// point and the constraint is the backstop.
func (s *Store) InsertManual(ctx context.Context, v storage.IndicatorValue) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	query := `
		INSERT INTO indicator_values (
			id, indicator_code, period_start, period_end, region_code, gender,
			value, qualitative_value, source, validated, validated_by, created_at, updated_at
		) VALUES (
			:id, :indicator_code, :period_start, :period_end, :region_code, :gender,
			:value, :qualitative_value, :source, :validated, :validated_by, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("failed to insert manual value: %w", err)
	}

	return nil
}

// LastNumericValue returns the most recently recorded numeric value for an
// indicator, or nil when none exists.
func (s *Store) LastNumericValue(ctx context.Context, indicatorCode string) (*float64, error) {
	query := `
		SELECT value FROM indicator_values
		WHERE indicator_code = ? AND value IS NOT NULL
		ORDER BY period_end DESC, updated_at DESC
		LIMIT 1
	`

	var value float64
	err := s.db.GetContext(ctx, &value, query, indicatorCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last numeric value: %w", err)
	}

	return &value, nil
}

// MarkValidated flags a stored value as validated by the given actor.
func (s *Store) MarkValidated(ctx context.Context, id, validatedBy string) error {
	query := `
		UPDATE indicator_values
		SET validated = 1, validated_by = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, validatedBy, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark value validated: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("indicator value not found: %s", id)
	}

	return nil
}
