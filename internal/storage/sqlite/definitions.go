package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tkonate/mesuivi/internal/indicator"
)

// UpsertDefinition mirrors a loaded indicator definition into the database.
func (s *Store) UpsertDefinition(ctx context.Context, ind *indicator.Indicator) error {
	var dsJSON string
	if ind.DataSource != nil {
		raw, err := json.Marshal(ind.DataSource)
		if err != nil {
			return fmt.Errorf("failed to marshal data source: %w", err)
		}
		dsJSON = string(raw)
	}

	query := `
		INSERT INTO indicators (
			code, name, unit, frequency, method, is_automatic, is_active,
			is_cumulative, formula_key, data_source_json
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			frequency = excluded.frequency,
			method = excluded.method,
			is_automatic = excluded.is_automatic,
			is_active = excluded.is_active,
			is_cumulative = excluded.is_cumulative,
			formula_key = excluded.formula_key,
			data_source_json = excluded.data_source_json,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		ind.Code,
		ind.Name,
		ind.Unit,
		string(ind.Frequency),
		string(ind.Method),
		ind.Automatic,
		ind.Active,
		ind.Cumulative,
		ind.FormulaKey,
		dsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store indicator definition: %w", err)
	}

	return nil
}

// ListDefinitions returns all mirrored indicator definitions ordered by code.
func (s *Store) ListDefinitions(ctx context.Context) ([]indicator.Indicator, error) {
	query := `
		SELECT code, name, unit, frequency, method, is_automatic, is_active,
		       is_cumulative, formula_key, data_source_json
		FROM indicators
		ORDER BY code
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicator definitions: %w", err)
	}
	defer rows.Close()

	var defs []indicator.Indicator
	for rows.Next() {
		var ind indicator.Indicator
		var frequency, method, dsJSON string

		err := rows.Scan(
			&ind.Code,
			&ind.Name,
			&ind.Unit,
			&frequency,
			&method,
			&ind.Automatic,
			&ind.Active,
			&ind.Cumulative,
			&ind.FormulaKey,
			&dsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indicator definition: %w", err)
		}

		ind.Frequency = indicator.Frequency(frequency)
		ind.Method = indicator.Method(method)

		if dsJSON != "" {
			var ds indicator.DataSource
			if err := json.Unmarshal([]byte(dsJSON), &ds); err != nil {
				return nil, fmt.Errorf("failed to unmarshal data source for %s: %w", ind.Code, err)
			}
			ind.DataSource = &ds
		}

		defs = append(defs, ind)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return defs, nil
}
