package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tkonate/mesuivi/internal/storage"
)

// AppendLog persists one batch execution record. ExecutedAt is set here,
// once; the row is never touched again.
func (s *Store) AppendLog(ctx context.Context, log *storage.MonitoringLog) error {
	if log.ExecutedAt.IsZero() {
		log.ExecutedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO monitoring_logs (
			period_start, period_end, executed_at, executed_by,
			indicators_count, success, error_details
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		log.PeriodStart,
		log.PeriodEnd,
		log.ExecutedAt,
		log.ExecutedBy,
		log.IndicatorsCount,
		log.Success,
		log.ErrorDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to append monitoring log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read log id: %w", err)
	}
	log.ID = id

	return nil
}

// ListLogs returns the most recent batch execution records.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]storage.MonitoringLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, period_start, period_end, executed_at, executed_by,
		       indicators_count, success, error_details
		FROM monitoring_logs
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`

	var logs []storage.MonitoringLog
	if err := s.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list monitoring logs: %w", err)
	}

	return logs, nil
}
