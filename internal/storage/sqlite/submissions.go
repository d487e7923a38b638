package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tkonate/mesuivi/internal/storage"
)

// ListSubmissions retrieves survey submissions with optional filtering.
func (s *Store) ListSubmissions(ctx context.Context, f storage.SubmissionFilter) ([]storage.Submission, error) {
	query := `
		SELECT id, form_type, submission_uuid, submitted_at,
		       beneficiary_id, location_code, period, json_ext
		FROM submissions
		WHERE 1=1
	`
	args := []interface{}{}

	if f.FormType != "" {
		query += " AND form_type = ?"
		args = append(args, f.FormType)
	}

	if f.SubmittedFrom != nil {
		query += " AND submitted_at >= ?"
		args = append(args, *f.SubmittedFrom)
	}

	if f.SubmittedTo != nil {
		query += " AND submitted_at <= ?"
		args = append(args, *f.SubmittedTo)
	}

	query += " ORDER BY submitted_at DESC, id"

	var subs []storage.Submission
	if err := s.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return subs, nil
}

// InsertSubmission stores one mapped submission. The upstream synchronizer
// owns this write path in production; fixtures and tests use it here.
func (s *Store) InsertSubmission(ctx context.Context, sub storage.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.SubmissionUUID == "" {
		sub.SubmissionUUID = uuid.New().String()
	}
	if len(sub.JSONExt) == 0 {
		sub.JSONExt = []byte("{}")
	}

	query := `
		INSERT INTO submissions (
			id, form_type, submission_uuid, submitted_at,
			beneficiary_id, location_code, period, json_ext
		) VALUES (
			:id, :form_type, :submission_uuid, :submitted_at,
			:beneficiary_id, :location_code, :period, :json_ext
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	return nil
}
