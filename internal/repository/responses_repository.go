package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

// ResponsesRepository handles data access for form responses. Responses are append-only;
// the only delete path is reaping the responses of a deleted form.
type ResponsesRepository struct {
	db *pgxpool.Pool
}

// NewResponsesRepository creates a new responses repository.
func NewResponsesRepository(db *pgxpool.Pool) *ResponsesRepository {
	return &ResponsesRepository{db: db}
}

// Append stores a response. The id and submitted_at are assigned here.
// It returns huberrors.ErrFormNotFound when the form is gone. The form row is key-share locked for the
// insert, so a concurrent delete either waits for it (and reaps the response) or wins and nothing is stored.
func (r *ResponsesRepository) Append(ctx context.Context, formID uuid.UUID, answers models.Answers) (*models.Response, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate response id: %w", err)
	}

	if answers == nil {
		answers = models.Answers{}
	}

	query := `
		INSERT INTO responses (id, form_id, answers)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM forms WHERE id = $2 FOR KEY SHARE)
		RETURNING id, form_id, answers, submitted_at
	`

	var resp models.Response

	err = r.db.QueryRow(ctx, query, id, formID, answers).Scan(
		&resp.ID, &resp.FormID, &resp.Answers, &resp.SubmittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, huberrors.ErrFormNotFound
	}

	if err != nil {
		return nil, huberrors.NewStoreWriteError("append response", err)
	}

	return &resp, nil
}

// CountByForm returns the number of responses stored for the form.
func (r *ResponsesRepository) CountByForm(ctx context.Context, formID uuid.UUID) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM responses WHERE form_id = $1`, formID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}

	return count, nil
}

// buildFormResponsesQuery builds the newest-first listing query for a form.
func buildFormResponsesQuery(formID uuid.UUID, filters *models.ListResponsesFilters) (string, []any) {
	query := `SELECT id, form_id, answers, submitted_at FROM responses WHERE form_id = $1 ORDER BY submitted_at DESC`
	args := []any{formID}
	argCount := 2

	if filters != nil && filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filters.Limit)
		argCount++
	}

	if filters != nil && filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filters.Offset)
	}

	return query, args
}

// ListByForm returns the form's responses, newest first.
func (r *ResponsesRepository) ListByForm(ctx context.Context, formID uuid.UUID, filters *models.ListResponsesFilters) ([]models.Response, error) {
	query, args := buildFormResponsesQuery(formID, filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	responses := []models.Response{}

	for rows.Next() {
		var resp models.Response
		if err := rows.Scan(&resp.ID, &resp.FormID, &resp.Answers, &resp.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		responses = append(responses, resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}

	return responses, nil
}

// DeleteBatchByForm deletes up to limit responses of the form and returns how many were removed.
func (r *ResponsesRepository) DeleteBatchByForm(ctx context.Context, formID uuid.UUID, limit int) (int64, error) {
	query := `
		DELETE FROM responses
		WHERE id IN (SELECT id FROM responses WHERE form_id = $1 LIMIT $2)
	`

	result, err := r.db.Exec(ctx, query, formID, limit)
	if err != nil {
		return 0, huberrors.NewStoreWriteError("reap responses", err)
	}

	return result.RowsAffected(), nil
}
