package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xpmail/formhub/internal/formdef"
	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/jobs"
	"github.com/xpmail/formhub/internal/models"
)

// OwnerCreatedIndex is the composite index backing ListByOwner.
const OwnerCreatedIndex = "forms_owner_created_idx"

// SQLSTATE codes meaning the relation, column or index a query depends on does not exist.
const (
	sqlStateUndefinedTable  = "42P01"
	sqlStateUndefinedColumn = "42703"
	sqlStateUndefinedObject = "42704"
)

const formColumns = `id, owner_id, title, questions, background_image_url,
	notification_destination, receiver_email, webhook_url, created_at, updated_at`

// FormsRepository handles data access for form definitions.
type FormsRepository struct {
	db     *pgxpool.Pool
	reaper jobs.TxInserter
}

// NewFormsRepository creates a new forms repository.
func NewFormsRepository(db *pgxpool.Pool) *FormsRepository {
	return &FormsRepository{db: db}
}

// SetReapInserter makes Delete enqueue a response_reap job in the delete transaction.
// Without it, Delete removes the form's responses inline.
func (r *FormsRepository) SetReapInserter(inserter jobs.TxInserter) {
	r.reaper = inserter
}

// Create inserts a new form owned by ownerID. content must already be normalized.
func (r *FormsRepository) Create(ctx context.Context, ownerID string, content *models.FormContent) (*models.Form, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate form id: %w", err)
	}

	query := `
		INSERT INTO forms (
			id, owner_id, title, questions, background_image_url,
			notification_destination, receiver_email, webhook_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + formColumns

	form, err := scanForm(r.db.QueryRow(ctx, query,
		id, ownerID, content.Title, questionsParam(content.Questions), content.BackgroundImageURL,
		string(content.NotificationDestination), content.ReceiverEmail, content.WebhookURL,
	))
	if err != nil {
		return nil, huberrors.NewStoreWriteError("create form", err)
	}

	return form, nil
}

// GetByID retrieves a single form. Question and option ids missing from older records are backfilled.
func (r *FormsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1`

	form, err := scanForm(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("form", "form not found")
		}

		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	return form, nil
}

// buildOwnerListQuery builds the newest-first listing query for an owner.
func buildOwnerListQuery(ownerID string, filters *models.ListFormsFilters) (string, []any) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE owner_id = $1 ORDER BY created_at DESC`
	args := []any{ownerID}
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

// ListByOwner returns the owner's forms, newest first. A missing relation or index
// surfaces as huberrors.IndexMissingError carrying the database message.
func (r *FormsRepository) ListByOwner(ctx context.Context, ownerID string, filters *models.ListFormsFilters) ([]models.Form, error) {
	query, args := buildOwnerListQuery(ownerID, filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapListError(err)
	}
	defer rows.Close()

	forms := []models.Form{}

	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}

		forms = append(forms, *form)
	}

	if err := rows.Err(); err != nil {
		return nil, mapListError(err)
	}

	return forms, nil
}

// CountByOwner returns how many forms the owner has.
func (r *FormsRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM forms WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, mapListError(err)
	}

	return count, nil
}

// ListIDsByOwner returns the ids of every form the owner has, newest first.
func (r *FormsRepository) ListIDsByOwner(ctx context.Context, ownerID string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM forms WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, mapListError(err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, mapListError(err)
	}

	return ids, nil
}

// Update replaces the editable content of a form and stamps updated_at.
func (r *FormsRepository) Update(ctx context.Context, id uuid.UUID, content *models.FormContent) (*models.Form, error) {
	query := `
		UPDATE forms
		SET title = $1, questions = $2, background_image_url = $3,
			notification_destination = $4, receiver_email = $5, webhook_url = $6,
			updated_at = $7
		WHERE id = $8
		RETURNING ` + formColumns

	form, err := scanForm(r.db.QueryRow(ctx, query,
		content.Title, questionsParam(content.Questions), content.BackgroundImageURL,
		string(content.NotificationDestination), content.ReceiverEmail, content.WebhookURL,
		time.Now().UTC(), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("form", "form not found")
		}

		return nil, huberrors.NewStoreWriteError("update form", err)
	}

	return form, nil
}

// Delete removes the form. Its responses are reaped by a job committed in the same transaction,
// or deleted inline when no job inserter is configured.
func (r *FormsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return huberrors.NewStoreWriteError("delete form", err)
	}

	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "rollback form delete", "form_id", id, "error", rbErr)
		}
	}()

	result, err := tx.Exec(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return huberrors.NewStoreWriteError("delete form", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("form", "form not found")
	}

	if r.reaper != nil {
		if _, err := r.reaper.InsertTx(ctx, tx, jobs.ResponseReapArgs{FormID: id}, nil); err != nil {
			return huberrors.NewStoreWriteError("enqueue response reap", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM responses WHERE form_id = $1`, id); err != nil {
			return huberrors.NewStoreWriteError("delete form responses", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return huberrors.NewStoreWriteError("delete form", err)
	}

	return nil
}

// VerifyIndexes reports huberrors.IndexMissingError when the owner listing index is absent.
func (r *FormsRepository) VerifyIndexes(ctx context.Context) error {
	var exists bool

	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'forms' AND indexname = $1)`,
		OwnerCreatedIndex,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check indexes: %w", err)
	}

	if !exists {
		return huberrors.NewIndexMissingError(OwnerCreatedIndex,
			"create it with: CREATE INDEX "+OwnerCreatedIndex+" ON forms (owner_id, created_at DESC)")
	}

	return nil
}

// mapListError distinguishes a missing relation or index from other query failures.
func mapListError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUndefinedTable, sqlStateUndefinedColumn, sqlStateUndefinedObject:
			return huberrors.NewIndexMissingError(OwnerCreatedIndex, pgErr.Message)
		}
	}

	return fmt.Errorf("failed to list forms: %w", err)
}

// questionsParam keeps an empty question list from being stored as JSON null.
func questionsParam(qs []models.Question) []models.Question {
	if qs == nil {
		return []models.Question{}
	}

	return qs
}

func scanForm(row pgx.Row) (*models.Form, error) {
	var (
		form models.Form
		dest string
	)

	err := row.Scan(
		&form.ID, &form.OwnerID, &form.Title, &form.Questions, &form.BackgroundImageURL,
		&dest, &form.ReceiverEmail, &form.WebhookURL, &form.CreatedAt, &form.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	form.NotificationDestination = models.NotificationDestination(dest)
	formdef.BackfillIDs(&form.FormContent)

	return &form, nil
}
