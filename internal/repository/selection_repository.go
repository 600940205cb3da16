package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// SelectionRepository handles persistence of pending selections.
type SelectionRepository struct {
	db *sqlx.DB
}

// NewSelectionRepository constructs the repository.
func NewSelectionRepository(db *sqlx.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Create persists a new pending selection. The unique index on
// (student_email, class_id) keeps duplicate selections out; a violation
// surfaces as a conflict instead of a silent success.
func (r *SelectionRepository) Create(ctx context.Context, selection *models.Selection) error {
	if selection.ID == "" {
		selection.ID = uuid.NewString()
	}
	if selection.CreatedAt.IsZero() {
		selection.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO selections (id, student_email, class_id, created_at)
        VALUES (:id, :student_email, :class_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, selection); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "class already selected")
		}
		return fmt.Errorf("create selection: %w", err)
	}
	return nil
}

// FindByID returns a selection by its ID.
func (r *SelectionRepository) FindByID(ctx context.Context, id string) (*models.Selection, error) {
	const query = `SELECT id, student_email, class_id, created_at FROM selections WHERE id = $1`
	var selection models.Selection
	if err := r.db.GetContext(ctx, &selection, query, id); err != nil {
		return nil, err
	}
	return &selection, nil
}

// ListByStudent returns the student's pending selections with class context.
func (r *SelectionRepository) ListByStudent(ctx context.Context, studentEmail string) ([]models.SelectionDetail, error) {
	const query = `SELECT s.id, s.student_email, s.class_id, s.created_at,
        c.name AS class_name, c.image_url, c.price
        FROM selections s
        JOIN classes c ON c.id = s.class_id
        WHERE s.student_email = $1
        ORDER BY s.created_at DESC`
	var selections []models.SelectionDetail
	if err := r.db.SelectContext(ctx, &selections, query, studentEmail); err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	return selections, nil
}

// Delete removes a selection. A missing row reports sql.ErrNoRows so
// callers can distinguish the already-deleted case.
func (r *SelectionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM selections WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
