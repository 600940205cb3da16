package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

// ClassRepository handles persistence of class offerings and acts as
// the capacity ledger. Seat accounting runs through single-statement
// conditional updates so concurrent purchases cannot oversell.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create persists a new class offering in PENDING state.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.Status == "" {
		class.Status = models.ClassStatusPending
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, instructor_email, name, image_url, capacity, enrolled_count, status, feedback, price, created_at, updated_at)
        VALUES (:id, :instructor_email, :name, :image_url, :capacity, :enrolled_count, :status, :feedback, :price, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, instructor_email, name, image_url, capacity, enrolled_count, status, feedback, price, created_at, updated_at
        FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := `FROM classes`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"price":      "price",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, instructor_email, name, image_url, capacity, enrolled_count, status, feedback, price, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// ListByInstructor returns all classes owned by the given instructor.
func (r *ClassRepository) ListByInstructor(ctx context.Context, instructorEmail string) ([]models.Class, error) {
	const query = `SELECT id, instructor_email, name, image_url, capacity, enrolled_count, status, feedback, price, created_at, updated_at
        FROM classes WHERE instructor_email = $1 ORDER BY created_at DESC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, instructorEmail); err != nil {
		return nil, fmt.Errorf("list instructor classes: %w", err)
	}
	return classes, nil
}

// UpdateStatus transitions a class through the moderation workflow.
func (r *ClassRepository) UpdateStatus(ctx context.Context, id string, status models.ClassStatus, feedback *string) error {
	const query = `UPDATE classes SET status = $2, feedback = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, feedback, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReserveSeat atomically claims one seat. The guard and the increment
// run in a single statement: two racers for the last seat resolve to
// exactly one success.
func (r *ClassRepository) ReserveSeat(ctx context.Context, id string) error {
	const query = `UPDATE classes SET enrolled_count = enrolled_count + 1, updated_at = $2
        WHERE id = $1 AND enrolled_count < capacity`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	if rows == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return fmt.Errorf("reserve seat: %w", err)
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.ErrSoldOut
	}
	return nil
}

// ReleaseSeat is the compensating action for a reserved seat. The
// floor-at-zero guard keeps a duplicate release from going negative.
func (r *ClassRepository) ReleaseSeat(ctx context.Context, id string) error {
	const query = `UPDATE classes SET enrolled_count = enrolled_count - 1, updated_at = $2
        WHERE id = $1 AND enrolled_count > 0`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// UpdateCapacity changes the seat capacity. The condition rejects any
// value below the current enrollment, leaving capacity unchanged.
func (r *ClassRepository) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	const query = `UPDATE classes SET capacity = $2, updated_at = $3
        WHERE id = $1 AND enrolled_count <= $2`
	res, err := r.db.ExecContext(ctx, query, id, capacity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class capacity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update class capacity: %w", err)
	}
	if rows == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return fmt.Errorf("update class capacity: %w", err)
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.ErrCapacityBelowEnrollment
	}
	return nil
}

func (r *ClassRepository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	if err := r.db.GetContext(ctx, &one, `SELECT 1 FROM classes WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
