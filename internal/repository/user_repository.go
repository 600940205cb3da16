package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/melodyhq/melody-api/internal/models"
)

// UserRepository handles persistence of identity records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts the identity on first sign-in and refreshes the
// display name on subsequent sign-ins. The role column is never touched
// here; promotions go through UpdateRole only.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUnassigned
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	const query = `INSERT INTO users (email, full_name, role, created_at, updated_at)
        VALUES (:email, :full_name, :role, :created_at, :updated_at)
        ON CONFLICT (email) DO UPDATE SET full_name = EXCLUDED.full_name, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// FindByEmail returns a user by its email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT email, full_name, role, created_at, updated_at FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindRole returns only the role column for the given subject. Used by
// the authorization middleware on every role-gated request.
func (r *UserRepository) FindRole(ctx context.Context, email string) (models.UserRole, error) {
	const query = `SELECT role FROM users WHERE email = $1`
	var role models.UserRole
	if err := r.db.GetContext(ctx, &role, query, email); err != nil {
		return "", err
	}
	return role, nil
}

// UpdateRole assigns a role to a subject.
func (r *UserRepository) UpdateRole(ctx context.Context, email string, role models.UserRole) error {
	const query = `UPDATE users SET role = $2, updated_at = $3 WHERE email = $1`
	res, err := r.db.ExecContext(ctx, query, email, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns users filtered by the provided criteria.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := `FROM users`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR full_name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"email":      "email",
		"full_name":  "full_name",
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

	query := fmt.Sprintf(`SELECT email, full_name, role, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		base+clause, orderBy, order, size, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}
