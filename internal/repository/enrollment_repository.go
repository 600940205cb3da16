package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

// EnrollmentRepository handles the append-only enrollment ledger.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create appends an enrollment record. The unique constraint on
// payment_ref makes a retried purchase surface as a conflict, which the
// coordinator resolves as an idempotent replay.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_email, class_id, amount, payment_ref, created_at)
        VALUES (:id, :student_email, :class_id, :amount, :payment_ref, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "payment reference already recorded")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_email, class_id, amount, payment_ref, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByPaymentRef returns the enrollment recorded for a payment reference.
func (r *EnrollmentRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Enrollment, error) {
	const query = `SELECT id, student_email, class_id, amount, payment_ref, created_at FROM enrollments WHERE payment_ref = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, paymentRef); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with class context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_email, e.class_id, e.amount, e.payment_ref, e.created_at,
        c.name AS class_name, c.instructor_email
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns the student's enrollments, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentEmail string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_email, e.class_id, e.amount, e.payment_ref, e.created_at,
        c.name AS class_name, c.instructor_email
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        WHERE e.student_email = $1
        ORDER BY e.created_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentEmail); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListAll returns every enrollment with class context, for exports.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_email, e.class_id, e.amount, e.payment_ref, e.created_at,
        c.name AS class_name, c.instructor_email
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        ORDER BY e.created_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list all enrollments: %w", err)
	}
	return enrollments, nil
}
