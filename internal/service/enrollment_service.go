package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/export"
)

type enrollmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentEmail string) ([]models.EnrollmentDetail, error)
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
}

// EnrollmentService exposes the read side of the enrollment ledger:
// student history, admin exports and receipts. Writes only happen
// through the purchase coordinator.
type EnrollmentService struct {
	repo     enrollmentReader
	csv      *export.CSVExporter
	receipts *export.ReceiptExporter
	logger   *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentReader, csv *export.CSVExporter, receipts *export.ReceiptExporter, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, csv: csv, receipts: receipts, logger: logger}
}

// ListByStudent returns the student's purchase history.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentEmail string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentEmail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ExportCSV renders every enrollment as a CSV document for admins.
func (s *EnrollmentService) ExportCSV(ctx context.Context) ([]byte, error) {
	enrollments, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load enrollments")
	}

	dataset := export.Dataset{
		Headers: []string{"id", "student_email", "class_name", "instructor_email", "amount", "payment_ref", "created_at"},
	}
	for _, e := range enrollments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":               e.ID,
			"student_email":    e.StudentEmail,
			"class_name":       e.ClassName,
			"instructor_email": e.InstructorEmail,
			"amount":           fmt.Sprintf("%.2f", e.Amount),
			"payment_ref":      e.PaymentRef,
			"created_at":       e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return payload, nil
}

// Receipt renders a PDF receipt for an enrollment owned by the caller.
func (s *EnrollmentService) Receipt(ctx context.Context, studentEmail, enrollmentID string) ([]byte, error) {
	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load enrollment")
	}
	if detail.StudentEmail != studentEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	payload, err := s.receipts.Render(export.Receipt{
		EnrollmentID: detail.ID,
		StudentEmail: detail.StudentEmail,
		ClassName:    detail.ClassName,
		Instructor:   detail.InstructorEmail,
		Amount:       detail.Amount,
		PaymentRef:   detail.PaymentRef,
		PurchasedAt:  detail.CreatedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return payload, nil
}
