package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/export"
)

type mockEnrollmentReader struct {
	details map[string]models.EnrollmentDetail
}

func (m *mockEnrollmentReader) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentReader) ListByStudent(ctx context.Context, studentEmail string) ([]models.EnrollmentDetail, error) {
	var list []models.EnrollmentDetail
	for _, d := range m.details {
		if d.StudentEmail == studentEmail {
			list = append(list, d)
		}
	}
	return list, nil
}

func (m *mockEnrollmentReader) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	var list []models.EnrollmentDetail
	for _, d := range m.details {
		list = append(list, d)
	}
	return list, nil
}

func sampleEnrollmentDetail() models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:           "enr-1",
			StudentEmail: "sam@example.com",
			ClassID:      "class-1",
			Amount:       49.99,
			PaymentRef:   "pay_abc",
			CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		ClassName:       "Jazz Piano Basics",
		InstructorEmail: "ines@example.com",
	}
}

func newTestEnrollmentService(reader enrollmentReader) *EnrollmentService {
	return NewEnrollmentService(reader, export.NewCSVExporter(), export.NewReceiptExporter(), nil)
}

func TestEnrollmentServiceExportCSV(t *testing.T) {
	reader := &mockEnrollmentReader{details: map[string]models.EnrollmentDetail{
		"enr-1": sampleEnrollmentDetail(),
	}}
	svc := newTestEnrollmentService(reader)

	payload, err := svc.ExportCSV(context.Background())
	require.NoError(t, err)

	content := string(payload)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,student_email,class_name,instructor_email,amount,payment_ref,created_at", lines[0])
	assert.Contains(t, lines[1], "enr-1")
	assert.Contains(t, lines[1], "49.99")
}

func TestEnrollmentServiceReceipt(t *testing.T) {
	reader := &mockEnrollmentReader{details: map[string]models.EnrollmentDetail{
		"enr-1": sampleEnrollmentDetail(),
	}}
	svc := newTestEnrollmentService(reader)

	payload, err := svc.Receipt(context.Background(), "sam@example.com", "enr-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestEnrollmentServiceReceiptOwnership(t *testing.T) {
	reader := &mockEnrollmentReader{details: map[string]models.EnrollmentDetail{
		"enr-1": sampleEnrollmentDetail(),
	}}
	svc := newTestEnrollmentService(reader)

	_, err := svc.Receipt(context.Background(), "eve@example.com", "enr-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestEnrollmentServiceReceiptMissing(t *testing.T) {
	svc := newTestEnrollmentService(&mockEnrollmentReader{})

	_, err := svc.Receipt(context.Background(), "sam@example.com", "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
