package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodyhq/melody-api/internal/middleware"
	"github.com/melodyhq/melody-api/internal/models"
	"github.com/melodyhq/melody-api/internal/service"
	"github.com/melodyhq/melody-api/pkg/response"
)

type stubLedger struct{}

func (stubLedger) ReserveSeat(ctx context.Context, classID string) error { return nil }
func (stubLedger) ReleaseSeat(ctx context.Context, classID string) error { return nil }

type stubEnrollments struct {
	created *models.Enrollment
}

func (s *stubEnrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	s.created = enrollment
	return nil
}

func (s *stubEnrollments) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (s *stubEnrollments) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if s.created != nil && s.created.ID == id {
		return &models.EnrollmentDetail{Enrollment: *s.created}, nil
	}
	return nil, sql.ErrNoRows
}

type stubSelections struct{}

func (stubSelections) FindByID(ctx context.Context, id string) (*models.Selection, error) {
	return &models.Selection{ID: id, StudentEmail: "sam@example.com", ClassID: "class-1"}, nil
}

func (stubSelections) Delete(ctx context.Context, id string) error { return nil }

func buildPurchaseRouter(enrollments *stubEnrollments, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	purchases := service.NewPurchaseService(stubLedger{}, enrollments, stubSelections{}, nil, nil, nil, nil)
	h := NewPaymentHandler(nil, purchases)

	router := gin.New()
	router.POST("/payments/purchase", func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		h.Purchase(c)
	})
	return router
}

func TestPurchaseUsesStudentFromClaims(t *testing.T) {
	enrollments := &stubEnrollments{}
	claims := &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sam@example.com"}}
	router := buildPurchaseRouter(enrollments, claims)

	// A student_email in the body must be ignored; identity comes from the
	// verified credential only.
	body, err := json.Marshal(map[string]interface{}{
		"selection_id":  "sel-1",
		"class_id":      "class-1",
		"payment_ref":   "pay_abc",
		"amount":        49.99,
		"student_email": "eve@example.com",
	})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/purchase", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusCreated, recorder.Code)
	require.NotNil(t, enrollments.created)
	assert.Equal(t, "sam@example.com", enrollments.created.StudentEmail)
}

func TestPurchaseRejectsMissingClaims(t *testing.T) {
	router := buildPurchaseRouter(&stubEnrollments{}, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/purchase", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "MISSING_CREDENTIAL", envelope.Error.Code)
}
