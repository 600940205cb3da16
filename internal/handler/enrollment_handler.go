package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment read surface.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Export godoc
// @Summary Export all enrollments as CSV
// @Tags Enrollments
// @Produce text/csv
// @Success 200 {string} string "CSV document"
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	payload, err := h.enrollments.ExportCSV(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("enrollments-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// Receipt godoc
// @Summary Download an enrollment receipt
// @Tags Enrollments
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Success 200 {string} string "PDF document"
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/receipt [get]
func (h *EnrollmentHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	payload, err := h.enrollments.Receipt(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "receipt-"+c.Param("id")+".pdf"))
	c.Data(http.StatusOK, "application/pdf", payload)
}
