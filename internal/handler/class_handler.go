package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/models"
	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// ClassHandler exposes class lifecycle endpoints.
type ClassHandler struct {
	classes *service.ClassService
	users   *service.UserService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(classes *service.ClassService, users *service.UserService) *ClassHandler {
	return &ClassHandler{classes: classes, users: users}
}

// Create godoc
// @Summary Publish class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}
	class, err := h.classes.Create(c.Request.Context(), claims.Subject, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Catalog godoc
// @Summary Browse approved classes
// @Tags Classes
// @Produce json
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) Catalog(c *gin.Context) {
	classes, pagination, err := h.classes.Catalog(c.Request.Context(), classFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// ListAll godoc
// @Summary List all classes regardless of status
// @Tags Classes
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes/all [get]
func (h *ClassHandler) ListAll(c *gin.Context) {
	filter := classFilterFromQuery(c)
	if status := c.Query("status"); status != "" {
		s := models.ClassStatus(status)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
			return
		}
		filter.Status = s
	}
	classes, pagination, err := h.classes.ListAll(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Review godoc
// @Summary Approve or deny a pending class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.ReviewClassRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/status [patch]
func (h *ClassHandler) Review(c *gin.Context) {
	var req service.ReviewClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	class, err := h.classes.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// UpdateCapacity godoc
// @Summary Resize class capacity
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.UpdateCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/capacity [patch]
func (h *ClassHandler) UpdateCapacity(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	var req service.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid capacity payload"))
		return
	}
	role, err := h.users.RoleFor(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	class, err := h.classes.UpdateCapacity(c.Request.Context(), c.Param("id"), claims.Subject, role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// MyClasses godoc
// @Summary List the instructor's own classes
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /instructors/me/classes [get]
func (h *ClassHandler) MyClasses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	classes, err := h.classes.ListByInstructor(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

func classFilterFromQuery(c *gin.Context) models.ClassFilter {
	var filter models.ClassFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
