package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// SelectionHandler exposes the student's pending-selection endpoints.
type SelectionHandler struct {
	selections *service.SelectionService
}

// NewSelectionHandler constructs SelectionHandler.
func NewSelectionHandler(selections *service.SelectionService) *SelectionHandler {
	return &SelectionHandler{selections: selections}
}

// Create godoc
// @Summary Select a class for purchase
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body service.SelectClassRequest true "Selection payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /selections [post]
func (h *SelectionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	var req service.SelectClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}
	selection, err := h.selections.Select(c.Request.Context(), claims.Subject, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, selection)
}

// List godoc
// @Summary List pending selections
// @Tags Selections
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /selections [get]
func (h *SelectionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	selections, err := h.selections.List(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, selections, nil)
}

// Delete godoc
// @Summary Remove a pending selection
// @Tags Selections
// @Produce json
// @Param id path string true "Selection ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /selections/{id} [delete]
func (h *SelectionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	if err := h.selections.Remove(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
