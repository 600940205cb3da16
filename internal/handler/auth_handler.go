package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/models"
	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Token godoc
// @Summary Issue access token
// @Description Record the identity and issue a signed access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Token payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}

	res, err := h.service.SignIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
