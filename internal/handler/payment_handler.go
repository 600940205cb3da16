package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// PaymentHandler exposes payment-intent creation and purchase completion.
type PaymentHandler struct {
	payments  *service.PaymentService
	purchases *service.PurchaseService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, purchases *service.PurchaseService) *PaymentHandler {
	return &PaymentHandler{payments: payments, purchases: purchases}
}

// CreateIntent godoc
// @Summary Create payment intent
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PaymentIntentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/intent [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req service.PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	res, err := h.payments.CreateIntent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Purchase godoc
// @Summary Complete a purchase
// @Description Reserve a seat, record the enrollment and clear the selection
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PurchaseRequest true "Purchase payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/purchase [post]
func (h *PaymentHandler) Purchase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrMissingCredential)
		return
	}
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purchase payload"))
		return
	}
	detail, err := h.purchases.CompletePurchase(c.Request.Context(), claims.Subject, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}
