package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/payment"
)

// PaymentIntentRequest asks the gateway to prepare a charge.
type PaymentIntentRequest struct {
	Amount   float64 `json:"amount" validate:"gt=0"`
	Currency string  `json:"currency"`
}

// PaymentIntentResponse carries the client secret back to the frontend.
type PaymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// PaymentService fronts the external payment gateway. Intent creation
// happens strictly before CompletePurchase; a gateway failure changes
// no ledger or coordinator state.
type PaymentService struct {
	gateway         payment.Gateway
	defaultCurrency string
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(gateway payment.Gateway, defaultCurrency string, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCurrency == "" {
		defaultCurrency = "usd"
	}
	return &PaymentService{gateway: gateway, defaultCurrency: defaultCurrency, validator: validate, logger: logger}
}

// CreateIntent registers a payment with the gateway and returns the
// client secret.
func (s *PaymentService) CreateIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	secret, err := s.gateway.CreateIntent(ctx, req.Amount, currency)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentGateway.Code, appErrors.ErrPaymentGateway.Status, "failed to create payment intent")
	}
	return &PaymentIntentResponse{ClientSecret: secret}, nil
}
