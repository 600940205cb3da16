package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

type fakeGateway struct {
	secret     string
	err        error
	amounts    []float64
	currencies []string
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount float64, currency string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.amounts = append(g.amounts, amount)
	g.currencies = append(g.currencies, currency)
	return g.secret, nil
}

func TestPaymentServiceCreateIntent(t *testing.T) {
	gateway := &fakeGateway{secret: "cs_test_123"}
	svc := NewPaymentService(gateway, "usd", nil, nil)

	res, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{Amount: 49.99, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", res.ClientSecret)
	assert.Equal(t, []string{"usd"}, gateway.currencies)
}

func TestPaymentServiceCreateIntentDefaultsCurrency(t *testing.T) {
	gateway := &fakeGateway{secret: "cs_test_123"}
	svc := NewPaymentService(gateway, "idr", nil, nil)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"idr"}, gateway.currencies)
}

func TestPaymentServiceCreateIntentValidation(t *testing.T) {
	svc := NewPaymentService(&fakeGateway{}, "usd", nil, nil)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{Amount: 0})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentServiceCreateIntentGatewayFailure(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("upstream 500")}
	svc := NewPaymentService(gateway, "usd", nil, nil)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{Amount: 10})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPaymentGateway.Code, appErr.Code)
}
