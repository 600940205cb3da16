package payment

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"
)

// MidtransGateway implements Gateway on top of the Midtrans Snap API.
// The Snap token plays the role of the client secret.
type MidtransGateway struct {
	client snap.Client
	logger *zap.Logger
}

// NewMidtransGateway configures a Snap client for the given environment.
func NewMidtransGateway(serverKey string, production bool, logger *zap.Logger) *MidtransGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{logger: logger}
	g.client.New(serverKey, env)
	return g
}

// CreateIntent registers a transaction with the gateway and returns the
// Snap token. The Snap client has no context support; the caller's
// deadline bounds only our side of the call.
func (g *MidtransGateway) CreateIntent(ctx context.Context, amount float64, currency string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	orderID := uuid.NewString()
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: int64(math.Round(amount)),
		},
	}

	resp, merr := g.client.CreateTransaction(req)
	if merr != nil {
		g.logger.Warn("payment intent creation failed",
			zap.String("order_id", orderID),
			zap.String("currency", strings.ToLower(currency)),
			zap.Error(merr),
		)
		return "", merr
	}

	g.logger.Info("payment intent created", zap.String("order_id", orderID))
	return resp.Token, nil
}
