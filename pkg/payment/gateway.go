package payment

import "context"

// Gateway abstracts the external payment processor. The core treats
// intent creation as an opaque, possibly-failing remote call; a failure
// must never change ledger or coordinator state.
type Gateway interface {
	// CreateIntent registers a payment of the given amount and returns
	// the client secret the frontend needs to complete the charge.
	CreateIntent(ctx context.Context, amount float64, currency string) (string, error)
}
