// Package payments wraps the Stripe SDK behind a narrow interface and
// enforces the idempotency discipline on every mutating call.
package payments

import (
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// API is the subset of provider operations the gateway issues. Responses
// are opaque except for the fields handlers explicitly read.
type API interface {
	CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateTransfer(params *stripe.TransferParams) (*stripe.Transfer, error)
	CreateAccount(params *stripe.AccountParams) (*stripe.Account, error)
	CreateAccountLink(params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
	ListCharges(params *stripe.ChargeListParams) ([]*stripe.Charge, error)
}

// maxChargeFetch caps history paging (~25 pages of 100).
const maxChargeFetch = 2500

type stripeAPI struct {
	sc *client.API
}

// NewStripeAPI returns an API backed by the real Stripe client.
func NewStripeAPI(secretKey string) API {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeAPI{sc: sc}
}

func (a *stripeAPI) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return a.sc.PaymentIntents.New(params)
}

func (a *stripeAPI) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return a.sc.CheckoutSessions.New(params)
}

func (a *stripeAPI) CreateTransfer(params *stripe.TransferParams) (*stripe.Transfer, error) {
	return a.sc.Transfers.New(params)
}

func (a *stripeAPI) CreateAccount(params *stripe.AccountParams) (*stripe.Account, error) {
	return a.sc.Accounts.New(params)
}

func (a *stripeAPI) CreateAccountLink(params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	return a.sc.AccountLinks.New(params)
}

func (a *stripeAPI) ListCharges(params *stripe.ChargeListParams) ([]*stripe.Charge, error) {
	var out []*stripe.Charge
	it := a.sc.Charges.List(params)
	for it.Next() {
		out = append(out, it.Charge())
		if len(out) >= maxChargeFetch {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
