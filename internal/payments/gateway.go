package payments

import (
	"context"
	"errors"
	"log"
	"net/http"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/stablepay/go-commerce-gateway/internal/pricing"
)

// Gateway issues the money-moving provider calls. Every mutation carries an
// idempotency token supplied by the caller or minted via NewKey.
type Gateway struct {
	api API
}

// NewGateway returns a Gateway over api.
func NewGateway(api API) *Gateway {
	return &Gateway{api: api}
}

// Intent is the two-variant result of an intent creation: full success, or
// success on the degraded fallback path with a notice for the caller.
type Intent struct {
	ID           string
	ClientSecret string
	Degraded     bool
	Notice       string
}

// degradedNotice is surfaced verbatim to the storefront.
const degradedNotice = "Crypto not enabled on this account — showing eligible methods only."

// cryptoFirst is the preferred payment method mix for the demo storefront.
var cryptoFirst = []string{"crypto", "card"}

func intentParams(ctx context.Context, order pricing.Order, methodTypes []string, idemKey string) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(order.Amount),
		Currency:    stripe.String(order.Currency),
		Description: stripe.String(order.Description),
	}
	params.Context = ctx
	if len(methodTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(methodTypes)
	}
	for k, v := range order.Metadata {
		params.AddMetadata(k, v)
	}
	if idemKey != "" {
		params.SetIdempotencyKey(idemKey)
	}
	return params
}

// CreateIntent creates a payment intent for a server-computed order. The
// crypto method mix is tried first; if the account rejects it, one retry
// with automatic payment methods produces a degraded success.
func (g *Gateway) CreateIntent(ctx context.Context, order pricing.Order, idemKey string) (*Intent, error) {
	pi, err := g.api.CreatePaymentIntent(intentParams(ctx, order, cryptoFirst, idemKey))
	if err == nil {
		return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
	}
	if !isCapabilityError(err) {
		return nil, err
	}

	log.Printf("[payments] crypto methods rejected, retrying with automatic methods: %s", ErrorMessage(err))

	// at most one fallback attempt, under a derived token
	fallback := intentParams(ctx, order, nil, fallbackKey(idemKey))
	fallback.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
		Enabled: stripe.Bool(true),
	}
	pi, err = g.api.CreatePaymentIntent(fallback)
	if err != nil {
		return nil, err
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Degraded: true, Notice: degradedNotice}, nil
}

// CheckoutSpec describes an allowlist-validated checkout session.
type CheckoutSpec struct {
	Name      string
	Amount    int64
	Currency  string
	Origin    string
	ClientRef string
}

// CreateCheckoutSession creates a hosted checkout session for a predefined
// tier. The amount must already have passed the allow-list.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, spec CheckoutSpec, idemKey string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"crypto"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(spec.Currency),
				UnitAmount: stripe.Int64(spec.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(spec.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:       stripe.String(spec.Origin + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:        stripe.String(spec.Origin + "/checkout"),
		CustomerCreation: stripe.String(string(stripe.CheckoutSessionCustomerCreationIfRequired)),
	}
	params.Context = ctx
	if spec.ClientRef != "" {
		params.ClientReferenceID = stripe.String(spec.ClientRef)
	}
	if idemKey != "" {
		params.SetIdempotencyKey(idemKey)
	}
	return g.api.CreateCheckoutSession(params)
}

// CreateTransfer issues a payout transfer to a connected account.
func (g *Gateway) CreateTransfer(ctx context.Context, account string, amount int64, idemKey string) (*stripe.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String("usd"),
		Destination: stripe.String(account),
		Description: stripe.String("Seller payout (auto-convert to USDC if wallet linked)"),
	}
	params.Context = ctx
	if idemKey != "" {
		params.SetIdempotencyKey(idemKey)
	}
	return g.api.CreateTransfer(params)
}

// CreateAccount onboards an express connected seller account.
func (g *Gateway) CreateAccount(ctx context.Context, email, idemKey string) (*stripe.Account, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String("US"),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
		},
		BusinessProfile: &stripe.AccountBusinessProfileParams{
			ProductDescription: stripe.String("Stablecoin commerce demo"),
		},
	}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if idemKey != "" {
		params.SetIdempotencyKey(idemKey)
	}
	return g.api.CreateAccount(params)
}

// CreateAccountLink creates a hosted onboarding link for a connected
// account.
func (g *Gateway) CreateAccountLink(ctx context.Context, accountID, origin, idemKey string) (*stripe.AccountLink, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		Type:       stripe.String("account_onboarding"),
		RefreshURL: stripe.String(origin + "/connect/refresh?account=" + accountID),
		ReturnURL:  stripe.String(origin + "/connect/return?account=" + accountID),
	}
	params.Context = ctx
	if idemKey != "" {
		params.SetIdempotencyKey(idemKey)
	}
	return g.api.CreateAccountLink(params)
}

// ListCharges pages succeeded-and-otherwise charge history, optionally
// bounded by a created>=since filter (epoch seconds).
func (g *Gateway) ListCharges(ctx context.Context, since int64) ([]*stripe.Charge, error) {
	params := &stripe.ChargeListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	params.AddExpand("data.balance_transaction")
	if since > 0 {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: since}
	}
	return g.api.ListCharges(params)
}

// isCapabilityError reports whether the provider rejected the request shape
// itself (e.g. a payment method type not enabled on the account), which is
// the only condition the degraded fallback may answer.
func isCapabilityError(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Type == stripe.ErrorTypeInvalidRequest
}

// ErrorMessage extracts a loggable, secret-free message from a provider
// error.
func ErrorMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Msg != "" {
			return se.Msg
		}
		return string(se.Code)
	}
	return err.Error()
}

// ErrorStatus maps a provider error onto the status surfaced to the caller:
// provider rejections pass through as client errors, transport and server
// failures become a gateway error.
func ErrorStatus(err error) int {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
