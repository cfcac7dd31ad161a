package validation

// CartLine is one client cart entry. Quantities are clamped server-side;
// amounts are never accepted from the client.
type CartLine struct {
	ID  string `json:"id" validate:"required"`
	Qty int    `json:"qty"`
}

// CreateIntentRequest is the payment-intent checkout body.
type CreateIntentRequest struct {
	Items  []CartLine `json:"items" validate:"required,min=1,dive"`
	Coupon string     `json:"coupon"`
}

// CheckoutSessionRequest selects a fixed pricing tier. The amount must be
// on the configured allow-list; that check happens in the handler where
// the list lives.
type CheckoutSessionRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,eq=usd"`
}

// CreateAccountRequest onboards a seller.
type CreateAccountRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// AccountLinkRequest requests an onboarding link.
type AccountLinkRequest struct {
	AccountID string `json:"account_id" validate:"required,startswith=acct_"`
}

// TransferRequest pays out a connected account. Bounds keep the demo from
// moving arbitrary amounts.
type TransferRequest struct {
	Account string `json:"account" validate:"required,startswith=acct_"`
	Amount  int64  `json:"amount" validate:"required,min=100,max=1000000"`
}

// OnrampSessionRequest opens a crypto onramp session.
type OnrampSessionRequest struct {
	DestinationCurrency string `json:"destination_currency"`
	DestinationNetwork  string `json:"destination_network"`
	WalletAddress       string `json:"wallet_address" validate:"omitempty,max=120"`
}
