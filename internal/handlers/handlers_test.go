package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/go-commerce-gateway/internal/dashboard"
	"github.com/stablepay/go-commerce-gateway/internal/idempotency"
	"github.com/stablepay/go-commerce-gateway/internal/onramp"
	"github.com/stablepay/go-commerce-gateway/internal/orders"
	"github.com/stablepay/go-commerce-gateway/internal/payments"
	"github.com/stablepay/go-commerce-gateway/internal/pricing"
	"github.com/stablepay/go-commerce-gateway/internal/webhook"
)

type recordingAPI struct {
	intentCalls   []*stripe.PaymentIntentParams
	sessionCalls  []*stripe.CheckoutSessionParams
	transferCalls []*stripe.TransferParams
	accountCalls  []*stripe.AccountParams
	linkCalls     []*stripe.AccountLinkParams
	charges       []*stripe.Charge
}

func (f *recordingAPI) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.intentCalls = append(f.intentCalls, params)
	return &stripe.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func (f *recordingAPI) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.sessionCalls = append(f.sessionCalls, params)
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func (f *recordingAPI) CreateTransfer(params *stripe.TransferParams) (*stripe.Transfer, error) {
	f.transferCalls = append(f.transferCalls, params)
	return &stripe.Transfer{ID: "tr_test"}, nil
}

func (f *recordingAPI) CreateAccount(params *stripe.AccountParams) (*stripe.Account, error) {
	f.accountCalls = append(f.accountCalls, params)
	return &stripe.Account{ID: "acct_test"}, nil
}

func (f *recordingAPI) CreateAccountLink(params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	f.linkCalls = append(f.linkCalls, params)
	return &stripe.AccountLink{URL: "https://connect.test/onboard"}, nil
}

func (f *recordingAPI) ListCharges(params *stripe.ChargeListParams) ([]*stripe.Charge, error) {
	return f.charges, nil
}

type testEnv struct {
	router *gin.Engine
	api    *recordingAPI
	idem   idempotency.Store
	orders orders.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := bolt.Open(filepath.Join(t.TempDir(), "gateway.db"), 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idem, err := idempotency.NewBoltStore(db, 48*time.Hour)
	require.NoError(t, err)
	ordersStore, err := orders.NewBoltStore(db)
	require.NoError(t, err)

	api := &recordingAPI{}
	gw := payments.NewGateway(api)

	d := webhook.NewDispatcher()
	webhook.RegisterPaymentHandlers(d, ordersStore)

	r := gin.New()
	Register(r, Config{
		Gateway:     gw,
		Onramp:      onramp.NewClient("sk_test_x", "").WithBaseURL("http://127.0.0.1:1"),
		Idempotency: idem,
		Orders:      ordersStore,
		Webhook:     webhook.NewProcessor("whsec_test", idem, d, nil, nil),
		Dashboard:   dashboard.NewService(gw),
		Amounts:     pricing.NewAmountSet([]int64{2000, 5000, 10000}),
		Pricing:     pricing.DefaultConfig(),
		BaseURL:     "https://shop.example.com",
	})

	return &testEnv{router: r, api: api, idem: idem, orders: ordersStore}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreateIntentAmountIsServerDerived(t *testing.T) {
	env := newTestEnv(t)

	// the client's amount field, if any, is ignored: only catalog ids count
	w := env.do(http.MethodPost, "/checkout/create-intent",
		`{"items":[{"id":"sku_widget","qty":2}],"amount":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2000), resp["amount"])
	assert.Equal(t, "pi_test_secret", resp["client_secret"])

	require.Len(t, env.api.intentCalls, 1)
	assert.Equal(t, int64(2000), *env.api.intentCalls[0].Amount)
}

func TestCreateIntentEmptyCartRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/checkout/create-intent", `{"items":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.api.intentCalls)
}

func TestCreateIntentReplaySameToken(t *testing.T) {
	env := newTestEnv(t)
	hdr := map[string]string{"Idempotency-Key": "tok-replay"}
	body := `{"items":[{"id":"sku_widget","qty":1}]}`

	w := env.do(http.MethodPost, "/checkout/create-intent", body, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	first := w.Body.String()

	w = env.do(http.MethodPost, "/checkout/create-intent", body, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, first, w.Body.String())
	assert.Len(t, env.api.intentCalls, 1, "replay must not call the provider again")

	// the caller token is forwarded verbatim as the provider key
	assert.Equal(t, "tok-replay", *env.api.intentCalls[0].IdempotencyKey)
}

func TestCreateIntentTokenReuseAcrossCartsConflicts(t *testing.T) {
	env := newTestEnv(t)
	hdr := map[string]string{"Idempotency-Key": "tok-conflict"}

	w := env.do(http.MethodPost, "/checkout/create-intent", `{"items":[{"id":"sku_widget","qty":1}]}`, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/checkout/create-intent", `{"items":[{"id":"sku_support","qty":1}]}`, hdr)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_conflict")
	assert.Len(t, env.api.intentCalls, 1)
}

func TestCheckoutSessionAllowlist(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/checkout/session",
		`{"name":"Custom","amount":1234,"currency":"usd"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount_not_allowed")
	assert.Empty(t, env.api.sessionCalls, "rejected amounts must not reach the provider")
}

func TestCheckoutSessionRecordsPendingOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/checkout/session",
		`{"name":"Pro Tier","amount":5000,"currency":"usd"}`,
		map[string]string{"Idempotency-Key": "tok-sess"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ord, err := env.orders.Get(t.Context(), "cs_test")
	require.NoError(t, err)
	require.NotNil(t, ord)
	assert.Equal(t, orders.StatusPending, ord.Status)
	assert.Equal(t, int64(5000), ord.AmountCents)

	rec, err := env.idem.Get(t.Context(), "req:tok-sess")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Contains(t, rec.ResponseBody, "cs_test")

	// replay returns the stored session without a second provider call
	w = env.do(http.MethodPost, "/checkout/session",
		`{"name":"Pro Tier","amount":5000,"currency":"usd"}`,
		map[string]string{"Idempotency-Key": "tok-sess"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cs_test")
	assert.Len(t, env.api.sessionCalls, 1)
}

func TestTransferValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/connect/transfer", `{"account":"cus_1","amount":2500}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/connect/transfer", `{"account":"acct_1","amount":50}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.api.transferCalls)

	w = env.do(http.MethodPost, "/connect/transfer", `{"account":"acct_1","amount":2500}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.api.transferCalls, 1)
	assert.Equal(t, "acct_1", *env.api.transferCalls[0].Destination)
}

func TestConnectAccountAndLink(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/connect/account", `{}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acct_test")

	w = env.do(http.MethodPost, "/connect/account-link", `{"account_id":"acct_test"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://connect.test/onboard")

	w = env.do(http.MethodPost, "/connect/account-link", `{"account_id":"bogus"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnrampSessionUnsupportedDestination(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/onramp/session",
		`{"destination_currency":"doge","destination_network":"solana"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported_destination")
}

func TestDashboardMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.api.charges = []*stripe.Charge{{
		ID:       "ch_1",
		Amount:   5000,
		Currency: "usd",
		Status:   stripe.ChargeStatusSucceeded,
		Created:  time.Now().Unix(),
		PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
			Type: "crypto",
		},
	}}

	w := env.do(http.MethodGet, "/dashboard/metrics?range=7d", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rep dashboard.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "7d", rep.Range)
	assert.Equal(t, int64(5000), rep.Totals.CryptoVolume)
	assert.Len(t, rep.Series, 7)
}

func TestWebhookBadSignature(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`,
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
