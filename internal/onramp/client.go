// Package onramp calls the provider's crypto onramp REST endpoints, which
// the SDK does not cover.
package onramp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client talks to the onramp endpoints with bearer auth and an optional
// pinned API version.
type Client struct {
	baseURL    string
	secretKey  string
	apiVersion string
	httpClient *http.Client
}

// NewClient returns a Client. apiVersion may be empty; the account default
// applies then.
func NewClient(secretKey, apiVersion string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		secretKey:  secretKey,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL overrides the endpoint host, for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// QuoteRequest bounds a quote lookup. SourceAmount is in major units
// ("200.00").
type QuoteRequest struct {
	SourceAmount          string
	SourceCurrency        string
	DestinationCurrencies []string
	DestinationNetworks   []string
}

// Fees is the provider's monetary fee breakdown, passed through verbatim.
type Fees struct {
	NetworkFee     string `json:"network_fee_monetary,omitempty"`
	TransactionFee string `json:"transaction_fee_monetary,omitempty"`
}

// Quote is one per-network conversion quote, flattened from the provider's
// network-keyed response map.
type Quote struct {
	ID                  string `json:"id"`
	DestinationNetwork  string `json:"destination_network"`
	DestinationCurrency string `json:"destination_currency"`
	DestinationAmount   string `json:"destination_amount"`
	SourceTotalAmount   string `json:"source_total_amount"`
	Fees                *Fees  `json:"fees"`
}

// Session is the subset of an onramp session the storefront reads.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// apiError mirrors the provider's error envelope.
type apiError struct {
	Err struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Error is a provider rejection with the upstream status attached.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("onramp: provider returned %d: %s", e.StatusCode, e.Message)
}

// Quotes fetches conversion quotes and flattens the per-network map into a
// list sorted by network name so responses are stable.
func (c *Client) Quotes(ctx context.Context, req QuoteRequest) ([]Quote, error) {
	q := url.Values{}
	q.Set("source_amount", req.SourceAmount)
	q.Set("source_currency", strings.ToLower(req.SourceCurrency))
	for _, cur := range req.DestinationCurrencies {
		q.Add("destination_currencies[]", strings.ToLower(strings.TrimSpace(cur)))
	}
	for _, n := range req.DestinationNetworks {
		q.Add("destination_networks[]", strings.ToLower(strings.TrimSpace(n)))
	}

	body, err := c.do(ctx, http.MethodGet, "/v1/crypto/onramp/quotes?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		NetworkQuotes map[string][]struct {
			ID                  string `json:"id"`
			DestinationCurrency string `json:"destination_currency"`
			DestinationAmount   string `json:"destination_amount"`
			SourceTotalAmount   string `json:"source_total_amount"`
			Fees                *Fees  `json:"fees"`
		} `json:"destination_network_quotes"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("onramp: decode quotes: %w", err)
	}

	networks := make([]string, 0, len(envelope.NetworkQuotes))
	for n := range envelope.NetworkQuotes {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	var out []Quote
	for _, n := range networks {
		for _, raw := range envelope.NetworkQuotes[n] {
			out = append(out, Quote{
				ID:                  raw.ID,
				DestinationNetwork:  n,
				DestinationCurrency: raw.DestinationCurrency,
				DestinationAmount:   raw.DestinationAmount,
				SourceTotalAmount:   raw.SourceTotalAmount,
				Fees:                raw.Fees,
			})
		}
	}
	return out, nil
}

// SessionRequest describes the destination for a hosted onramp session.
type SessionRequest struct {
	DestinationCurrency string
	DestinationNetwork  string
	WalletAddress       string
}

// CreateSession creates a hosted onramp session. idemKey is sent as the
// provider idempotency header.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest, idemKey string) (*Session, error) {
	form := url.Values{}
	form.Set("destination_currency", req.DestinationCurrency)
	form.Set("destination_network", req.DestinationNetwork)
	if req.WalletAddress != "" {
		form.Set(fmt.Sprintf("wallet_addresses[%s]", req.DestinationNetwork), req.WalletAddress)
		form.Set("lock_wallet_address", "true")
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/crypto/onramp_sessions", idemKey, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("onramp: decode session: %w", err)
	}
	return &sess, nil
}

func (c *Client) do(ctx context.Context, method, path, idemKey string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("onramp: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if c.apiVersion != "" {
		httpReq.Header.Set("Stripe-Version", c.apiVersion)
	}
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idemKey != "" {
		httpReq.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("onramp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("onramp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		msg := ae.Err.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}
