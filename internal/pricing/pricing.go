// Package pricing recomputes every monetary amount on the server. Client
// input is only ever used to select catalog entries, never as a trusted
// amount.
package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stablepay/go-commerce-gateway/internal/catalog"
)

// Line is a client-supplied cart line. Qty outside [1,99] is clamped and a
// missing quantity defaults to 1.
type Line struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// Order is the server-trusted result of a cart computation.
type Order struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Config carries the demo safety-net knobs. MinCharge is the smallest amount
// the provider will accept; FallbackAmount replaces empty or sub-minimum
// carts so the demo flow can continue.
type Config struct {
	MinCharge      int64
	FallbackAmount int64
	Currency       string
}

// DefaultConfig matches the provider's USD minimum of 50 cents and a $5.00
// fallback.
func DefaultConfig() Config {
	return Config{MinCharge: 50, FallbackAmount: 500, Currency: "usd"}
}

const (
	minQty = 1
	maxQty = 99
)

func clampQty(q int) int {
	if q < minQty {
		return minQty
	}
	if q > maxQty {
		return maxQty
	}
	return q
}

// ComputeOrder derives an order from cart lines and an optional discount
// code. Unknown SKUs are skipped, quantities clamped, and the discount
// applied once with the configured floor. Pure function of its inputs.
func ComputeOrder(cfg Config, lines []Line, coupon string) Order {
	var amount int64
	var parts []string
	for _, ln := range lines {
		entry, ok := catalog.Lookup(ln.ID)
		if !ok {
			continue
		}
		qty := clampQty(ln.Qty)
		amount += entry.UnitAmount * int64(qty)
		parts = append(parts, fmt.Sprintf("%s x%d", entry.Name, qty))
	}

	if d, ok := catalog.LookupDiscount(coupon); ok {
		if discounted, applied := d.Apply(amount); applied {
			amount = discounted
			if amount < cfg.MinCharge {
				amount = cfg.MinCharge
			}
		}
	}

	// Demo safety net: an empty or sub-minimum cart becomes a fixed
	// fallback charge instead of a provider rejection.
	if amount < cfg.MinCharge {
		amount = cfg.FallbackAmount
	}

	itemsJSON, _ := json.Marshal(lines)
	return Order{
		Amount:      amount,
		Currency:    cfg.Currency,
		Description: strings.Join(parts, ", "),
		Metadata: map[string]string{
			"items":  string(itemsJSON),
			"coupon": coupon,
		},
	}
}
