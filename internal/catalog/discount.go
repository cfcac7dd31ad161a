package catalog

import "strings"

// Discount reduces a subtotal once. Exactly one of Percent or FixedOff is
// set. Discounts never compound.
type Discount struct {
	Code      string
	Percent   int64 // percentage off, 0..100
	FixedOff  int64 // flat reduction in minor units
	MinAmount int64 // subtotal must reach this for the code to apply
}

var discounts = map[string]Discount{
	"SAVE10":   {Code: "SAVE10", Percent: 10},
	"WELCOME5": {Code: "WELCOME5", FixedOff: 500, MinAmount: 1000},
}

// LookupDiscount matches a code case-insensitively against the discount
// table. Unknown or empty codes return ok=false.
func LookupDiscount(code string) (Discount, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Discount{}, false
	}
	d, ok := discounts[code]
	return d, ok
}

// Apply returns the subtotal after the discount, floored to an integer.
// applied is false when the subtotal does not meet MinAmount.
func (d Discount) Apply(subtotal int64) (amount int64, applied bool) {
	if subtotal < d.MinAmount {
		return subtotal, false
	}
	if d.Percent > 0 {
		return subtotal * (100 - d.Percent) / 100, true
	}
	return subtotal - d.FixedOff, true
}
