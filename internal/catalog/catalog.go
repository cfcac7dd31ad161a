package catalog

// Entry is one purchasable item. UnitAmount is in minor currency units
// (cents for USD).
type Entry struct {
	ID         string
	Name       string
	UnitAmount int64
	Currency   string
}

// entries is the demo catalog, compiled in. The package boundary is the seam
// to swap in a real product source without touching pricing.
var entries = map[string]Entry{
	"sku_boost":   {ID: "sku_boost", Name: "API Throughput Boost", UnitAmount: 100, Currency: "usd"},
	"sku_support": {ID: "sku_support", Name: "Priority Support (mo)", UnitAmount: 2000, Currency: "usd"},
	"sku_widget":  {ID: "sku_widget", Name: "Pro Widget", UnitAmount: 1000, Currency: "usd"},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Entry, bool) {
	e, ok := entries[id]
	return e, ok
}
