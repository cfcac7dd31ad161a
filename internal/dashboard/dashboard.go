// Package dashboard aggregates charge history into merchant-facing
// metrics.
package dashboard

import (
	"context"
	"sort"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
)

// ChargeLister pages charge history bounded by created >= since (epoch
// seconds; 0 means unbounded).
type ChargeLister interface {
	ListCharges(ctx context.Context, since int64) ([]*stripe.Charge, error)
}

// Range is a parsed reporting window.
type Range struct {
	Name string
	Days int
	// Since is the epoch lower bound, 0 for unbounded.
	Since func(now time.Time) int64
}

// ParseRange maps a query value onto a window. Unrecognized values fall
// back to 30 days.
func ParseRange(s string) Range {
	bounded := func(days int) func(time.Time) int64 {
		return func(now time.Time) int64 { return now.Unix() - int64(days)*86400 }
	}
	switch s {
	case "7d":
		return Range{Name: "7d", Days: 7, Since: bounded(7)}
	case "90d":
		return Range{Name: "90d", Days: 90, Since: bounded(90)}
	case "all":
		// unbounded fetch, 30-day chart window
		return Range{Name: "all", Days: 30, Since: func(time.Time) int64 { return 0 }}
	default:
		return Range{Name: "30d", Days: 30, Since: bounded(30)}
	}
}

// Totals is the headline aggregate. Volumes are in the smallest currency
// unit, net of refunds.
type Totals struct {
	TotalCount   int      `json:"total_count"`
	TotalVolume  int64    `json:"total_volume"`
	AvgTicket    int64    `json:"avg_ticket"`
	CryptoCount  int      `json:"crypto_count"`
	CryptoVolume int64    `json:"crypto_volume"`
	FiatCount    int      `json:"fiat_count"`
	FiatVolume   int64    `json:"fiat_volume"`
	Currencies   []string `json:"currencies"`
}

// DayPoint is one day in the chart series, keyed by UTC date.
type DayPoint struct {
	Date   string `json:"date"`
	Total  int64  `json:"total"`
	Crypto int64  `json:"crypto"`
	Fiat   int64  `json:"fiat"`
	Count  int    `json:"count"`
}

// NetworkVolume is a crypto network's settled volume.
type NetworkVolume struct {
	Name   string `json:"name"`
	Volume int64  `json:"volume"`
}

// Payment is one recent settled charge.
type Payment struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Created  int64  `json:"created"`
}

// Report is the full metrics response.
type Report struct {
	Range        string          `json:"range"`
	Totals       Totals          `json:"totals"`
	Series       []DayPoint      `json:"series"`
	TopNetworks  []NetworkVolume `json:"top_networks"`
	LastPayments []Payment       `json:"last_payments"`
	Note         string          `json:"note"`
}

const classificationNote = "Crypto detection is best-effort: charges without payment method details count as fiat."

const maxRecentPayments = 12

// Service builds Reports from a charge source.
type Service struct {
	lister  ChargeLister
	nowFunc func() time.Time
}

func NewService(lister ChargeLister) *Service {
	return &Service{lister: lister, nowFunc: time.Now}
}

type classification struct {
	kind    string
	network string
}

func classify(c *stripe.Charge) classification {
	pmd := c.PaymentMethodDetails
	if pmd == nil || pmd.Type == "" {
		return classification{kind: "unknown", network: "unknown"}
	}
	switch pmd.Type {
	case "crypto":
		// the SDK does not expose per-network detail for crypto charges
		return classification{kind: "crypto", network: "crypto"}
	case stripe.ChargePaymentMethodDetailsTypeCard:
		network := "card"
		if pmd.Card != nil && pmd.Card.Network != "" {
			network = string(pmd.Card.Network)
		}
		return classification{kind: "card", network: network}
	default:
		t := string(pmd.Type)
		return classification{kind: t, network: t}
	}
}

// Build fetches charges for the window and aggregates them. Only succeeded
// charges count; refunded amounts are netted out.
func (s *Service) Build(ctx context.Context, r Range) (*Report, error) {
	now := s.nowFunc().UTC()
	charges, err := s.lister.ListCharges(ctx, r.Since(now))
	if err != nil {
		return nil, err
	}

	var totals Totals
	currencies := map[string]bool{}
	networks := map[string]int64{}
	byDay := map[string]*DayPoint{}
	var recent []Payment

	for _, c := range charges {
		if c.Status != stripe.ChargeStatusSucceeded {
			continue
		}
		amt := c.Amount - c.AmountRefunded
		curr := string(c.Currency)
		if curr == "" {
			curr = "usd"
		}
		currencies[curr] = true
		totals.TotalCount++
		totals.TotalVolume += amt

		cls := classify(c)
		isCrypto := cls.kind == "crypto"
		if isCrypto {
			totals.CryptoCount++
			totals.CryptoVolume += amt
			networks[cls.network] += amt
		} else {
			totals.FiatCount++
			totals.FiatVolume += amt
		}

		created := c.Created
		if created == 0 {
			created = now.Unix()
		}
		key := time.Unix(created, 0).UTC().Format("2006-01-02")
		dp, ok := byDay[key]
		if !ok {
			dp = &DayPoint{Date: key}
			byDay[key] = dp
		}
		dp.Total += amt
		dp.Count++
		if isCrypto {
			dp.Crypto += amt
		} else {
			dp.Fiat += amt
		}

		if len(recent) < maxRecentPayments {
			recent = append(recent, Payment{
				ID:       c.ID,
				Amount:   amt,
				Currency: curr,
				Status:   string(c.Status),
				Method:   cls.kind,
				Created:  created,
			})
		}
	}

	if totals.TotalCount > 0 {
		totals.AvgTicket = totals.TotalVolume / int64(totals.TotalCount)
	}
	for curr := range currencies {
		totals.Currencies = append(totals.Currencies, curr)
	}
	sort.Strings(totals.Currencies)

	series := make([]DayPoint, 0, r.Days)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := r.Days - 1; i >= 0; i-- {
		key := day.AddDate(0, 0, -i).Format("2006-01-02")
		if dp, ok := byDay[key]; ok {
			series = append(series, *dp)
		} else {
			series = append(series, DayPoint{Date: key})
		}
	}

	top := make([]NetworkVolume, 0, len(networks))
	for name, vol := range networks {
		top = append(top, NetworkVolume{Name: name, Volume: vol})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Volume != top[j].Volume {
			return top[i].Volume > top[j].Volume
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > 5 {
		top = top[:5]
	}

	return &Report{
		Range:        r.Name,
		Totals:       totals,
		Series:       series,
		TopNetworks:  top,
		LastPayments: recent,
		Note:         classificationNote,
	}, nil
}
