package dashboard

import (
	"context"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	charges   []*stripe.Charge
	gotSince  int64
	listCalls int
}

func (f *fakeLister) ListCharges(ctx context.Context, since int64) ([]*stripe.Charge, error) {
	f.gotSince = since
	f.listCalls++
	return f.charges, nil
}

func cryptoCharge(id string, amount int64, created time.Time) *stripe.Charge {
	return &stripe.Charge{
		ID:       id,
		Amount:   amount,
		Currency: "usd",
		Status:   stripe.ChargeStatusSucceeded,
		Created:  created.Unix(),
		PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
			Type: "crypto",
		},
	}
}

func cardCharge(id string, amount, refunded int64, created time.Time) *stripe.Charge {
	return &stripe.Charge{
		ID:             id,
		Amount:         amount,
		AmountRefunded: refunded,
		Currency:       "usd",
		Status:         stripe.ChargeStatusSucceeded,
		Created:        created.Unix(),
		PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
			Type: stripe.ChargePaymentMethodDetailsTypeCard,
			Card: &stripe.ChargePaymentMethodDetailsCard{Network: "visa"},
		},
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	r := ParseRange("7d")
	assert.Equal(t, 7, r.Days)
	assert.Equal(t, now.Unix()-7*86400, r.Since(now))

	r = ParseRange("all")
	assert.Equal(t, int64(0), r.Since(now))
	assert.Equal(t, 30, r.Days)

	r = ParseRange("bogus")
	assert.Equal(t, "30d", r.Name)
}

func TestBuildAggregates(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	lister := &fakeLister{charges: []*stripe.Charge{
		cryptoCharge("ch_1", 5000, now),
		cryptoCharge("ch_2", 2000, yesterday),
		cardCharge("ch_3", 1500, 500, now),
		// failed charges are excluded entirely
		{ID: "ch_4", Amount: 9999, Status: stripe.ChargeStatusFailed, Created: now.Unix()},
	}}
	s := NewService(lister)
	s.nowFunc = func() time.Time { return now }

	rep, err := s.Build(context.Background(), ParseRange("7d"))
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Totals.TotalCount)
	assert.Equal(t, int64(8000), rep.Totals.TotalVolume, "refunds netted out")
	assert.Equal(t, int64(7000), rep.Totals.CryptoVolume)
	assert.Equal(t, 2, rep.Totals.CryptoCount)
	assert.Equal(t, int64(1000), rep.Totals.FiatVolume)
	assert.Equal(t, int64(2666), rep.Totals.AvgTicket)
	assert.Equal(t, []string{"usd"}, rep.Totals.Currencies)

	require.Len(t, rep.Series, 7)
	last := rep.Series[6]
	assert.Equal(t, now.Format("2006-01-02"), last.Date)
	assert.Equal(t, int64(6000), last.Total)
	assert.Equal(t, int64(5000), last.Crypto)
	assert.Equal(t, int64(1000), last.Fiat)
	assert.Equal(t, 2, last.Count)
	assert.Equal(t, int64(2000), rep.Series[5].Total)

	require.Len(t, rep.TopNetworks, 1)
	assert.Equal(t, "crypto", rep.TopNetworks[0].Name)
	assert.Equal(t, int64(7000), rep.TopNetworks[0].Volume)

	require.Len(t, rep.LastPayments, 3)
	assert.Equal(t, "crypto", rep.LastPayments[0].Method)
	assert.Equal(t, "card", rep.LastPayments[2].Method)
}

func TestBuildPassesSinceBound(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	s := NewService(lister)
	s.nowFunc = func() time.Time { return now }

	_, err := s.Build(context.Background(), ParseRange("30d"))
	require.NoError(t, err)
	assert.Equal(t, now.Unix()-30*86400, lister.gotSince)

	_, err = s.Build(context.Background(), ParseRange("all"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), lister.gotSince)
}

func TestBuildRecentPaymentsCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	for i := 0; i < 20; i++ {
		lister.charges = append(lister.charges, cardCharge("ch", 100, 0, now))
	}
	s := NewService(lister)
	s.nowFunc = func() time.Time { return now }

	rep, err := s.Build(context.Background(), ParseRange("7d"))
	require.NoError(t, err)
	assert.Len(t, rep.LastPayments, maxRecentPayments)
	assert.Equal(t, 20, rep.Totals.TotalCount)
}
