package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// supported onramp destinations; the provider rejects others anyway, but
// failing here avoids a billable call
var (
	onrampCurrencies = map[string]bool{"usdc": true}
	onrampNetworks   = map[string]bool{
		"solana": true, "ethereum": true, "polygon": true, "bitcoin": true,
		"stellar": true, "avalanche": true, "base": true,
	}
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// onramp destinations are allow-listed, with defaults applied first
	v.RegisterStructValidation(onrampSessionStructValidation, OnrampSessionRequest{})

	return v
}

// Normalize applies the default onramp destination. Call before validation.
func (r *OnrampSessionRequest) Normalize() {
	if r.DestinationCurrency == "" {
		r.DestinationCurrency = "usdc"
	}
	if r.DestinationNetwork == "" {
		r.DestinationNetwork = "solana"
	}
}

func onrampSessionStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OnrampSessionRequest)

	if !onrampCurrencies[req.DestinationCurrency] {
		sl.ReportError(req.DestinationCurrency, "destination_currency", "DestinationCurrency", "onramp_currency",
			fmt.Sprintf("unsupported destination currency %q", req.DestinationCurrency))
	}
	if !onrampNetworks[req.DestinationNetwork] {
		sl.ReportError(req.DestinationNetwork, "destination_network", "DestinationNetwork", "onramp_network",
			fmt.Sprintf("unsupported destination network %q", req.DestinationNetwork))
	}
}
