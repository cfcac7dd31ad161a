package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AmountSet is the validate-against-allowlist mode of the amount authority:
// flows with predefined tiers accept exactly these amounts and reject
// everything else before any provider call.
type AmountSet struct {
	allowed map[int64]struct{}
}

// NewAmountSet builds an allow-list from amounts in minor units.
func NewAmountSet(amounts []int64) *AmountSet {
	s := &AmountSet{allowed: make(map[int64]struct{}, len(amounts))}
	for _, a := range amounts {
		s.allowed[a] = struct{}{}
	}
	return s
}

// Allowed reports whether amount is in the set.
func (s *AmountSet) Allowed(amount int64) bool {
	_, ok := s.allowed[amount]
	return ok
}

// Values returns the allowed amounts in ascending order.
func (s *AmountSet) Values() []int64 {
	out := make([]int64, 0, len(s.allowed))
	for a := range s.allowed {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseAmounts parses a comma-separated amount list, e.g. "2000,5000,10000".
func ParseAmounts(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid amount %q", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty amount list")
	}
	return out, nil
}
