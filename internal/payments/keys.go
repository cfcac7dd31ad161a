package payments

import "github.com/google/uuid"

// NewKey returns a fresh idempotency token, tagged with the operation it
// covers so keys are attributable in provider logs.
func NewKey(suffix string) string {
	if suffix == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + ":" + suffix
}

// fallbackKey derives a distinct token for the degraded retry: the retry
// carries different parameters, so reusing the original token would be a
// key/params conflict at the provider.
func fallbackKey(key string) string {
	if key == "" {
		return ""
	}
	return key + ":fallback"
}
