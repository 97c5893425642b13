// Package geocode defines the shared types and error taxonomy for the
// geocode resolution pipeline: cache, providers, circuit breaking, retry,
// and the offline text fallback.
package geocode

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ProviderTextBased is the provider name reported by the offline text
// fallback. Its results carry no confidence score on purpose: they are an
// honest low-precision signal, not a vendor answer.
const ProviderTextBased = "text_based"

// MaxQueryLength bounds accepted free-text queries (in runes).
const MaxQueryLength = 512

// Sentinel errors for provider faults. Unavailable and RateLimited are
// transient: they are retried and count toward the provider's breaker.
// NoMatch is not a fault; the service moves on to the next provider.
var (
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	ErrProviderRateLimited = errors.New("geocoding provider rate limited")
	ErrNoMatch             = errors.New("geocoding provider found no match")
	ErrUnresolved          = errors.New("location could not be resolved")
)

// IsTransient reports whether the error is a transient provider fault that
// should be retried and counted by the circuit breaker.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderRateLimited)
}

// Result is a resolved location.
type Result struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	FormattedAddress string   `json:"formattedAddress"`
	ProviderName     string   `json:"providerName"`
	Confidence       *float64 `json:"confidence,omitempty"`
	CacheHit         bool     `json:"cacheHit"`
}

// Valid reports whether the coordinates are usable. All three conditions
// must hold together: latitude in range, longitude in range, and not the
// (0,0) null island pair that vendors return for unparseable input.
func (r Result) Valid() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 &&
		r.Longitude >= -180 && r.Longitude <= 180 &&
		!(r.Latitude == 0 && r.Longitude == 0)
}

// NormalizeQuery canonicalizes a free-text query for cache keying and
// matching: case-folded, trimmed, inner whitespace collapsed.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// HashQuery returns the stable cache key for a query: the hex-encoded
// SHA-256 of its normalized form.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}
