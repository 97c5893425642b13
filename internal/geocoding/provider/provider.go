// Package provider contains adapters to external geocoding vendors.
// Adapters are stateless and safe to share across concurrent requests;
// transient faults are reported through the sentinel errors in the parent
// geocoding package so retry and circuit breaking can classify them.
package provider

import (
	"context"

	"coverage_backend/internal/geocoding/geocode"
)

// Provider is a single upstream geocoding vendor.
type Provider interface {
	// Name identifies the vendor in cache rows, logs, and metrics.
	Name() string
	// Geocode resolves free text to coordinates. It fails with
	// geocode.ErrNoMatch when the vendor has no answer, and with
	// ErrProviderUnavailable/ErrProviderRateLimited on faults.
	Geocode(ctx context.Context, query string) (geocode.Result, error)
}
