// Package transport defines the request/response DTOs for the geocoding
// HTTP surface.
package transport

import (
	"time"

	"coverage_backend/internal/geocoding/cache"
	"coverage_backend/internal/geocoding/geocode"
)

// GeocodeRequest is the query-string input for GET /geocode.
type GeocodeRequest struct {
	Query string `form:"q" binding:"required" validate:"required,max=512"`
}

// GeocodeResponse is the resolved location returned to clients.
type GeocodeResponse struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	FormattedAddress string   `json:"formattedAddress"`
	ProviderName     string   `json:"providerName"`
	Confidence       *float64 `json:"confidence,omitempty"`
	CacheHit         bool     `json:"cacheHit"`
}

// FromResult maps a domain result into the response DTO.
func FromResult(r geocode.Result) GeocodeResponse {
	return GeocodeResponse{
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		FormattedAddress: r.FormattedAddress,
		ProviderName:     r.ProviderName,
		Confidence:       r.Confidence,
		CacheHit:         r.CacheHit,
	}
}

// CachePurgeRequest is the JSON body for the admin purge endpoint.
type CachePurgeRequest struct {
	OlderThanHours int `json:"olderThanHours" binding:"required" validate:"required,min=1"`
	BatchSize      int `json:"batchSize" validate:"omitempty,min=1,max=10000"`
}

// CacheSweepResponse reports how many entries a sweep removed.
type CacheSweepResponse struct {
	Removed int64 `json:"removed"`
}

// CacheStatsResponse is the admin cache statistics payload.
type CacheStatsResponse struct {
	TotalEntries   int64            `json:"totalEntries"`
	ExpiredEntries int64            `json:"expiredEntries"`
	TotalHits      int64            `json:"totalHits"`
	MeanHitCount   float64          `json:"meanHitCount"`
	ByProvider     map[string]int64 `json:"byProvider"`
	OldestEntry    *time.Time       `json:"oldestEntry,omitempty"`
	NewestEntry    *time.Time       `json:"newestEntry,omitempty"`
}

// FromStats maps cache stats into the response DTO.
func FromStats(s cache.Stats) CacheStatsResponse {
	return CacheStatsResponse{
		TotalEntries:   s.TotalEntries,
		ExpiredEntries: s.ExpiredEntries,
		TotalHits:      s.TotalHits,
		MeanHitCount:   s.MeanHitCount,
		ByProvider:     s.ByProvider,
		OldestEntry:    s.OldestEntry,
		NewestEntry:    s.NewestEntry,
	}
}
