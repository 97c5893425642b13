// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"coverage_backend/platform/events"
	"coverage_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = events.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Geocoding Domain Events
// =============================================================================

// BreakerStateChanged is published on every circuit breaker transition.
// Observers (logs, metrics) consume it; it never interrupts the caller.
type BreakerStateChanged struct {
	BaseEvent
	Provider     string `json:"provider"`
	From         string `json:"from"`
	To           string `json:"to"`
	FailureCount int    `json:"failureCount"`
}

func (e BreakerStateChanged) EventName() string { return "geocoding.breaker.state_changed" }

// GeocodeResolved is published when a query resolves through any path.
type GeocodeResolved struct {
	BaseEvent
	Provider string `json:"provider"`
	CacheHit bool   `json:"cacheHit"`
	Fallback bool   `json:"fallback"`
}

func (e GeocodeResolved) EventName() string { return "geocoding.query.resolved" }

// CacheSwept is published after a sweep removes expired cache entries.
type CacheSwept struct {
	BaseEvent
	Removed  int64  `json:"removed"`
	SweepKey string `json:"sweepKey"` // "expired" or "older_than"
}

func (e CacheSwept) EventName() string { return "geocoding.cache.swept" }

// =============================================================================
// Coverage Domain Events
// =============================================================================

// CoverageAreaChanged is published when a coverage area is created, updated,
// or deleted, so the spatial index can refresh its snapshot.
type CoverageAreaChanged struct {
	BaseEvent
	AreaID uuid.UUID `json:"areaId"`
	Action string    `json:"action"` // created | updated | deleted
}

func (e CoverageAreaChanged) EventName() string { return "coverage.area.changed" }
