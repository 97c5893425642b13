// Package service orchestrates the geocode resolution pipeline: cache
// lookup, the provider chain guarded by per-provider circuit breakers and
// retry, and the offline text fallback when every vendor is down.
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"coverage_backend/internal/events"
	"coverage_backend/internal/geocoding/breaker"
	"coverage_backend/internal/geocoding/cache"
	"coverage_backend/internal/geocoding/geocode"
	"coverage_backend/internal/geocoding/provider"
	"coverage_backend/internal/geocoding/retry"
	"coverage_backend/internal/metrics"
	"coverage_backend/platform/apperr"
	"coverage_backend/platform/config"
	"coverage_backend/platform/logger"
)

// guarded pairs a provider with its breaker. The breaker wraps the whole
// retry loop, so one Resolve call counts as at most one breaker failure.
type guarded struct {
	provider provider.Provider
	breaker  *breaker.Breaker
}

// Service resolves free-text location queries.
type Service struct {
	cfg       config.GeocodingConfig
	cache     cache.Store
	providers []guarded
	fallback  *matcherProvider
	policy    retry.Policy
	bus       events.Bus
	metrics   *metrics.Collector
	log       *logger.Logger
	group     singleflight.Group
	now       func() time.Time
}

// matcherProvider is the minimal surface the service needs from the offline
// text matcher.
type matcherProvider struct {
	geocode func(ctx context.Context, query string) (geocode.Result, error)
}

// Fallback adapts any provider-shaped resolver into the service's offline
// fallback slot.
func Fallback(p provider.Provider) *matcherProvider {
	return &matcherProvider{geocode: p.Geocode}
}

// New creates the geocoding service. Each provider gets its own breaker;
// transitions are logged, gauged, and published as domain events.
func New(
	cfg config.GeocodingConfig,
	store cache.Store,
	providers []provider.Provider,
	fallback *matcherProvider,
	bus events.Bus,
	collector *metrics.Collector,
	log *logger.Logger,
) *Service {
	s := &Service{
		cfg:      cfg,
		cache:    store,
		fallback: fallback,
		bus:      bus,
		metrics:  collector,
		log:      log,
		now:      time.Now,
		policy: retry.Policy{
			MaxAttempts: cfg.GetRetryMaxAttempts(),
			BaseDelay:   cfg.GetRetryBaseDelay(),
			IsRetryable: geocode.IsTransient,
		},
	}

	for _, p := range providers {
		s.providers = append(s.providers, guarded{
			provider: p,
			breaker: breaker.New(breaker.Options{
				Name:             p.Name(),
				FailureThreshold: cfg.GetBreakerFailureThreshold(),
				RecoveryTimeout:  cfg.GetBreakerRecoveryTimeout(),
				IsFailure:        geocode.IsTransient,
				OnTransition:     s.onBreakerTransition,
			}),
		})
	}
	return s
}

func (s *Service) onBreakerTransition(name string, from, to breaker.State, failureCount int) {
	s.log.BreakerTransition(name, from.String(), to.String(), failureCount)
	if s.metrics != nil {
		s.metrics.BreakerState.WithLabelValues(name).Set(float64(breakerGauge(to)))
	}
	if s.bus != nil {
		s.bus.Publish(context.Background(), events.BreakerStateChanged{
			BaseEvent:    events.NewBaseEvent(),
			Provider:     name,
			From:         from.String(),
			To:           to.String(),
			FailureCount: failureCount,
		})
	}
}

func breakerGauge(st breaker.State) int {
	switch st {
	case breaker.StateOpen:
		return metrics.BreakerStateOpen
	case breaker.StateHalfOpen:
		return metrics.BreakerStateHalfOpen
	default:
		return metrics.BreakerStateClosed
	}
}

// Resolve geocodes a free-text query. Concurrent calls for the same
// normalized query are coalesced; everyone shares the first caller's result.
func (s *Service) Resolve(ctx context.Context, query string) (geocode.Result, error) {
	normalized := geocode.NormalizeQuery(query)
	if normalized == "" {
		return geocode.Result{}, apperr.Validation("query is required")
	}
	if len([]rune(normalized)) > geocode.MaxQueryLength {
		return geocode.Result{}, apperr.Validation("query exceeds maximum length")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetGeocodeRequestBudget())
	defer cancel()

	start := s.now()
	hash := geocode.HashQuery(normalized)

	v, err, _ := s.group.Do(hash, func() (any, error) {
		res, err := s.resolve(ctx, normalized, hash)
		if err != nil {
			return geocode.Result{}, err
		}
		return res, nil
	})

	elapsed := s.now().Sub(start)
	if err != nil {
		s.observe("unresolved", elapsed)
		s.log.GeocodeEvent("", false, float64(elapsed.Milliseconds()), err)
		return geocode.Result{}, err
	}

	res := v.(geocode.Result)
	outcome := res.ProviderName
	if res.CacheHit {
		outcome = "cache_hit"
	}
	s.observe(outcome, elapsed)
	s.log.GeocodeEvent(res.ProviderName, res.CacheHit, float64(elapsed.Milliseconds()), nil)
	if s.bus != nil {
		s.bus.Publish(ctx, events.GeocodeResolved{
			BaseEvent: events.NewBaseEvent(),
			Provider:  res.ProviderName,
			CacheHit:  res.CacheHit,
			Fallback:  res.ProviderName == geocode.ProviderTextBased,
		})
	}
	return res, nil
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	s.metrics.GeocodeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (s *Service) resolve(ctx context.Context, normalized, hash string) (geocode.Result, error) {
	entry, err := s.cache.Get(ctx, hash)
	if err != nil {
		// A broken cache degrades to a vendor round trip, never an error.
		s.log.Error("geocode cache read failed", "error", err)
	}
	if entry != nil {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		res := entry.Result
		res.CacheHit = true
		return res, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	for _, g := range s.providers {
		res, err := s.callProvider(ctx, g, normalized)
		if err == nil {
			s.store(ctx, normalized, hash, res)
			return res, nil
		}
		if !shouldTryNext(err) {
			return geocode.Result{}, err
		}
	}

	if s.fallback != nil {
		res, err := s.fallback.geocode(ctx, normalized)
		if err == nil {
			// Fallback results are low precision and derive from local data
			// that may be corrected at any time, so they are never cached.
			return res, nil
		}
		if !errors.Is(err, geocode.ErrNoMatch) {
			s.log.Error("text fallback failed", "error", err)
		}
	}

	return geocode.Result{}, apperr.Wrap(apperr.KindNotFound, "location could not be resolved", geocode.ErrUnresolved)
}

// shouldTryNext reports whether a provider failure should fall through to
// the next provider rather than abort the whole resolution.
func shouldTryNext(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, geocode.ErrNoMatch) ||
		geocode.IsTransient(err) ||
		errors.Is(err, breaker.ErrOpen)
}

func (s *Service) callProvider(ctx context.Context, g guarded, query string) (geocode.Result, error) {
	var res geocode.Result
	start := s.now()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.policy.Execute(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.GetProviderTimeout())
			defer cancel()

			r, err := g.provider.Geocode(attemptCtx, query)
			if err != nil {
				return err
			}
			if !r.Valid() {
				return geocode.ErrNoMatch
			}
			res = r
			return nil
		})
	})
	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.ProviderDuration.WithLabelValues(g.provider.Name(), result).Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		return geocode.Result{}, err
	}
	return res, nil
}

// store writes a freshly resolved result into the cache. A call whose
// context is already done never populates the cache: its result may be
// incomplete and its caller is gone.
func (s *Service) store(ctx context.Context, normalized, hash string, res geocode.Result) {
	if ctx.Err() != nil {
		return
	}
	now := s.now()
	err := s.cache.Put(ctx, cache.Entry{
		QueryHash:       hash,
		NormalizedQuery: normalized,
		Result:          res,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.GetGeocodeCacheTTL()),
		LastAccessedAt:  now,
	})
	if err != nil {
		s.log.Error("geocode cache write failed", "error", err)
	}
}

// CleanupExpired removes expired cache entries in batches. It is invoked by
// the scheduler's sweep task and by the admin endpoint.
func (s *Service) CleanupExpired(ctx context.Context, batchSize int) (int64, error) {
	removed, err := s.cache.SweepExpired(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	s.recordSweep(ctx, "expired", removed)
	return removed, nil
}

// CleanupOlderThan purges entries created before the cutoff regardless of
// expiry, for operator-driven invalidation after upstream data fixes.
func (s *Service) CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	removed, err := s.cache.SweepOlderThan(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	s.recordSweep(ctx, "older_than", removed)
	return removed, nil
}

func (s *Service) recordSweep(ctx context.Context, key string, removed int64) {
	s.log.Info("geocode cache sweep finished", "sweep", key, "removed", removed)
	if s.metrics != nil {
		s.metrics.CacheSweeps.WithLabelValues(key).Add(float64(removed))
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.CacheSwept{
			BaseEvent: events.NewBaseEvent(),
			Removed:   removed,
			SweepKey:  key,
		})
	}
}

// CacheStats returns an aggregate snapshot of the cache contents.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.cache.Stats(ctx)
}

// BreakerStates reports each provider's current breaker state, for the
// health endpoint.
func (s *Service) BreakerStates() map[string]string {
	out := make(map[string]string, len(s.providers))
	for _, g := range s.providers {
		out[g.provider.Name()] = g.breaker.State().String()
	}
	return out
}
