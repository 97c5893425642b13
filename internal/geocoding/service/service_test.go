package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"coverage_backend/internal/geo"
	"coverage_backend/internal/geocoding/cache"
	"coverage_backend/internal/geocoding/geocode"
	"coverage_backend/internal/geocoding/matcher"
	"coverage_backend/internal/geocoding/provider"
	"coverage_backend/internal/metrics"
	"coverage_backend/platform/apperr"
	"coverage_backend/platform/logger"
)

type testConfig struct{}

func (testConfig) GetGeocodeCacheTTL() time.Duration        { return 24 * time.Hour }
func (testConfig) GetGeocodeRequestBudget() time.Duration   { return 5 * time.Second }
func (testConfig) GetProviderTimeout() time.Duration        { return time.Second }
func (testConfig) GetRetryMaxAttempts() int                 { return 3 }
func (testConfig) GetRetryBaseDelay() time.Duration         { return time.Millisecond }
func (testConfig) GetBreakerFailureThreshold() int          { return 2 }
func (testConfig) GetBreakerRecoveryTimeout() time.Duration { return time.Minute }
func (testConfig) GetNominatimBaseURL() string              { return "" }
func (testConfig) GetNominatimUserAgent() string            { return "" }
func (testConfig) GetNominatimCountryCodes() string         { return "" }
func (testConfig) GetCensusBaseURL() string                 { return "" }
func (testConfig) IsCensusEnabled() bool                    { return false }

// fakeProvider scripts a sequence of results and records call counts.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	results []fakeCall
	calls   int
}

type fakeCall struct {
	result geocode.Result
	err    error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Geocode(_ context.Context, _ string) (geocode.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	i := f.calls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	c := f.results[i]
	return c.result, c.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func londonResult(name string) geocode.Result {
	return geocode.Result{
		Latitude:         37.1289,
		Longitude:        -84.0833,
		FormattedAddress: "London, KY",
		ProviderName:     name,
	}
}

func newService(t *testing.T, store cache.Store, providers []provider.Provider, fallback *matcherProvider) *Service {
	t.Helper()
	if store == nil {
		store = cache.NewMemory()
	}
	return New(testConfig{}, store, providers, fallback, nil, nil, logger.New("test"))
}

func TestResolveCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: "nominatim", results: []fakeCall{{result: londonResult("nominatim")}}}
	svc := newService(t, nil, []provider.Provider{p}, nil)

	first, err := svc.Resolve(ctx, "London, KY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first.CacheHit {
		t.Error("first resolution reported CacheHit")
	}

	second, err := svc.Resolve(ctx, "  london,   ky ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("normalized repeat query missed the cache")
	}
	if p.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", p.callCount())
	}
}

func TestResolveFallsThroughProviderChain(t *testing.T) {
	ctx := context.Background()
	first := &fakeProvider{name: "nominatim", results: []fakeCall{{err: geocode.ErrNoMatch}}}
	second := &fakeProvider{name: "census", results: []fakeCall{{result: londonResult("census")}}}
	svc := newService(t, nil, []provider.Provider{first, second}, nil)

	res, err := svc.Resolve(ctx, "London, KY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ProviderName != "census" {
		t.Errorf("ProviderName = %q, want census", res.ProviderName)
	}
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: "nominatim", results: []fakeCall{
		{err: geocode.ErrProviderUnavailable},
		{err: geocode.ErrProviderUnavailable},
		{result: londonResult("nominatim")},
	}}
	svc := newService(t, nil, []provider.Provider{p}, nil)

	res, err := svc.Resolve(ctx, "London, KY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ProviderName != "nominatim" {
		t.Errorf("ProviderName = %q", res.ProviderName)
	}
	if p.callCount() != 3 {
		t.Errorf("provider called %d times, want 3 (two retries)", p.callCount())
	}
}

func TestResolveInvalidVendorCoordinatesTreatedAsNoMatch(t *testing.T) {
	ctx := context.Background()
	nullIsland := &fakeProvider{name: "nominatim", results: []fakeCall{
		{result: geocode.Result{Latitude: 0, Longitude: 0, ProviderName: "nominatim"}},
	}}
	good := &fakeProvider{name: "census", results: []fakeCall{{result: londonResult("census")}}}
	svc := newService(t, nil, []provider.Provider{nullIsland, good}, nil)

	res, err := svc.Resolve(ctx, "London, KY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ProviderName != "census" {
		t.Errorf("null island result was accepted: %+v", res)
	}
}

func TestResolveFallbackWhenAllProvidersDown(t *testing.T) {
	ctx := context.Background()
	down := &fakeProvider{name: "nominatim", results: []fakeCall{{err: geocode.ErrProviderUnavailable}}}
	fallback := Fallback(matcher.New(areaSource{
		{Name: "London", StateCode: "KY", Center: geo.Point{Lat: 37.1289, Lng: -84.0833}},
	}))
	store := cache.NewMemory()
	svc := newService(t, store, []provider.Provider{down}, fallback)

	res, err := svc.Resolve(ctx, "London, KY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ProviderName != geocode.ProviderTextBased {
		t.Errorf("ProviderName = %q, want %q", res.ProviderName, geocode.ProviderTextBased)
	}
	if res.Confidence != nil {
		t.Errorf("Confidence = %v, want nil", *res.Confidence)
	}

	// Low-precision fallback results must not be cached.
	entry, err := store.Get(ctx, geocode.HashQuery("London, KY"))
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if entry != nil {
		t.Errorf("text fallback result was cached: %+v", entry)
	}
}

type areaSource []matcher.NamedCenter

func (a areaSource) NamedCenters(_ context.Context) ([]matcher.NamedCenter, error) {
	return a, nil
}

func TestResolveUnresolvedIsTypedNotFound(t *testing.T) {
	ctx := context.Background()
	down := &fakeProvider{name: "nominatim", results: []fakeCall{{err: geocode.ErrProviderUnavailable}}}
	svc := newService(t, nil, []provider.Provider{down}, Fallback(matcher.New(areaSource{})))

	_, err := svc.Resolve(ctx, "Nonexistent City, ZZ")
	if !errors.Is(err, geocode.ErrUnresolved) {
		t.Errorf("Resolve() error = %v, want ErrUnresolved", err)
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Resolve() error kind = %v, want KindNotFound", apperr.GetKind(err))
	}
}

func TestResolveOpenBreakerSkipsProviderWithoutCalling(t *testing.T) {
	ctx := context.Background()
	failing := &fakeProvider{name: "nominatim", results: []fakeCall{{err: geocode.ErrProviderUnavailable}}}
	backup := &fakeProvider{name: "census", results: []fakeCall{{result: londonResult("census")}}}
	svc := newService(t, nil, []provider.Provider{failing, backup}, nil)

	// The breaker wraps the whole retry loop, so each resolution counts as
	// one failure; threshold 2 needs two before the breaker opens.
	for _, q := range []string{"first query", "second query"} {
		if _, err := svc.Resolve(ctx, q); err != nil {
			t.Fatalf("Resolve(%q) error = %v", q, err)
		}
	}
	if got := svc.BreakerStates()["nominatim"]; got != "open" {
		t.Fatalf("breaker state = %q, want open", got)
	}

	before := failing.callCount()
	res, err := svc.Resolve(ctx, "third query")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ProviderName != "census" {
		t.Errorf("ProviderName = %q", res.ProviderName)
	}
	if failing.callCount() != before {
		t.Errorf("open breaker still invoked the provider (%d -> %d calls)", before, failing.callCount())
	}
}

func TestResolveCanceledContextDoesNotPopulateCache(t *testing.T) {
	store := cache.NewMemory()
	release := make(chan struct{})
	p := &slowProvider{name: "nominatim", release: release, result: londonResult("nominatim")}
	svc := newService(t, store, []provider.Provider{p}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Resolve(ctx, "London, KY")
	}()

	cancel()
	close(release)
	<-done

	entry, err := store.Get(context.Background(), geocode.HashQuery("London, KY"))
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if entry != nil {
		t.Errorf("abandoned resolution populated the cache: %+v", entry)
	}
}

// slowProvider blocks until released, then answers. Cancellation of the
// request context does not interrupt it, mimicking a response that lands
// after the caller has gone away.
type slowProvider struct {
	name    string
	release chan struct{}
	result  geocode.Result
}

func (s *slowProvider) Name() string { return s.name }

func (s *slowProvider) Geocode(_ context.Context, _ string) (geocode.Result, error) {
	<-s.release
	return s.result, nil
}

func TestResolveValidation(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "   ")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("empty query error = %v, want validation", err)
	}

	long := make([]rune, geocode.MaxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Resolve(context.Background(), string(long))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("oversized query error = %v, want validation", err)
	}
}

func TestResolveCoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	p := &slowProvider{name: "nominatim", release: release, result: londonResult("nominatim")}
	svc := newService(t, nil, []provider.Provider{p}, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]geocode.Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Resolve(context.Background(), "London, KY")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Resolve()[%d] error = %v", i, errs[i])
		}
		if results[i].Latitude != 37.1289 {
			t.Errorf("Resolve()[%d] = %+v", i, results[i])
		}
	}
}

func TestResolveRecordsProviderDuration(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	down := &fakeProvider{name: "nominatim", results: []fakeCall{{err: geocode.ErrProviderUnavailable}}}
	up := &fakeProvider{name: "census", results: []fakeCall{{result: londonResult("census")}}}
	svc := New(testConfig{}, cache.NewMemory(), []provider.Provider{down, up}, nil, nil, collector, logger.New("test"))

	if _, err := svc.Resolve(ctx, "London, KY"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	samples := providerDurationSamples(t, reg)
	if samples["nominatim/error"] != 1 {
		t.Errorf("nominatim error observations = %d, want 1", samples["nominatim/error"])
	}
	if samples["census/ok"] != 1 {
		t.Errorf("census ok observations = %d, want 1", samples["census/ok"])
	}
	if got := testutil.ToFloat64(collector.GeocodeRequests.WithLabelValues("census")); got != 1 {
		t.Errorf("geocode_requests_total{outcome=census} = %v, want 1", got)
	}
}

// providerDurationSamples returns the provider call histogram's sample counts
// keyed by "provider/result".
func providerDurationSamples(t *testing.T, reg *prometheus.Registry) map[string]uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	samples := make(map[string]uint64)
	for _, mf := range families {
		if mf.GetName() != "geocode_provider_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var prov, result string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "provider":
					prov = l.GetValue()
				case "result":
					result = l.GetValue()
				}
			}
			samples[prov+"/"+result] = m.GetHistogram().GetSampleCount()
		}
	}
	return samples
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	svc := newService(t, store, nil, nil)

	now := time.Now()
	for _, e := range []cache.Entry{
		{QueryHash: geocode.HashQuery("stale"), CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{QueryHash: geocode.HashQuery("live"), CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := store.Put(ctx, e); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	removed, err := svc.CleanupExpired(ctx, 0)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}

	stats, err := svc.CacheStats(ctx)
	if err != nil {
		t.Fatalf("CacheStats() error = %v", err)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", stats.TotalEntries)
	}
}
