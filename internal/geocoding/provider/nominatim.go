package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"coverage_backend/internal/geocoding/geocode"
	"coverage_backend/platform/logger"
)

const nominatimTimeout = 15 * time.Second

// Nominatim is an adapter for the OSM Nominatim search API.
type Nominatim struct {
	baseURL      string
	userAgent    string
	countryCodes string
	client       *http.Client
	limiter      *rate.Limiter
	log          *logger.Logger
}

// NominatimConfig configures the Nominatim adapter.
type NominatimConfig struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
}

// NewNominatim creates a Nominatim adapter. The public instance requires a
// descriptive User-Agent and at most one request per second; the limiter
// enforces the latter across concurrent callers.
func NewNominatim(cfg NominatimConfig, log *logger.Logger) *Nominatim {
	return &Nominatim{
		baseURL:      cfg.BaseURL,
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		client:       &http.Client{Timeout: nominatimTimeout},
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
		log:          log,
	}
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// nominatimResult mirrors the relevant parts of the OSM search payload.
type nominatimResult struct {
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
}

// Geocode implements Provider.
func (n *Nominatim) Geocode(ctx context.Context, query string) (geocode.Result, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return geocode.Result{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}

	reqURL := fmt.Sprintf("%s/search?%s", n.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return geocode.Result{}, err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("nominatim request failed", "error", err)
		return geocode.Result{}, fmt.Errorf("%w: %v", geocode.ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(resp.StatusCode); err != nil {
		n.log.Error("nominatim upstream error", "status", resp.StatusCode)
		return geocode.Result{}, err
	}

	var raw []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		n.log.Error("failed to decode nominatim payload", "error", err)
		return geocode.Result{}, fmt.Errorf("%w: decode: %v", geocode.ErrProviderUnavailable, err)
	}

	if len(raw) == 0 {
		return geocode.Result{}, geocode.ErrNoMatch
	}

	lat, err := strconv.ParseFloat(raw[0].Lat, 64)
	if err != nil {
		return geocode.Result{}, fmt.Errorf("%w: bad latitude %q", geocode.ErrProviderUnavailable, raw[0].Lat)
	}
	lon, err := strconv.ParseFloat(raw[0].Lon, 64)
	if err != nil {
		return geocode.Result{}, fmt.Errorf("%w: bad longitude %q", geocode.ErrProviderUnavailable, raw[0].Lon)
	}

	result := geocode.Result{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: raw[0].DisplayName,
		ProviderName:     n.Name(),
		Confidence:       clampConfidence(raw[0].Importance),
	}
	if !result.Valid() {
		return geocode.Result{}, geocode.ErrNoMatch
	}
	return result, nil
}

// classifyStatus maps HTTP status codes onto the provider error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", geocode.ErrProviderRateLimited, status)
	case status == http.StatusNotFound:
		return geocode.ErrNoMatch
	default:
		return fmt.Errorf("%w: status %d", geocode.ErrProviderUnavailable, status)
	}
}

// clampConfidence maps Nominatim's open-ended importance score into [0,1].
func clampConfidence(importance float64) *float64 {
	if importance <= 0 {
		return nil
	}
	if importance > 1 {
		importance = 1
	}
	return &importance
}
