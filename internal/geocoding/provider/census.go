package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coverage_backend/internal/geocoding/geocode"
	"coverage_backend/platform/logger"
)

const censusTimeout = 15 * time.Second

// Census is an adapter for the US Census Bureau onelineaddress geocoder.
// It only resolves street addresses within the United States, so it sits
// behind Nominatim in the provider chain.
type Census struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewCensus creates a Census geocoder adapter.
func NewCensus(baseURL string, log *logger.Logger) *Census {
	return &Census{
		baseURL: baseURL,
		client:  &http.Client{Timeout: censusTimeout},
		log:     log,
	}
}

// Name implements Provider.
func (c *Census) Name() string { return "census" }

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode implements Provider. The Census API reports no confidence score,
// so matches carry a nil Confidence.
func (c *Census) Geocode(ctx context.Context, query string) (geocode.Result, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("benchmark", "Public_AR_Current")
	params.Set("format", "json")

	reqURL := fmt.Sprintf("%s/locations/onelineaddress?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return geocode.Result{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("census request failed", "error", err)
		return geocode.Result{}, fmt.Errorf("%w: %v", geocode.ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(resp.StatusCode); err != nil {
		c.log.Error("census upstream error", "status", resp.StatusCode)
		return geocode.Result{}, err
	}

	var payload censusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Error("failed to decode census payload", "error", err)
		return geocode.Result{}, fmt.Errorf("%w: decode: %v", geocode.ErrProviderUnavailable, err)
	}

	if len(payload.Result.AddressMatches) == 0 {
		return geocode.Result{}, geocode.ErrNoMatch
	}

	match := payload.Result.AddressMatches[0]
	result := geocode.Result{
		Latitude:         match.Coordinates.Y,
		Longitude:        match.Coordinates.X,
		FormattedAddress: match.MatchedAddress,
		ProviderName:     c.Name(),
	}
	if !result.Valid() {
		return geocode.Result{}, geocode.ErrNoMatch
	}
	return result, nil
}
