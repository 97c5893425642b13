// Package matcher is the offline text fallback: it resolves free-text
// queries against the names of known administrative coverage areas without
// any network I/O, returning the area's center as a low-precision result.
package matcher

import (
	"context"
	"strings"

	"coverage_backend/internal/geo"
	"coverage_backend/internal/geocoding/geocode"
)

// NamedCenter is an administrative area name with its representative point,
// as exposed by the coverage store.
type NamedCenter struct {
	Name      string
	StateCode string
	Center    geo.Point
}

// AreaSource lists the named administrative centers the matcher can resolve
// against. Implementations may cache; the matcher treats every call as a
// fresh snapshot.
type AreaSource interface {
	NamedCenters(ctx context.Context) ([]NamedCenter, error)
}

// Matcher resolves text against known area names. It satisfies the provider
// Geocode signature so the service can run it as the last resort, but it is
// deliberately not registered behind a breaker: it cannot fail transiently.
type Matcher struct {
	source AreaSource
}

// New creates a Matcher over the given area source.
func New(source AreaSource) *Matcher {
	return &Matcher{source: source}
}

// Name reports the provider name stamped on fallback results.
func (m *Matcher) Name() string { return geocode.ProviderTextBased }

// Geocode resolves the query offline. Exact name matches win over partial
// ones, and a trailing state abbreviation in the query ("London, KY")
// restricts both passes to that state. Results carry no confidence score.
func (m *Matcher) Geocode(ctx context.Context, query string) (geocode.Result, error) {
	centers, err := m.source.NamedCenters(ctx)
	if err != nil {
		return geocode.Result{}, err
	}

	text, state := splitStateContext(geocode.NormalizeQuery(query))
	if text == "" {
		return geocode.Result{}, geocode.ErrNoMatch
	}

	if c, ok := findExact(centers, text, state); ok {
		return m.result(c), nil
	}
	if c, ok := findPartial(centers, text, state); ok {
		return m.result(c), nil
	}
	return geocode.Result{}, geocode.ErrNoMatch
}

func (m *Matcher) result(c NamedCenter) geocode.Result {
	label := c.Name
	if c.StateCode != "" {
		label = c.Name + ", " + c.StateCode
	}
	return geocode.Result{
		Latitude:         c.Center.Lat,
		Longitude:        c.Center.Lng,
		FormattedAddress: label,
		ProviderName:     geocode.ProviderTextBased,
	}
}

// splitStateContext peels a trailing two-letter state abbreviation off a
// normalized query, either comma-separated ("london, ky") or as the final
// token ("london ky").
func splitStateContext(normalized string) (text, state string) {
	if before, after, ok := strings.Cut(normalized, ","); ok {
		candidate := strings.TrimSpace(after)
		if isStateCode(candidate) {
			return strings.TrimSpace(before), candidate
		}
		return strings.TrimSpace(strings.ReplaceAll(normalized, ",", " ")), ""
	}

	fields := strings.Fields(normalized)
	if len(fields) >= 2 {
		last := fields[len(fields)-1]
		if isStateCode(last) {
			return strings.Join(fields[:len(fields)-1], " "), last
		}
	}
	return normalized, ""
}

func isStateCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func stateMatches(c NamedCenter, state string) bool {
	return state == "" || strings.EqualFold(c.StateCode, state)
}

func findExact(centers []NamedCenter, text, state string) (NamedCenter, bool) {
	for _, c := range centers {
		if !stateMatches(c, state) {
			continue
		}
		if geocode.NormalizeQuery(c.Name) == text {
			return c, true
		}
	}
	return NamedCenter{}, false
}

// findPartial accepts a containment match in either direction: the query
// inside the area name ("laurel" in "laurel county") or the area name
// inside the query ("laurel county" in "laurel county courthouse").
func findPartial(centers []NamedCenter, text, state string) (NamedCenter, bool) {
	for _, c := range centers {
		if !stateMatches(c, state) {
			continue
		}
		name := geocode.NormalizeQuery(c.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, text) || strings.Contains(text, name) {
			return c, true
		}
	}
	return NamedCenter{}, false
}
