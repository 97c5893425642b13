package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/coverage/spatial"
	"coverage_backend/internal/geo"
	"coverage_backend/platform/apperr"
	"coverage_backend/platform/logger"
)

type testResolverConfig struct {
	spatialEnabled bool
}

func (c testResolverConfig) GetDefaultRadiusMiles() float64 { return 30 }
func (c testResolverConfig) IsSpatialEnabled() bool         { return c.spatialEnabled }
func (c testResolverConfig) GetSpatialIndexResolution() int { return 5 }

// fakeRepo is an in-memory Repository for resolver tests.
type fakeRepo struct {
	areas     []repository.CoverageArea
	resources map[uuid.UUID]repository.Resource
	links     []repository.ResourceCoverage
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{resources: make(map[uuid.UUID]repository.Resource)}
}

func (f *fakeRepo) CreateArea(_ context.Context, area repository.CoverageArea) (repository.CoverageArea, error) {
	area.ID = uuid.New()
	f.areas = append(f.areas, area)
	return area, nil
}

func (f *fakeRepo) GetArea(_ context.Context, id uuid.UUID) (repository.CoverageArea, error) {
	for _, a := range f.areas {
		if a.ID == id {
			return a, nil
		}
	}
	return repository.CoverageArea{}, apperr.NotFound("coverage area not found")
}

func (f *fakeRepo) ListAreas(_ context.Context, kind *repository.Kind) ([]repository.CoverageArea, error) {
	if kind == nil {
		return f.areas, nil
	}
	var out []repository.CoverageArea
	for _, a := range f.areas {
		if a.Kind == *kind {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateArea(_ context.Context, area repository.CoverageArea) (repository.CoverageArea, error) {
	for i := range f.areas {
		if f.areas[i].ID == area.ID {
			f.areas[i] = area
			return area, nil
		}
	}
	return repository.CoverageArea{}, apperr.NotFound("coverage area not found")
}

func (f *fakeRepo) DeleteArea(_ context.Context, id uuid.UUID) error {
	for i := range f.areas {
		if f.areas[i].ID == id {
			f.areas = append(f.areas[:i], f.areas[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("coverage area not found")
}

func (f *fakeRepo) NamedCenters(_ context.Context) ([]repository.AreaCenter, error) {
	var out []repository.AreaCenter
	for _, a := range f.areas {
		if !a.Kind.Administrative() {
			continue
		}
		rep, ok := a.RepresentativePoint()
		if !ok {
			continue
		}
		state := ""
		if a.StateCode != nil {
			state = *a.StateCode
		}
		out = append(out, repository.AreaCenter{Name: a.Name, StateCode: state, Center: rep})
	}
	return out, nil
}

func (f *fakeRepo) CreateResource(_ context.Context, res repository.Resource) (repository.Resource, error) {
	res.ID = uuid.New()
	f.resources[res.ID] = res
	return res, nil
}

func (f *fakeRepo) GetResource(_ context.Context, id uuid.UUID) (repository.Resource, error) {
	res, ok := f.resources[id]
	if !ok {
		return repository.Resource{}, apperr.NotFound("resource not found")
	}
	return res, nil
}

func (f *fakeRepo) ListResources(_ context.Context) ([]repository.Resource, error) {
	var out []repository.Resource
	for _, r := range f.resources {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) UpdateResource(_ context.Context, res repository.Resource) (repository.Resource, error) {
	if _, ok := f.resources[res.ID]; !ok {
		return repository.Resource{}, apperr.NotFound("resource not found")
	}
	f.resources[res.ID] = res
	return res, nil
}

func (f *fakeRepo) DeleteResource(_ context.Context, id uuid.UUID) error {
	if _, ok := f.resources[id]; !ok {
		return apperr.NotFound("resource not found")
	}
	delete(f.resources, id)
	return nil
}

func (f *fakeRepo) LinkCoverage(_ context.Context, link repository.ResourceCoverage) (repository.ResourceCoverage, error) {
	link.ID = uuid.New()
	f.links = append(f.links, link)
	return link, nil
}

func (f *fakeRepo) UnlinkCoverage(_ context.Context, resourceID, areaID uuid.UUID) error {
	for i, l := range f.links {
		if l.ResourceID == resourceID && l.CoverageAreaID == areaID {
			f.links = append(f.links[:i], f.links[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("association not found")
}

func (f *fakeRepo) ListCoverageForResource(_ context.Context, resourceID uuid.UUID) ([]repository.CoverageArea, error) {
	var out []repository.CoverageArea
	for _, l := range f.links {
		if l.ResourceID != resourceID {
			continue
		}
		for _, a := range f.areas {
			if a.ID == l.CoverageAreaID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ResourcesForAreas(_ context.Context, areaIDs []uuid.UUID) ([]repository.ResourceLink, error) {
	wanted := make(map[uuid.UUID]bool, len(areaIDs))
	for _, id := range areaIDs {
		wanted[id] = true
	}
	var out []repository.ResourceLink
	for _, l := range f.links {
		if !wanted[l.CoverageAreaID] {
			continue
		}
		res, ok := f.resources[l.ResourceID]
		if !ok {
			continue
		}
		out = append(out, repository.ResourceLink{Resource: res, CoverageAreaID: l.CoverageAreaID})
	}
	return out, nil
}

func (f *fakeRepo) SearchResourcesByCityState(_ context.Context, city, stateCode string) ([]repository.Resource, error) {
	var out []repository.Resource
	for _, r := range f.resources {
		if city != "" && (r.City == nil || *r.City != city) {
			continue
		}
		if stateCode != "" && (r.StateCode == nil || *r.StateCode != stateCode) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

// Fixture geography around London, KY (37.1289, -84.0833).

func strPtr(s string) *string      { return &s }
func f64Ptr(f float64) *float64    { return &f }
func ptPtr(p geo.Point) *geo.Point { return &p }

// squareAround builds a closed square polygon of roughly `halfDeg` degrees
// around a center point.
func squareAround(center geo.Point, halfDeg float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{center.Lng - halfDeg, center.Lat - halfDeg},
		{center.Lng + halfDeg, center.Lat - halfDeg},
		{center.Lng + halfDeg, center.Lat + halfDeg},
		{center.Lng - halfDeg, center.Lat + halfDeg},
		{center.Lng - halfDeg, center.Lat - halfDeg},
	}}
}

type fixture struct {
	svc  *Service
	repo *fakeRepo

	cityResource   repository.Resource
	countyResource repository.Resource
	stateResource  repository.Resource
	radiusResource repository.Resource

	cityArea   repository.CoverageArea
	countyArea repository.CoverageArea
	stateArea  repository.CoverageArea
	radiusArea repository.CoverageArea
}

var london = geo.Point{Lat: 37.1289, Lng: -84.0833}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := newFakeRepo()
	svc := New(repo, spatial.NewIndex(5), testResolverConfig{spatialEnabled: true}, nil, nil, nil, logger.New("test"))

	f := &fixture{svc: svc, repo: repo}

	var err error
	f.stateArea, err = repo.CreateArea(ctx, repository.CoverageArea{
		Kind:      repository.KindState,
		Name:      "Kentucky",
		StateCode: strPtr("KY"),
		Center:    ptPtr(geo.Point{Lat: 37.8393, Lng: -84.2700}),
		Geometry:  squareAround(geo.Point{Lat: 37.8, Lng: -85.7}, 3.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.countyArea, err = repo.CreateArea(ctx, repository.CoverageArea{
		Kind:      repository.KindCounty,
		Name:      "Laurel County",
		StateCode: strPtr("KY"),
		Center:    ptPtr(geo.Point{Lat: 37.1106, Lng: -84.1180}),
		Geometry:  squareAround(geo.Point{Lat: 37.1106, Lng: -84.1180}, 0.25),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.cityArea, err = repo.CreateArea(ctx, repository.CoverageArea{
		Kind:      repository.KindCity,
		Name:      "London",
		StateCode: strPtr("KY"),
		Center:    ptPtr(london),
		Geometry:  squareAround(london, 0.08),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.radiusArea, err = repo.CreateArea(ctx, repository.CoverageArea{
		Kind:         repository.KindRadius,
		Name:         "London 10mi service radius",
		Center:       ptPtr(london),
		RadiusMeters: f64Ptr(geo.MilesToMeters(10)),
	})
	if err != nil {
		t.Fatal(err)
	}

	mkResource := func(name string, area repository.CoverageArea) repository.Resource {
		res, err := repo.CreateResource(ctx, repository.Resource{Name: name, Published: true})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := repo.LinkCoverage(ctx, repository.ResourceCoverage{ResourceID: res.ID, CoverageAreaID: area.ID}); err != nil {
			t.Fatal(err)
		}
		return res
	}

	f.stateResource = mkResource("Statewide Helpline", f.stateArea)
	f.countyResource = mkResource("Laurel County Outreach", f.countyArea)
	f.cityResource = mkResource("London Community Center", f.cityArea)
	f.radiusResource = mkResource("London Mobile Clinic", f.radiusArea)

	if err := svc.RebuildIndex(ctx); err != nil {
		t.Fatalf("RebuildIndex() error = %v", err)
	}
	return f
}

func TestResolveRanksBySpecificityThenDistance(t *testing.T) {
	f := newFixture(t)

	matches, err := f.svc.Resolve(context.Background(), london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("got %d matches, want 4: %+v", len(matches), matches)
	}

	// Radius (5) first, then City (4), County (3), State (2).
	wantOrder := []uuid.UUID{f.radiusResource.ID, f.cityResource.ID, f.countyResource.ID, f.stateResource.ID}
	for i, want := range wantOrder {
		if matches[i].Resource.ID != want {
			t.Errorf("rank %d = %s (kind %s), want resource %s", i, matches[i].Resource.Name, matches[i].AreaKind, want)
		}
	}

	for _, m := range matches[:3] {
		if m.DistanceMiles > 5 {
			t.Errorf("%s distance = %.1f miles, expected nearby", m.Resource.Name, m.DistanceMiles)
		}
	}
}

func TestResolveRadiusAreaIncludesAllInsidePoints(t *testing.T) {
	f := newFixture(t)

	// Sample points well inside the 10 mile circle.
	points := []geo.Point{
		london,
		{Lat: london.Lat + 0.05, Lng: london.Lng},
		{Lat: london.Lat, Lng: london.Lng - 0.09},
		{Lat: london.Lat - 0.07, Lng: london.Lng + 0.04},
	}
	for _, p := range points {
		matches, err := f.svc.Resolve(context.Background(), p.Lat, p.Lng)
		if err != nil {
			t.Fatalf("Resolve(%v) error = %v", p, err)
		}
		found := false
		for _, m := range matches {
			if m.Resource.ID == f.radiusResource.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("point %v inside the radius circle did not match the radius resource", p)
		}
	}
}

func TestResolveOutsideEveryAreaIsEmpty(t *testing.T) {
	f := newFixture(t)

	// Pacific Ocean, far from every fixture area.
	matches, err := f.svc.Resolve(context.Background(), 30.0, -140.0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0: %+v", len(matches), matches)
	}
}

func TestResolveDeduplicatesToSingleBestMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Link the state resource to the city area as well: it must appear once,
	// ranked at the city's specificity.
	if _, err := f.repo.LinkCoverage(ctx, repository.ResourceCoverage{
		ResourceID:     f.stateResource.ID,
		CoverageAreaID: f.cityArea.ID,
	}); err != nil {
		t.Fatal(err)
	}

	matches, err := f.svc.Resolve(ctx, london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	count := 0
	for _, m := range matches {
		if m.Resource.ID == f.stateResource.ID {
			count++
			if m.AreaID != f.cityArea.ID {
				t.Errorf("best match area = %s, want the city area", m.AreaName)
			}
			if m.SpecificityScore != repository.KindCity.SpecificityScore() {
				t.Errorf("SpecificityScore = %d, want city score", m.SpecificityScore)
			}
		}
	}
	if count != 1 {
		t.Errorf("resource appeared %d times, want exactly once", count)
	}
}

func TestResolveHonorsEligibilityPredicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unpublished := f.cityResource
	unpublished.Published = false
	if _, err := f.repo.UpdateResource(ctx, unpublished); err != nil {
		t.Fatal(err)
	}

	matches, err := f.svc.Resolve(ctx, london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, m := range matches {
		if m.Resource.ID == f.cityResource.ID {
			t.Error("unpublished resource leaked into results")
		}
	}
}

func TestResolvePlaceholderAreaNeverMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// County row inserted by bulk import without geometry yet.
	placeholder, err := f.repo.CreateArea(ctx, repository.CoverageArea{
		Kind:      repository.KindCounty,
		Name:      "Knox County",
		StateCode: strPtr("KY"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.repo.CreateResource(ctx, repository.Resource{Name: "Knox Services", Published: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.LinkCoverage(ctx, repository.ResourceCoverage{ResourceID: res.ID, CoverageAreaID: placeholder.ID}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RebuildIndex(ctx); err != nil {
		t.Fatal(err)
	}

	matches, err := f.svc.Resolve(ctx, london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, m := range matches {
		if m.Resource.ID == res.ID {
			t.Error("geometry-less placeholder area matched spatially")
		}
	}
}

func TestIndexAndFullScanAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Same service graph minus the index: containment falls back to a
	// full scan, and the results must not differ.
	unindexed := New(f.repo, nil, testResolverConfig{spatialEnabled: true}, nil, nil, nil, logger.New("test"))

	points := []geo.Point{
		london,
		{Lat: london.Lat + 0.05, Lng: london.Lng - 0.02},
		{Lat: 37.8393, Lng: -84.2700},
		{Lat: 30.0, Lng: -140.0},
	}
	for _, p := range points {
		indexed, err := f.svc.Resolve(ctx, p.Lat, p.Lng)
		if err != nil {
			t.Fatalf("Resolve(%v) with index error = %v", p, err)
		}
		scanned, err := unindexed.Resolve(ctx, p.Lat, p.Lng)
		if err != nil {
			t.Fatalf("Resolve(%v) without index error = %v", p, err)
		}
		if len(indexed) != len(scanned) {
			t.Fatalf("point %v: index found %d matches, full scan %d", p, len(indexed), len(scanned))
		}
		for i := range indexed {
			if indexed[i].Resource.ID != scanned[i].Resource.ID || indexed[i].AreaID != scanned[i].AreaID {
				t.Errorf("point %v rank %d: index %s/%s vs scan %s/%s",
					p, i, indexed[i].Resource.Name, indexed[i].AreaName,
					scanned[i].Resource.Name, scanned[i].AreaName)
			}
		}
	}
}

func TestResolveRejectsInvalidCoordinates(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ lat, lng float64 }{
		{0, 0},
		{91, -84},
		{37, -181},
	} {
		_, err := f.svc.Resolve(context.Background(), tc.lat, tc.lng)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("Resolve(%v, %v) error = %v, want validation", tc.lat, tc.lng, err)
		}
	}
}

func TestResolveDegradesWhenSpatialDisabled(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, testResolverConfig{spatialEnabled: false}, nil, nil, nil, logger.New("test"))

	matches, err := svc.Resolve(context.Background(), london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("Resolve() error = %v, want graceful degradation", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("got %v, want empty non-nil slice", matches)
	}
}

func TestResolveByCityState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.repo.CreateResource(ctx, repository.Resource{
		Name: "London Pantry", City: strPtr("London"), StateCode: strPtr("KY"), Published: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	hidden, err := f.repo.CreateResource(ctx, repository.Resource{
		Name: "Hidden Pantry", City: strPtr("London"), StateCode: strPtr("KY"), Published: false,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.ResolveByCityState(ctx, "London", "KY")
	if err != nil {
		t.Fatalf("ResolveByCityState() error = %v", err)
	}
	foundVisible, foundHidden := false, false
	for _, r := range out {
		if r.ID == res.ID {
			foundVisible = true
		}
		if r.ID == hidden.ID {
			foundHidden = true
		}
	}
	if !foundVisible {
		t.Error("published city/state resource missing from degraded results")
	}
	if foundHidden {
		t.Error("unpublished resource leaked into degraded results")
	}
}

func TestCheckEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.CheckEligibility(ctx, london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if !ok {
		t.Error("covered point reported ineligible")
	}

	ok, err = f.svc.CheckEligibility(ctx, 30.0, -140.0)
	if err != nil {
		t.Fatalf("CheckEligibility() error = %v", err)
	}
	if ok {
		t.Error("uncovered point reported eligible")
	}
}

func TestCalculateDistance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.CalculateDistance(ctx, f.cityResource.ID, london.Lat, london.Lng)
	if err != nil {
		t.Fatalf("CalculateDistance() error = %v", err)
	}
	if d > 1 {
		t.Errorf("distance = %.2f miles, want ~0 (point at the area center)", d)
	}

	_, err = f.svc.CalculateDistance(ctx, uuid.New(), london.Lat, london.Lng)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown resource error = %v, want not found", err)
	}
}

func TestBuildAreaValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   AreaInput
	}{
		{"unknown kind", AreaInput{Kind: "galaxy", Name: "x"}},
		{"missing name", AreaInput{Kind: repository.KindCity}},
		{"radius without center", AreaInput{Kind: repository.KindRadius, Name: "r", RadiusMeters: f64Ptr(5000)}},
		{"radius below minimum", AreaInput{Kind: repository.KindRadius, Name: "r", Center: ptPtr(london), RadiusMeters: f64Ptr(100)}},
		{"radius above maximum", AreaInput{Kind: repository.KindRadius, Name: "r", Center: ptPtr(london), RadiusMeters: f64Ptr(500000)}},
		{"radius with polygon geometry", AreaInput{Kind: repository.KindRadius, Name: "r", Center: ptPtr(london), RadiusMeters: f64Ptr(5000), GeometryJSON: []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)}},
		{"radius on administrative kind", AreaInput{Kind: repository.KindCity, Name: "c", RadiusMeters: f64Ptr(5000)}},
		{"malformed geometry", AreaInput{Kind: repository.KindCity, Name: "c", GeometryJSON: []byte(`{"type":"Point","coordinates":[1,2]}`)}},
		{"null island center", AreaInput{Kind: repository.KindCity, Name: "c", Center: ptPtr(geo.Point{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateArea(ctx, tt.in)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("CreateArea() error = %v, want validation", err)
			}
		})
	}
}
