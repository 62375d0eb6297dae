package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"staleview/internal/core/domain"
	"staleview/internal/core/ports"
	"staleview/internal/core/usecases"
)

// --- Mock ImageryProvider ---

type mockProvider struct {
	name    domain.Provider
	fetchFn func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error)
}

func (m *mockProvider) Name() domain.Provider {
	if m.name == "" {
		return domain.ProviderWayback
	}
	return m.name
}

func (m *mockProvider) FetchFootprints(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, bbox, zoom)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{store: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.store[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	refreshes []int
}

func (m *mockPublisher) PublishRefresh(ctx context.Context, projectID int, source domain.Provider, featureCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, projectID)
	return nil
}

func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error { return nil }

// --- Helpers ---

func datePtr(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

var testViewport = domain.BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}

func feature(id string, bbox domain.BBox, captured *time.Time) domain.ImageryFeature {
	return domain.ImageryFeature{
		SourceID:    id,
		Provider:    domain.ProviderWayback,
		BBox:        bbox,
		CaptureDate: captured,
	}
}

// --- Reconcile ---

func TestReconcile_FiltersDedupsAndClassifies(t *testing.T) {
	now := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	inside := domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}
	outside := domain.BBox{MinLon: 50, MinLat: 50, MaxLon: 60, MaxLat: 60}

	batch := []domain.ImageryFeature{
		feature("a", inside, datePtr(2022, 2, 5)),
		feature("a", inside, datePtr(2022, 2, 5)), // duplicate source ID
		feature("b", outside, datePtr(2025, 1, 1)),
		feature("c", inside, nil),
	}

	out := usecases.Reconcile(batch, testViewport, now)
	if len(out) != 2 {
		t.Fatalf("expected 2 features after filter+dedup, got %d", len(out))
	}

	// Oldest first; the dated feature sorts before the unknown one.
	if out[0].SourceID != "a" {
		t.Errorf("expected feature a first, got %s", out[0].SourceID)
	}
	if out[0].Bucket != domain.BucketVeryOld {
		t.Errorf("expected veryOld, got %s", out[0].Bucket)
	}
	if out[0].AgeYears == nil || *out[0].AgeYears < 3.9 || *out[0].AgeYears > 4.1 {
		t.Errorf("expected age ~4.0, got %v", out[0].AgeYears)
	}
	if out[1].SourceID != "c" || out[1].Bucket != domain.BucketUnknown {
		t.Errorf("expected unknown feature c last, got %s/%s", out[1].SourceID, out[1].Bucket)
	}

	// Centroid recomputed from the bbox
	want := inside.Center()
	if out[0].Centroid != want {
		t.Errorf("centroid = %v, want %v", out[0].Centroid, want)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := []domain.ImageryFeature{
		feature("a", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, datePtr(2020, 6, 1)),
		feature("b", domain.BBox{MinLon: 3, MinLat: 3, MaxLon: 4, MaxLat: 4}, datePtr(2025, 6, 1)),
	}

	once := usecases.Reconcile(batch, testViewport, now)
	twice := usecases.Reconcile(once, testViewport, now)

	if len(once) != len(twice) {
		t.Fatalf("length changed on second pass: %d != %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].SourceID != twice[i].SourceID || once[i].Bucket != twice[i].Bucket {
			t.Errorf("feature %d changed on second pass", i)
		}
	}
}

func TestReconcile_EmptyBatch(t *testing.T) {
	out := usecases.Reconcile(nil, testViewport, time.Now())
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d features", len(out))
	}
}

// --- Viewport ---

func TestViewport_UnknownSource(t *testing.T) {
	svc := usecases.NewImageryService(nil, nil, nil, 0)
	_, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: "landsat",
		BBox:   testViewport,
	})
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestViewport_InvalidBBox(t *testing.T) {
	provider := &mockProvider{}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, nil, 0)
	_, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderWayback,
		BBox:   domain.BBox{MinLon: 10, MinLat: 10, MaxLon: 5, MaxLat: 5},
	})
	if err == nil {
		t.Error("expected error for inverted bbox")
	}
}

func TestViewport_FetchErrorDegrades(t *testing.T) {
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			return nil, errors.New("upstream 502")
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, nil, 0)

	res, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderWayback,
		BBox:   testViewport,
	})
	if err != nil {
		t.Fatalf("fetch failure must degrade, not error: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded flag")
	}
	if len(res.Features) != 0 {
		t.Errorf("degraded result should be empty, got %d", len(res.Features))
	}
}

func TestViewport_DisabledProviderErrors(t *testing.T) {
	provider := &mockProvider{
		name: domain.ProviderOpenAerial,
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			return nil, domain.ErrProviderDisabled
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, nil, 0)

	_, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderOpenAerial,
		BBox:   testViewport,
	})
	if !errors.Is(err, domain.ErrProviderDisabled) {
		t.Errorf("expected ErrProviderDisabled, got %v", err)
	}
}

func TestViewport_CacheHitSkipsFetch(t *testing.T) {
	cache := newMockCache()
	fetches := 0
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			fetches++
			return []domain.ImageryFeature{
				feature("a", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, datePtr(2025, 6, 1)),
			}, nil
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, cache, nil, 300)

	q := usecases.ViewportQuery{Source: domain.ProviderWayback, BBox: testViewport, Zoom: 12}

	first, err := svc.Viewport(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.FromCache {
		t.Error("first fetch should not come from cache")
	}

	second, err := svc.Viewport(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch should come from cache")
	}
	if fetches != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", fetches)
	}
	if len(second.Features) != 1 || second.Features[0].SourceID != "a" {
		t.Errorf("cached result mismatch: %+v", second.Features)
	}
}

func TestViewport_CachedBatchIsReconciled(t *testing.T) {
	// A cached batch still gets viewport-filtered: panning away from a
	// cached area must not show its features.
	cache := newMockCache()
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			return []domain.ImageryFeature{
				feature("in", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, nil),
				feature("out", domain.BBox{MinLon: 50, MinLat: 50, MaxLon: 60, MaxLat: 60}, nil),
			}, nil
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, cache, nil, 300)

	q := usecases.ViewportQuery{Source: domain.ProviderWayback, BBox: testViewport, Zoom: 12}
	if _, err := svc.Viewport(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := svc.Viewport(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.FromCache {
		t.Fatal("expected cache hit")
	}
	if len(res.Features) != 1 || res.Features[0].SourceID != "in" {
		t.Errorf("cached batch not reconciled: %+v", res.Features)
	}
}

func TestViewport_SupersededFetchDiscarded(t *testing.T) {
	var svc *usecases.ImageryService
	var calls int32

	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				// A newer fetch starts and finishes while this one is in flight.
				_, _ = svc.Viewport(ctx, usecases.ViewportQuery{
					Source: domain.ProviderWayback,
					BBox:   domain.BBox{MinLon: 20, MinLat: 20, MaxLon: 30, MaxLat: 30},
				})
			}
			return []domain.ImageryFeature{
				feature("stale", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, nil),
			}, nil
		},
	}
	svc = usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, nil, 0)

	res, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderWayback,
		BBox:   testViewport,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Superseded {
		t.Error("expected Superseded flag on the overtaken fetch")
	}
	if len(res.Features) != 0 {
		t.Errorf("superseded result should be empty, got %d features", len(res.Features))
	}
}

func TestViewport_PublishesRefreshForProject(t *testing.T) {
	pub := &mockPublisher{}
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			return []domain.ImageryFeature{
				feature("a", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, nil),
			}, nil
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, pub, 0)

	_, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source:    domain.ProviderWayback,
		BBox:      testViewport,
		ProjectID: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.refreshes) != 1 || pub.refreshes[0] != 42 {
		t.Errorf("expected refresh event for project 42, got %v", pub.refreshes)
	}
}

// --- Summary ---

func TestSummary_Histogram(t *testing.T) {
	now := time.Now().UTC()
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			box := domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}
			fresh := now.AddDate(0, -6, 0)
			old := now.AddDate(-2, -6, 0)
			veryOld := now.AddDate(-5, 0, 0)
			return []domain.ImageryFeature{
				feature("f", box, &fresh),
				feature("o", box, &old),
				feature("v", box, &veryOld),
				feature("u", box, nil),
			}, nil
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, nil, nil, 0)

	sum, err := svc.Summary(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderWayback,
		BBox:   testViewport,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total != 4 {
		t.Errorf("expected total 4, got %d", sum.Total)
	}
	if sum.Fresh != 1 || sum.Old != 1 || sum.VeryOld != 1 || sum.Unknown != 1 {
		t.Errorf("unexpected histogram: %+v", sum)
	}
	if sum.Oldest == nil || sum.Newest == nil {
		t.Fatal("expected oldest and newest dates")
	}
	if !sum.Oldest.Before(*sum.Newest) {
		t.Errorf("oldest %v not before newest %v", sum.Oldest, sum.Newest)
	}
}

// Verify the cached payload is the raw batch, not the reconciled view, so
// one cache entry serves any overlapping viewport.
func TestViewport_CachesRawBatch(t *testing.T) {
	cache := newMockCache()
	provider := &mockProvider{
		fetchFn: func(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
			return []domain.ImageryFeature{
				feature("in", domain.BBox{MinLon: 1, MinLat: 1, MaxLon: 2, MaxLat: 2}, nil),
				feature("out", domain.BBox{MinLon: 50, MinLat: 50, MaxLon: 60, MaxLat: 60}, nil),
			}, nil
		},
	}
	svc := usecases.NewImageryService([]ports.ImageryProvider{provider}, cache, nil, 300)

	if _, err := svc.Viewport(context.Background(), usecases.ViewportQuery{
		Source: domain.ProviderWayback, BBox: testViewport, Zoom: 12,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.store) != 1 {
		t.Fatalf("expected 1 cache entry, got %d", len(cache.store))
	}
	for _, payload := range cache.store {
		var batch []domain.ImageryFeature
		if err := json.Unmarshal(payload, &batch); err != nil {
			t.Fatalf("cached payload not a feature batch: %v", err)
		}
		if len(batch) != 2 {
			t.Errorf("expected raw batch of 2 in cache, got %d", len(batch))
		}
	}
}
