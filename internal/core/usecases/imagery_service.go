package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"staleview/internal/core/domain"
	"staleview/internal/core/ports"
)

// ImageryService orchestrates footprint acquisition and viewport
// reconciliation. It owns all fetch state explicitly; nothing here is
// package-global, so instances can be tested in isolation.
type ImageryService struct {
	providers map[domain.Provider]ports.ImageryProvider
	cache     ports.CacheService
	events    ports.EventPublisher
	ttl       int

	// generation stamps each fetch; results from a superseded generation
	// are discarded instead of overwriting newer viewport state.
	generation atomic.Uint64
}

// ViewportQuery describes one dashboard viewport request.
type ViewportQuery struct {
	Source    domain.Provider
	BBox      domain.BBox
	Zoom      int
	ProjectID int // 0 when no project is selected
}

// ViewportResult is the reconciled feature set for a viewport.
type ViewportResult struct {
	Source     domain.Provider         `json:"source"`
	Features   []domain.ImageryFeature `json:"features"`
	Degraded   bool                    `json:"degraded"`
	FromCache  bool                    `json:"from_cache"`
	Superseded bool                    `json:"superseded"`
}

// BucketSummary is the per-viewport age histogram shown in the info panel.
type BucketSummary struct {
	Source  domain.Provider `json:"source"`
	Total   int             `json:"total"`
	Fresh   int             `json:"fresh"`
	Medium  int             `json:"medium"`
	Old     int             `json:"old"`
	VeryOld int             `json:"very_old"`
	Unknown int             `json:"unknown"`
	Oldest  *time.Time      `json:"oldest,omitempty"`
	Newest  *time.Time      `json:"newest,omitempty"`
}

// NewImageryService wires providers with an optional cache and publisher.
// cacheTTLSeconds falls back to 300 when non-positive.
func NewImageryService(providers []ports.ImageryProvider, cache ports.CacheService, events ports.EventPublisher, cacheTTLSeconds int) *ImageryService {
	if cacheTTLSeconds <= 0 {
		cacheTTLSeconds = 300
	}
	byName := make(map[domain.Provider]ports.ImageryProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &ImageryService{providers: byName, cache: cache, events: events, ttl: cacheTTLSeconds}
}

// Viewport returns the footprints visible in bbox at the given zoom, fetched
// from the selected provider. Provider fetch failures degrade to an empty,
// logged result; only a disabled provider or an unknown source is an error.
func (s *ImageryService) Viewport(ctx context.Context, q ViewportQuery) (*ViewportResult, error) {
	provider, ok := s.providers[q.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, q.Source)
	}
	if !q.BBox.Valid() {
		return nil, fmt.Errorf("invalid bbox %s", q.BBox)
	}
	zoom := clampZoom(q.Zoom)

	cacheKey := fmt.Sprintf("imagery:%s:%s:z%d", q.Source, q.BBox, zoom)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var batch []domain.ImageryFeature
			if err := json.Unmarshal(data, &batch); err == nil {
				return &ViewportResult{
					Source:    q.Source,
					Features:  Reconcile(batch, q.BBox, time.Now()),
					FromCache: true,
				}, nil
			}
		}
	}

	gen := s.generation.Add(1)

	batch, err := provider.FetchFootprints(ctx, q.BBox, zoom)
	if err != nil {
		if errors.Is(err, domain.ErrProviderDisabled) {
			return nil, err
		}
		// Background metadata refresh errors are never fatal (logged only).
		slog.Warn("imagery fetch degraded",
			"source", q.Source, "bbox", q.BBox.String(), "zoom", zoom, "error", err)
		return &ViewportResult{Source: q.Source, Features: []domain.ImageryFeature{}, Degraded: true}, nil
	}

	if s.generation.Load() != gen {
		// A newer viewport fetch started while this one was in flight.
		slog.Debug("discarding superseded imagery batch", "source", q.Source, "generation", gen)
		return &ViewportResult{Source: q.Source, Features: []domain.ImageryFeature{}, Superseded: true}, nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(batch); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}

	result := &ViewportResult{
		Source:   q.Source,
		Features: Reconcile(batch, q.BBox, time.Now()),
	}

	if s.events != nil && q.ProjectID > 0 {
		if err := s.events.PublishRefresh(ctx, q.ProjectID, q.Source, len(result.Features)); err != nil {
			slog.Warn("publish refresh event", "project", q.ProjectID, "error", err)
		}
	}

	return result, nil
}

// Summary computes the age histogram for a viewport.
func (s *ImageryService) Summary(ctx context.Context, q ViewportQuery) (*BucketSummary, error) {
	res, err := s.Viewport(ctx, q)
	if err != nil {
		return nil, err
	}

	sum := &BucketSummary{Source: q.Source, Total: len(res.Features)}
	for _, f := range res.Features {
		switch f.Bucket {
		case domain.BucketFresh:
			sum.Fresh++
		case domain.BucketMedium:
			sum.Medium++
		case domain.BucketOld:
			sum.Old++
		case domain.BucketVeryOld:
			sum.VeryOld++
		default:
			sum.Unknown++
		}
		if f.CaptureDate == nil {
			continue
		}
		if sum.Oldest == nil || f.CaptureDate.Before(*sum.Oldest) {
			d := *f.CaptureDate
			sum.Oldest = &d
		}
		if sum.Newest == nil || f.CaptureDate.After(*sum.Newest) {
			d := *f.CaptureDate
			sum.Newest = &d
		}
	}
	return sum, nil
}

// Reconcile filters a feature batch against the viewport, deduplicates by
// source ID, recomputes centroids and classifies capture-date age at the
// given reference time. It is idempotent for a fixed bbox and time.
func Reconcile(batch []domain.ImageryFeature, viewport domain.BBox, now time.Time) []domain.ImageryFeature {
	seen := make(map[string]struct{}, len(batch))
	out := make([]domain.ImageryFeature, 0, len(batch))

	for _, f := range batch {
		if !f.BBox.Intersects(viewport) {
			continue
		}
		if _, dup := seen[f.SourceID]; dup {
			continue
		}
		seen[f.SourceID] = struct{}{}

		f.Centroid = f.BBox.Center()
		f.AgeYears, f.Bucket = domain.ClassifyAge(f.CaptureDate, now)
		out = append(out, f)
	}

	// Oldest first so stale areas draw on top of fresh ones.
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].AgeYears, out[j].AgeYears
		switch {
		case ai == nil:
			return false
		case aj == nil:
			return true
		default:
			return *ai > *aj
		}
	})
	return out
}

func clampZoom(zoom int) int {
	if zoom < 0 {
		return 0
	}
	if zoom > 22 {
		return 22
	}
	return zoom
}
