package ports

import (
	"context"

	"staleview/internal/core/domain"
)

// ImageryProvider fetches imagery footprint metadata for a bounding box.
type ImageryProvider interface {
	// Name identifies the provider for cache keys and responses.
	Name() domain.Provider
	// FetchFootprints returns footprints covering bbox at the given zoom.
	// The returned slice is already deduplicated by source ID within the
	// fetch batch, but not classified or viewport-filtered.
	FetchFootprints(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error)
}

// ProjectCatalog reads mapping projects from the external catalog.
type ProjectCatalog interface {
	GetProject(ctx context.Context, id int) (*domain.ProjectSummary, error)
	// GetBoundary returns the project AOI as a raw GeoJSON document.
	GetBoundary(ctx context.Context, id int) ([]byte, error)
	// Snapshot returns the bulk GeoJSON snapshot of all project boundaries.
	Snapshot(ctx context.Context) ([]byte, error)
}
