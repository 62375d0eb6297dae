package workflows

import (
	"context"
	"fmt"

	"staleview/internal/adapters/openaerial"
	"staleview/internal/core/domain"
	"staleview/internal/core/usecases"
)

// RefreshActivities holds the activity implementations for the refresh workflow.
type RefreshActivities struct {
	OpenAerial *openaerial.Client
	Imagery    *usecases.ImageryService
	Projects   *usecases.ProjectService
	Snapshots  *usecases.SnapshotService
}

// SnapshotCounts summarizes a recorded snapshot for workflow logging.
type SnapshotCounts struct {
	Total   int
	Fresh   int
	VeryOld int
	Unknown int
}

// ReloadCatalog re-downloads the session catalog and returns its size.
func (a *RefreshActivities) ReloadCatalog(ctx context.Context) (int, error) {
	if a.OpenAerial == nil {
		return 0, fmt.Errorf("catalog provider not configured")
	}
	if err := a.OpenAerial.Reload(ctx); err != nil {
		return 0, fmt.Errorf("reload catalog: %w", err)
	}
	return a.OpenAerial.CatalogSize(), nil
}

// SnapshotProject fetches footprints over the project bounding box and
// persists the resulting staleness snapshot.
func (a *RefreshActivities) SnapshotProject(ctx context.Context, input RefreshInput) (SnapshotCounts, error) {
	source, ok := domain.ParseProvider(input.Source)
	if !ok {
		return SnapshotCounts{}, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, input.Source)
	}

	project, err := a.Projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return SnapshotCounts{}, fmt.Errorf("get project %d: %w", input.ProjectID, err)
	}

	result, err := a.Imagery.Viewport(ctx, usecases.ViewportQuery{
		Source:    source,
		BBox:      project.BoundingBox,
		Zoom:      input.Zoom,
		ProjectID: input.ProjectID,
	})
	if err != nil {
		return SnapshotCounts{}, fmt.Errorf("fetch footprints: %w", err)
	}

	snap, err := a.Snapshots.Record(ctx, input.ProjectID, source, result.Features)
	if err != nil {
		return SnapshotCounts{}, fmt.Errorf("record snapshot: %w", err)
	}

	return SnapshotCounts{
		Total:   len(result.Features),
		Fresh:   snap.Fresh,
		VeryOld: snap.VeryOld,
		Unknown: snap.Unknown,
	}, nil
}
