package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RefreshInput is the input for the imagery refresh workflow.
type RefreshInput struct {
	ProjectID int
	Source    string
	Zoom      int
}

// RefreshWorkflow re-fetches imagery metadata for a project area and records
// a staleness snapshot. For the catalog-backed provider the session catalog
// is reloaded first so the snapshot reflects current upstream data.
func RefreshWorkflow(ctx workflow.Context, input RefreshInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting imagery refresh workflow", "project", input.ProjectID, "source", input.Source)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Reload the session catalog when the source serves from one
	if input.Source == "openaerial" {
		var catalogSize int
		if err := workflow.ExecuteActivity(ctx, "ReloadCatalog").Get(ctx, &catalogSize); err != nil {
			return err
		}
		logger.Info("Catalog reloaded", "footprints", catalogSize)
	}

	// Step 2: Fetch footprints over the project area and record the snapshot
	var counts SnapshotCounts
	if err := workflow.ExecuteActivity(ctx, "SnapshotProject", input).Get(ctx, &counts); err != nil {
		return err
	}

	logger.Info("Staleness snapshot recorded",
		"project", input.ProjectID,
		"total", counts.Total,
		"very_old", counts.VeryOld)
	return nil
}
