package main

import (
	"context"
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"staleview/internal/adapters/openaerial"
	"staleview/internal/adapters/postgres"
	"staleview/internal/adapters/tasking"
	"staleview/internal/adapters/wayback"
	"staleview/internal/core/ports"
	"staleview/internal/core/usecases"
	"staleview/internal/pkg/config"
	"staleview/internal/pkg/logging"
	"staleview/internal/workflows"
)

func main() {
	cfg, err := config.Load("staleview-refresher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("info", "json")

	ctx := context.Background()

	// History store (optional)
	var snapshotRepo ports.SnapshotRepository
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		snapshotRepo = postgres.NewSnapshotRepo(db)
	}

	// Providers and services. The refresher fetches straight from upstream,
	// so it runs without a viewport cache or event publisher.
	waybackClient := wayback.New(wayback.Config{
		BaseURL:       cfg.Wayback.BaseURL,
		SampleTimeout: time.Duration(cfg.Wayback.SampleTimeoutSeconds) * time.Second,
	})
	openaerialClient := openaerial.New(openaerial.Config{
		CatalogURL:       cfg.OpenAerial.CatalogURL,
		MaxImageAreaDeg2: cfg.OpenAerial.MaxImageAreaDeg2,
		LoadTimeout:      time.Duration(cfg.OpenAerial.LoadTimeoutSeconds) * time.Second,
	})
	catalog := tasking.New(tasking.Config{
		Bases:       cfg.Catalog.Bases,
		SnapshotURL: cfg.Catalog.SnapshotURL,
	})

	imagerySvc := usecases.NewImageryService(
		[]ports.ImageryProvider{waybackClient, openaerialClient},
		nil, nil, cfg.Cache.TTLSeconds,
	)
	projectSvc := usecases.NewProjectService(catalog, nil)
	snapshotSvc := usecases.NewSnapshotService(snapshotRepo, nil)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RefreshWorkflow)
	w.RegisterActivity(&workflows.RefreshActivities{
		OpenAerial: openaerialClient,
		Imagery:    imagerySvc,
		Projects:   projectSvc,
		Snapshots:  snapshotSvc,
	})

	log.Println("refresher worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
