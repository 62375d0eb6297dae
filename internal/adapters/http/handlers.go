package http

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"staleview/internal/core/domain"
	"staleview/internal/core/usecases"
	"staleview/internal/pkg/metrics"
)

// GetProjectHandler returns one mapping project summary.
func GetProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "project id must be a positive integer")
		}

		project, err := deps.Projects.GetByID(c.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				return errNotFound(c, fmt.Sprintf("project %d not found", id))
			}
			return errInternal(c, err.Error())
		}

		return c.JSON(project)
	}
}

// ProjectBoundaryHandler returns the project AOI as raw GeoJSON.
func ProjectBoundaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "project id must be a positive integer")
		}

		boundary, err := deps.Projects.Boundary(c.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				return errNotFound(c, fmt.Sprintf("project %d not found", id))
			}
			return errInternal(c, err.Error())
		}

		c.Set("Content-Type", "application/geo+json")
		return c.Send(boundary)
	}
}

// ProjectHistoryHandler returns recorded staleness snapshots, newest first.
func ProjectHistoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return errBadRequest(c, "project id must be a positive integer")
		}

		if !deps.Snapshots.Configured() {
			return errUnavailable(c, "history_unavailable", "staleness history store not configured")
		}

		limit := c.QueryInt("limit", 100)
		snaps, err := deps.Snapshots.History(c.Context(), id, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if snaps == nil {
			snaps = []domain.StalenessSnapshot{}
		}

		return c.JSON(fiber.Map{
			"project_id": id,
			"snapshots":  snaps,
		})
	}
}

// ProjectsSnapshotHandler returns the bulk boundary snapshot used by the
// overview layer.
func ProjectsSnapshotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, err := deps.Projects.Snapshot(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "application/geo+json")
		c.Set("Cache-Control", "public, max-age=3600")
		return c.Send(data)
	}
}

// parseViewportQuery reads source, bbox, zoom and project from query params.
func parseViewportQuery(c *fiber.Ctx) (usecases.ViewportQuery, error) {
	source, ok := domain.ParseProvider(c.Query("source", string(domain.ProviderWayback)))
	if !ok {
		return usecases.ViewportQuery{}, fmt.Errorf("unknown source %q", c.Query("source"))
	}

	bboxStr := c.Query("bbox")
	if bboxStr == "" {
		return usecases.ViewportQuery{}, fmt.Errorf("bbox query parameter is required")
	}
	bbox, err := domain.ParseBBox(bboxStr)
	if err != nil {
		return usecases.ViewportQuery{}, err
	}

	return usecases.ViewportQuery{
		Source:    source,
		BBox:      bbox,
		Zoom:      c.QueryInt("zoom", 12),
		ProjectID: c.QueryInt("project", 0),
	}, nil
}

// ImageryHandler returns classified imagery footprints for a viewport.
func ImageryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseViewportQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		result, err := deps.Imagery.Viewport(c.Context(), q)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrUnknownProvider):
				return errBadRequest(c, err.Error())
			case errors.Is(err, domain.ErrProviderDisabled):
				return errUnavailable(c, "provider_disabled", err.Error())
			default:
				return errBadRequest(c, err.Error())
			}
		}

		if result.FromCache {
			metrics.CacheHits.Inc()
		} else {
			metrics.CacheMisses.Inc()
		}

		return c.JSON(result)
	}
}

// ImagerySummaryHandler returns the age-bucket histogram for a viewport.
func ImagerySummaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseViewportQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		summary, err := deps.Imagery.Summary(c.Context(), q)
		if err != nil {
			if errors.Is(err, domain.ErrProviderDisabled) {
				return errUnavailable(c, "provider_disabled", err.Error())
			}
			return errBadRequest(c, err.Error())
		}

		return c.JSON(summary)
	}
}

// PermalinkHandler builds a shareable dashboard URL for the current view.
// The fragment mirrors the UI state: #map=zoom/lat/lon with optional
// project, source and basemap query parameters.
func PermalinkHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		zoom := c.QueryInt("zoom", 12)

		if lat < -90 || lat > 90 {
			return errBadRequest(c, "lat must be between -90 and 90")
		}
		if lon < -180 || lon > 180 {
			return errBadRequest(c, "lon must be between -180 and 180")
		}
		if zoom < 0 || zoom > 22 {
			return errBadRequest(c, "zoom must be between 0 and 22")
		}

		params := url.Values{}
		if project := c.QueryInt("project", 0); project > 0 {
			params.Set("project", fmt.Sprintf("%d", project))
		}
		if source := c.Query("source"); source != "" {
			if _, ok := domain.ParseProvider(source); !ok {
				return errBadRequest(c, "unknown source "+source)
			}
			params.Set("source", source)
		}
		if basemap := c.Query("basemap"); basemap != "" {
			params.Set("basemap", basemap)
		}

		var b strings.Builder
		b.WriteString(strings.TrimRight(baseURL, "/"))
		b.WriteString("/")
		if encoded := params.Encode(); encoded != "" {
			b.WriteString("?")
			b.WriteString(encoded)
		}
		fmt.Fprintf(&b, "#map=%d/%.5f/%.5f", zoom, lat, lon)

		return c.JSON(fiber.Map{"url": b.String()})
	}
}
