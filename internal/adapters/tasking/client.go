// Package tasking reads the humanitarian mapping project catalog. The
// catalog has a primary API and a cloud mirror; lookups try each base in
// order with a per-attempt timeout.
package tasking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"

	"staleview/internal/core/domain"
)

// Default endpoints for the hosted catalog.
const (
	DefaultPrimaryBase  = "https://tasking-manager-production-api.hotosm.org/api/v2"
	DefaultMirrorBase   = "https://tasks-mirror.hotosm.org/api/v2"
	DefaultSnapshotURL  = "https://tasks-snapshots.hotosm.org/projects.geojson"
	defaultAttemptLimit = 10 * time.Second
)

// Config tunes the client; zero values fall back to defaults.
type Config struct {
	// Bases are tried in order until one answers.
	Bases          []string
	SnapshotURL    string
	AttemptTimeout time.Duration
}

// Client implements ports.ProjectCatalog.
type Client struct {
	httpClient     *http.Client
	bases          []string
	snapshotURL    string
	attemptTimeout time.Duration
}

// New creates a catalog client.
func New(cfg Config) *Client {
	bases := cfg.Bases
	if len(bases) == 0 {
		bases = []string{DefaultPrimaryBase, DefaultMirrorBase}
	}
	snapshotURL := cfg.SnapshotURL
	if snapshotURL == "" {
		snapshotURL = DefaultSnapshotURL
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptLimit
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		bases:          bases,
		snapshotURL:    snapshotURL,
		attemptTimeout: attemptTimeout,
	}
}

// projectResponse is the catalog's wire shape for one project.
type projectResponse struct {
	ProjectID   int `json:"projectId"`
	ProjectInfo struct {
		Name string `json:"name"`
	} `json:"projectInfo"`
	Status           string    `json:"status"`
	PercentMapped    float64   `json:"percentMapped"`
	PercentValidated float64   `json:"percentValidated"`
	LastUpdated      string    `json:"lastUpdated"`
	AOIBBox          []float64 `json:"aoiBBOX"`
}

// GetProject fetches one project summary, falling back across bases.
// Upstream 404 and 403 both mean the project is unavailable to this
// dashboard and map to domain.ErrProjectNotFound without trying the mirror.
func (c *Client) GetProject(ctx context.Context, id int) (*domain.ProjectSummary, error) {
	var lastErr error
	for _, base := range c.bases {
		body, err := c.get(ctx, fmt.Sprintf("%s/projects/%d/", base, id))
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				return nil, err
			}
			slog.Warn("project catalog endpoint failed, trying next", "base", base, "error", err)
			lastErr = err
			continue
		}

		var raw projectResponse
		if err := json.Unmarshal(body, &raw); err != nil {
			lastErr = fmt.Errorf("parse project %d: %w", id, err)
			continue
		}
		return normalizeProject(raw)
	}
	return nil, fmt.Errorf("all catalog endpoints failed: %w", lastErr)
}

// GetBoundary fetches the project AOI GeoJSON, validating it parses.
func (c *Client) GetBoundary(ctx context.Context, id int) ([]byte, error) {
	var lastErr error
	for _, base := range c.bases {
		body, err := c.get(ctx, fmt.Sprintf("%s/projects/%d/queries/aoi/?as_file=false", base, id))
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if _, err := geojson.UnmarshalGeometry(body); err != nil {
			// Some deployments wrap the AOI in a feature collection.
			if _, fcErr := geojson.UnmarshalFeatureCollection(body); fcErr != nil {
				lastErr = fmt.Errorf("parse boundary %d: %w", id, err)
				continue
			}
		}
		return body, nil
	}
	return nil, fmt.Errorf("all catalog endpoints failed: %w", lastErr)
}

// Snapshot fetches the pre-built bulk boundary GeoJSON.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.snapshotURL)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrProjectNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("request %s failed with status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func normalizeProject(raw projectResponse) (*domain.ProjectSummary, error) {
	p := &domain.ProjectSummary{
		ID:               raw.ProjectID,
		Name:             raw.ProjectInfo.Name,
		Status:           domain.ProjectStatus(raw.Status),
		PercentMapped:    raw.PercentMapped,
		PercentValidated: raw.PercentValidated,
	}

	if raw.LastUpdated != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"} {
			if t, err := time.Parse(layout, raw.LastUpdated); err == nil {
				p.LastUpdated = t
				break
			}
		}
	}

	if len(raw.AOIBBox) == 4 {
		p.BoundingBox = domain.BBox{
			MinLon: raw.AOIBBox[0], MinLat: raw.AOIBBox[1],
			MaxLon: raw.AOIBBox[2], MaxLat: raw.AOIBBox[3],
		}
	}
	if !p.BoundingBox.Valid() {
		return nil, fmt.Errorf("project %d has invalid bounding box", raw.ProjectID)
	}
	return p, nil
}
