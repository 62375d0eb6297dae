// Package openaerial loads the open aerial-imagery catalog. The catalog is
// one large GeoJSON snapshot downloaded once per session; viewport changes
// afterwards only filter the in-memory copy.
package openaerial

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"staleview/internal/core/domain"
	"staleview/internal/pkg/metrics"
)

// DefaultCatalogURL is the public catalog snapshot.
const DefaultCatalogURL = "https://api.openaerialmap.org/meta.geojson"

// Config tunes the client; zero values fall back to defaults.
type Config struct {
	CatalogURL string
	// MaxImageAreaDeg2 drops continent-scale mosaics at load time.
	// Default 1.0 square degree.
	MaxImageAreaDeg2 float64
	LoadTimeout      time.Duration // default 60s
}

// Client implements ports.ImageryProvider over the catalog snapshot.
type Client struct {
	httpClient  *http.Client
	catalogURL  string
	maxAreaDeg2 float64
	loadTimeout time.Duration

	mu       sync.RWMutex
	features []domain.ImageryFeature
	loaded   bool
	disabled bool
}

// New creates an openaerial client.
func New(cfg Config) *Client {
	catalogURL := cfg.CatalogURL
	if catalogURL == "" {
		catalogURL = DefaultCatalogURL
	}
	maxArea := cfg.MaxImageAreaDeg2
	if maxArea <= 0 {
		maxArea = 1.0
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		catalogURL:  catalogURL,
		maxAreaDeg2: maxArea,
		loadTimeout: loadTimeout,
	}
}

// Name implements ports.ImageryProvider.
func (c *Client) Name() domain.Provider {
	return domain.ProviderOpenAerial
}

// FetchFootprints filters the session catalog by bbox, loading it first if
// needed. A failed initial load disables the provider for the session.
func (c *Client) FetchFootprints(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.ImageryFeature
	for _, f := range c.features {
		if f.BBox.Intersects(bbox) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Reload fetches the catalog again and swaps it in atomically. Used by the
// background refresher; a previously disabled client stays disabled. A
// failed refresh after a good initial load keeps the old catalog and does
// not trip the session latch, so retries stay meaningful.
func (c *Client) Reload(ctx context.Context) error {
	c.mu.RLock()
	disabled := c.disabled
	c.mu.RUnlock()
	if disabled {
		return domain.ErrProviderDisabled
	}

	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	features, err := c.download(loadCtx)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.loaded {
			c.disabled = true
			slog.Error("open catalog load failed, provider disabled for session", "error", err)
			return fmt.Errorf("load catalog: %w (%w)", err, domain.ErrProviderDisabled)
		}
		slog.Warn("open catalog reload failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("reload catalog: %w", err)
	}

	c.mu.Lock()
	c.features = features
	c.loaded = true
	c.mu.Unlock()

	metrics.CatalogSize.Set(float64(len(features)))
	slog.Info("open catalog reloaded", "footprints", len(features))
	return nil
}

// CatalogSize returns the number of footprints held for the session.
func (c *Client) CatalogSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

func (c *Client) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded, disabled := c.loaded, c.disabled
	c.mu.RUnlock()

	if disabled {
		return domain.ErrProviderDisabled
	}
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return domain.ErrProviderDisabled
	}
	if c.loaded {
		return nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	features, err := c.download(loadCtx)
	if err != nil {
		c.disabled = true
		slog.Error("open catalog load failed, provider disabled for session", "error", err)
		return fmt.Errorf("load catalog: %w (%w)", err, domain.ErrProviderDisabled)
	}

	c.features = features
	c.loaded = true
	metrics.CatalogSize.Set(float64(len(features)))
	slog.Info("open catalog loaded", "footprints", len(features))
	return nil
}

func (c *Client) download(ctx context.Context) ([]domain.ImageryFeature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var features []domain.ImageryFeature
	dropped := 0
	for _, feat := range fc.Features {
		if feat.Geometry == nil {
			continue
		}
		bound := feat.Geometry.Bound()
		bbox := domain.BBox{
			MinLon: bound.Min.Lon(), MinLat: bound.Min.Lat(),
			MaxLon: bound.Max.Lon(), MaxLat: bound.Max.Lat(),
		}
		// Continent-scale mosaics drown out everything else on the map.
		if bbox.AreaDeg2() > c.maxAreaDeg2 {
			dropped++
			metrics.FilteredFootprints.Inc()
			continue
		}

		id := feat.Properties.MustString("_id", "")
		if id == "" {
			continue
		}

		f := domain.ImageryFeature{
			SourceID: id,
			Provider: domain.ProviderOpenAerial,
			BBox:     bbox,
			Centroid: bbox.Center(),
			ProviderFields: map[string]string{
				"title":    feat.Properties.MustString("title", ""),
				"provider": feat.Properties.MustString("provider", ""),
				"platform": feat.Properties.MustString("platform", ""),
				"gsd":      strconv.FormatFloat(feat.Properties.MustFloat64("gsd", 0), 'f', -1, 64),
			},
		}
		if raw := feat.Properties.MustString("acquisition_end", ""); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				f.CaptureDate = &t
			}
		}
		features = append(features, f)
	}

	if dropped > 0 {
		slog.Debug("dropped oversized catalog footprints", "count", dropped, "max_area_deg2", c.maxAreaDeg2)
	}
	return features, nil
}
