// Package wayback queries the tiled world-imagery metadata index. The index
// has no cross-origin bbox query endpoint, so coverage is reconstructed by
// sampling a grid of points across the viewport and issuing one
// identify-by-point lookup per sample.
package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"staleview/internal/core/domain"
	"staleview/internal/pkg/metrics"
)

const (
	// DefaultBaseURL is the metadata MapServer layer queried per point.
	DefaultBaseURL = "https://metadata.maptiles.arcgis.com/arcgis/rest/services/World_Imagery_Metadata/MapServer/0"

	userAgent = "staleview/1.0"

	// captureDateLayout decodes the YYYYMMDD-encoded SRC_DATE attribute.
	captureDateLayout = "20060102"
)

// Config tunes the client; zero values fall back to defaults.
type Config struct {
	BaseURL       string
	SampleTimeout time.Duration // per identify request, default 8s
}

// Client implements ports.ImageryProvider against the tiled index.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	sampleTimeout time.Duration
}

// New creates a wayback client with system proxy support.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.SampleTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		baseURL:       base,
		sampleTimeout: timeout,
	}
}

// Name implements ports.ImageryProvider.
func (c *Client) Name() domain.Provider {
	return domain.ProviderWayback
}

// FetchFootprints samples a zoom-scaled grid over bbox, identifies each
// point in parallel and merges the answers, deduplicating by the
// provider-assigned object ID. A failed or timed-out sample contributes an
// empty set; it never fails the whole fetch.
func (c *Client) FetchFootprints(ctx context.Context, bbox domain.BBox, zoom int) ([]domain.ImageryFeature, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(string(domain.ProviderWayback)).Observe(time.Since(start).Seconds())
	}()

	points := bbox.GridPoints(gridSizeForZoom(zoom))

	results := make(chan []identifiedFeature, len(points))
	var wg sync.WaitGroup

	for _, pt := range points {
		wg.Add(1)
		go func(p domain.GeoPoint) {
			defer wg.Done()
			sampleCtx, cancel := context.WithTimeout(ctx, c.sampleTimeout)
			defer cancel()

			feats, err := c.identify(sampleCtx, p, zoom)
			if err != nil {
				slog.Debug("wayback sample failed", "lat", p.Lat, "lon", p.Lon, "error", err)
				metrics.SampleErrors.WithLabelValues(string(domain.ProviderWayback)).Inc()
				results <- nil
				return
			}
			results <- feats
		}(pt)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]struct{})
	var merged []domain.ImageryFeature
	for batch := range results {
		for _, f := range batch {
			id := strconv.Itoa(f.objectID)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, f.normalize())
		}
	}

	metrics.FeaturesFetched.WithLabelValues(string(domain.ProviderWayback)).Add(float64(len(merged)))
	return merged, nil
}

// identifiedFeature is the raw per-point answer before normalization.
type identifiedFeature struct {
	objectID    int
	bbox        domain.BBox
	captureDate *time.Time
	fields      map[string]string
}

func (f identifiedFeature) normalize() domain.ImageryFeature {
	return domain.ImageryFeature{
		SourceID:       strconv.Itoa(f.objectID),
		Provider:       domain.ProviderWayback,
		BBox:           f.bbox,
		Centroid:       f.bbox.Center(),
		CaptureDate:    f.captureDate,
		ProviderFields: f.fields,
	}
}

// identifyResponse is the wire shape of one point query.
type identifyResponse struct {
	Features []struct {
		Attributes struct {
			ObjectID int     `json:"OBJECTID"`
			SrcDate  int64   `json:"SRC_DATE"`
			NiceName string  `json:"NICE_NAME"`
			SrcDesc  string  `json:"SRC_DESC"`
			SrcRes   float64 `json:"SRC_RES"`
			SrcAcc   float64 `json:"SRC_ACC"`
		} `json:"attributes"`
		Geometry *struct {
			Rings [][][2]float64 `json:"rings"`
		} `json:"geometry"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) identify(ctx context.Context, pt domain.GeoPoint, zoom int) ([]identifiedFeature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL(pt, zoom), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identify point: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identify request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read identify response: %w", err)
	}

	var parsed identifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse identify response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("identify error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.ExceededTransferLimit {
		return nil, domain.ErrTooManyResults
	}

	feats := make([]identifiedFeature, 0, len(parsed.Features))
	for _, raw := range parsed.Features {
		f := identifiedFeature{
			objectID:    raw.Attributes.ObjectID,
			captureDate: parseCaptureDate(raw.Attributes.SrcDate),
			fields: map[string]string{
				"nice_name":  raw.Attributes.NiceName,
				"src_desc":   raw.Attributes.SrcDesc,
				"resolution": strconv.FormatFloat(raw.Attributes.SrcRes, 'f', -1, 64),
				"accuracy":   strconv.FormatFloat(raw.Attributes.SrcAcc, 'f', -1, 64),
			},
		}
		if raw.Geometry != nil && len(raw.Geometry.Rings) > 0 {
			f.bbox = ringsBBox(raw.Geometry.Rings)
		} else {
			// Point-only answer: a degenerate box around the sample keeps
			// the feature visible without inventing coverage.
			f.bbox = domain.BBox{
				MinLon: pt.Lon - 1e-4, MinLat: pt.Lat - 1e-4,
				MaxLon: pt.Lon + 1e-4, MaxLat: pt.Lat + 1e-4,
			}
		}
		feats = append(feats, f)
	}
	return feats, nil
}

func (c *Client) queryURL(pt domain.GeoPoint, zoom int) string {
	geometry := fmt.Sprintf(`{"x":%f,"y":%f,"spatialReference":{"wkid":4326}}`, pt.Lon, pt.Lat)

	q := url.Values{}
	q.Set("f", "json")
	q.Set("where", "1=1")
	q.Set("outFields", "OBJECTID,SRC_DATE,NICE_NAME,SRC_DESC,SRC_RES,SRC_ACC")
	q.Set("returnGeometry", "true")
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("inSR", "4326")
	q.Set("outSR", "4326")
	q.Set("geometry", geometry)
	_ = zoom // the metadata layer picks its own scale; zoom only drives grid density

	return c.baseURL + "/query?" + q.Encode()
}

// parseCaptureDate decodes a YYYYMMDD integer; zero or malformed values
// yield nil so the feature classifies as unknown.
func parseCaptureDate(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t, err := time.Parse(captureDateLayout, strconv.FormatInt(v, 10))
	if err != nil {
		return nil
	}
	return &t
}

func ringsBBox(rings [][][2]float64) domain.BBox {
	b := domain.BBox{MinLon: 180, MinLat: 90, MaxLon: -180, MaxLat: -90}
	for _, ring := range rings {
		for _, coord := range ring {
			lon, lat := coord[0], coord[1]
			if lon < b.MinLon {
				b.MinLon = lon
			}
			if lon > b.MaxLon {
				b.MaxLon = lon
			}
			if lat < b.MinLat {
				b.MinLat = lat
			}
			if lat > b.MaxLat {
				b.MaxLat = lat
			}
		}
	}
	return b
}

// gridSizeForZoom picks the per-axis sample count: coarse when zoomed out,
// dense when zoomed in.
func gridSizeForZoom(zoom int) int {
	switch {
	case zoom < 8:
		return 2
	case zoom < 11:
		return 3
	case zoom < 14:
		return 4
	default:
		return 5
	}
}
