package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is an axis-aligned geographic bounding box in degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Intersects reports whether two boxes overlap. Boxes that only touch at an
// edge do not intersect.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLon < o.MaxLon && b.MaxLon > o.MinLon &&
		b.MinLat < o.MaxLat && b.MaxLat > o.MinLat
}

// Center returns the box midpoint, used for label placement.
func (b BBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// AreaDeg2 returns the box area in square degrees.
func (b BBox) AreaDeg2() float64 {
	return math.Abs(b.MaxLon-b.MinLon) * math.Abs(b.MaxLat-b.MinLat)
}

// Valid checks coordinate ranges and min/max ordering.
func (b BBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// String renders the box as "minLon,minLat,maxLon,maxLat".
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if !b.Valid() {
		return BBox{}, fmt.Errorf("bbox %s out of range or inverted", b)
	}
	return b, nil
}

// GridPoints returns an n-by-n lattice of sample points spread across the
// box interior. Points sit at cell centers so a 1x1 grid samples the middle.
func (b BBox) GridPoints(n int) []GeoPoint {
	if n < 1 {
		n = 1
	}
	stepLon := (b.MaxLon - b.MinLon) / float64(n)
	stepLat := (b.MaxLat - b.MinLat) / float64(n)

	pts := make([]GeoPoint, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			pts = append(pts, GeoPoint{
				Lon: b.MinLon + stepLon*(float64(col)+0.5),
				Lat: b.MinLat + stepLat*(float64(row)+0.5),
			})
		}
	}
	return pts
}
