package domain

import (
	"time"
)

// Provider identifies an imagery metadata source.
type Provider string

const (
	// ProviderWayback is the tiled world-imagery index queried point by point.
	ProviderWayback Provider = "wayback"
	// ProviderOpenAerial is the open aerial-imagery catalog fetched as one snapshot.
	ProviderOpenAerial Provider = "openaerial"
)

// ParseProvider validates a user-supplied source name.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderWayback, ProviderOpenAerial:
		return Provider(s), true
	}
	return "", false
}

// ImageryFeature is one imagery footprint normalized from a provider response.
// Instances are immutable once built.
type ImageryFeature struct {
	SourceID       string            `json:"source_id"`
	Provider       Provider          `json:"provider"`
	BBox           BBox              `json:"bbox"`
	Centroid       GeoPoint          `json:"centroid"`
	CaptureDate    *time.Time        `json:"capture_date,omitempty"`
	AgeYears       *float64          `json:"age_years,omitempty"`
	Bucket         AgeBucket         `json:"bucket"`
	ProviderFields map[string]string `json:"provider_fields,omitempty"`
}

// ProjectStatus mirrors the project catalog's lifecycle states.
type ProjectStatus string

const (
	StatusDraft     ProjectStatus = "DRAFT"
	StatusPublished ProjectStatus = "PUBLISHED"
	StatusArchived  ProjectStatus = "ARCHIVED"
)

// ProjectSummary is a read-only view of one mapping project.
type ProjectSummary struct {
	ID               int           `json:"id"`
	Name             string        `json:"name"`
	Status           ProjectStatus `json:"status"`
	PercentMapped    float64       `json:"percent_mapped"`
	PercentValidated float64       `json:"percent_validated"`
	LastUpdated      time.Time     `json:"last_updated"`
	BoundingBox      BBox          `json:"bounding_box"`
}

// StalenessSnapshot records the age-bucket distribution of imagery under a
// project area at one point in time.
type StalenessSnapshot struct {
	ID             string    `json:"id,omitempty"`
	ProjectID      int       `json:"project_id"`
	Source         Provider  `json:"source"`
	TakenAt        time.Time `json:"taken_at"`
	Fresh          int       `json:"fresh"`
	Medium         int       `json:"medium"`
	Old            int       `json:"old"`
	VeryOld        int       `json:"very_old"`
	Unknown        int       `json:"unknown"`
	MedianAgeYears *float64  `json:"median_age_years,omitempty"`
}
