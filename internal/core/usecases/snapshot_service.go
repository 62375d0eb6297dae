package usecases

import (
	"context"
	"fmt"
	"sort"
	"time"

	"staleview/internal/core/domain"
	"staleview/internal/core/ports"
)

// SnapshotService records and serves staleness history for projects.
// The repository is optional; without it Record is a no-op and history
// queries report not configured.
type SnapshotService struct {
	snapshots ports.SnapshotRepository
	events    ports.EventPublisher
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(snapshots ports.SnapshotRepository, events ports.EventPublisher) *SnapshotService {
	return &SnapshotService{snapshots: snapshots, events: events}
}

// Configured reports whether a history store is wired.
func (s *SnapshotService) Configured() bool {
	return s.snapshots != nil
}

// Record persists the age distribution of a reconciled feature set.
func (s *SnapshotService) Record(ctx context.Context, projectID int, source domain.Provider, features []domain.ImageryFeature) (*domain.StalenessSnapshot, error) {
	snap := BuildSnapshot(projectID, source, features, time.Now())

	if s.snapshots != nil {
		if err := s.snapshots.Insert(ctx, snap); err != nil {
			return nil, fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if s.events != nil {
		_ = s.events.PublishRefresh(ctx, projectID, source, len(features))
	}

	return snap, nil
}

// History returns the most recent snapshots for a project, newest first.
func (s *SnapshotService) History(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("staleness history store not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.snapshots.ListByProject(ctx, projectID, limit)
}

// BuildSnapshot aggregates bucket counts and the median age.
func BuildSnapshot(projectID int, source domain.Provider, features []domain.ImageryFeature, takenAt time.Time) *domain.StalenessSnapshot {
	snap := &domain.StalenessSnapshot{
		ProjectID: projectID,
		Source:    source,
		TakenAt:   takenAt,
	}

	ages := make([]float64, 0, len(features))
	for _, f := range features {
		switch f.Bucket {
		case domain.BucketFresh:
			snap.Fresh++
		case domain.BucketMedium:
			snap.Medium++
		case domain.BucketOld:
			snap.Old++
		case domain.BucketVeryOld:
			snap.VeryOld++
		default:
			snap.Unknown++
		}
		if f.AgeYears != nil {
			ages = append(ages, *f.AgeYears)
		}
	}

	if len(ages) > 0 {
		sort.Float64s(ages)
		mid := len(ages) / 2
		median := ages[mid]
		if len(ages)%2 == 0 {
			median = (ages[mid-1] + ages[mid]) / 2
		}
		snap.MedianAgeYears = &median
	}

	return snap
}
