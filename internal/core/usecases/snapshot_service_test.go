package usecases_test

import (
	"context"
	"math"
	"testing"
	"time"

	"staleview/internal/core/domain"
	"staleview/internal/core/usecases"
)

// --- Mock SnapshotRepository ---

type mockSnapshotRepo struct {
	insertFn func(ctx context.Context, snap *domain.StalenessSnapshot) error
	listFn   func(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error)
}

func (m *mockSnapshotRepo) Insert(ctx context.Context, snap *domain.StalenessSnapshot) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, snap)
	}
	return nil
}

func (m *mockSnapshotRepo) ListByProject(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error) {
	if m.listFn != nil {
		return m.listFn(ctx, projectID, limit)
	}
	return nil, nil
}

func classified(bucket domain.AgeBucket, age float64) domain.ImageryFeature {
	f := domain.ImageryFeature{Bucket: bucket}
	if bucket != domain.BucketUnknown {
		f.AgeYears = &age
	}
	return f
}

// --- BuildSnapshot ---

func TestBuildSnapshot_Counts(t *testing.T) {
	features := []domain.ImageryFeature{
		classified(domain.BucketFresh, 0.5),
		classified(domain.BucketFresh, 0.7),
		classified(domain.BucketMedium, 1.5),
		classified(domain.BucketOld, 2.5),
		classified(domain.BucketVeryOld, 6.0),
		classified(domain.BucketUnknown, 0),
	}

	snap := usecases.BuildSnapshot(7, domain.ProviderWayback, features, time.Now())

	if snap.ProjectID != 7 || snap.Source != domain.ProviderWayback {
		t.Errorf("unexpected identity: %+v", snap)
	}
	if snap.Fresh != 2 || snap.Medium != 1 || snap.Old != 1 || snap.VeryOld != 1 || snap.Unknown != 1 {
		t.Errorf("unexpected counts: %+v", snap)
	}
}

func TestBuildSnapshot_MedianOddCount(t *testing.T) {
	features := []domain.ImageryFeature{
		classified(domain.BucketFresh, 0.5),
		classified(domain.BucketMedium, 1.5),
		classified(domain.BucketVeryOld, 6.0),
	}
	snap := usecases.BuildSnapshot(1, domain.ProviderWayback, features, time.Now())
	if snap.MedianAgeYears == nil || *snap.MedianAgeYears != 1.5 {
		t.Errorf("expected median 1.5, got %v", snap.MedianAgeYears)
	}
}

func TestBuildSnapshot_MedianEvenCount(t *testing.T) {
	features := []domain.ImageryFeature{
		classified(domain.BucketFresh, 1.0),
		classified(domain.BucketVeryOld, 3.0),
	}
	snap := usecases.BuildSnapshot(1, domain.ProviderWayback, features, time.Now())
	if snap.MedianAgeYears == nil || math.Abs(*snap.MedianAgeYears-2.0) > 1e-9 {
		t.Errorf("expected median 2.0, got %v", snap.MedianAgeYears)
	}
}

func TestBuildSnapshot_NoAges(t *testing.T) {
	features := []domain.ImageryFeature{
		classified(domain.BucketUnknown, 0),
		classified(domain.BucketUnknown, 0),
	}
	snap := usecases.BuildSnapshot(1, domain.ProviderWayback, features, time.Now())
	if snap.MedianAgeYears != nil {
		t.Errorf("expected nil median for unknown-only set, got %v", *snap.MedianAgeYears)
	}
	if snap.Unknown != 2 {
		t.Errorf("expected 2 unknown, got %d", snap.Unknown)
	}
}

// --- Record / History ---

func TestRecord_PersistsSnapshot(t *testing.T) {
	var inserted *domain.StalenessSnapshot
	repo := &mockSnapshotRepo{
		insertFn: func(ctx context.Context, snap *domain.StalenessSnapshot) error {
			inserted = snap
			return nil
		},
	}
	svc := usecases.NewSnapshotService(repo, nil)

	snap, err := svc.Record(context.Background(), 9, domain.ProviderOpenAerial, []domain.ImageryFeature{
		classified(domain.BucketFresh, 0.2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted == nil || inserted != snap {
		t.Error("snapshot was not inserted")
	}
	if snap.Fresh != 1 {
		t.Errorf("expected 1 fresh, got %d", snap.Fresh)
	}
}

func TestHistory_NotConfigured(t *testing.T) {
	svc := usecases.NewSnapshotService(nil, nil)
	if svc.Configured() {
		t.Error("expected not configured")
	}
	if _, err := svc.History(context.Background(), 1, 10); err == nil {
		t.Error("expected error when history store missing")
	}
}

func TestHistory_ClampsLimit(t *testing.T) {
	repo := &mockSnapshotRepo{
		listFn: func(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error) {
			if limit != 100 {
				t.Errorf("expected limit clamped to 100, got %d", limit)
			}
			return nil, nil
		},
	}
	svc := usecases.NewSnapshotService(repo, nil)
	_, _ = svc.History(context.Background(), 1, 9999)
	_, _ = svc.History(context.Background(), 1, 0)
}
