package ports

import (
	"context"

	"staleview/internal/core/domain"
)

// CacheService provides read-through caching with per-entry TTLs.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes dashboard events to a message broker.
type EventPublisher interface {
	PublishRefresh(ctx context.Context, projectID int, source domain.Provider, featureCount int) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// SnapshotRepository persists staleness history.
type SnapshotRepository interface {
	Insert(ctx context.Context, snap *domain.StalenessSnapshot) error
	ListByProject(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error)
}
