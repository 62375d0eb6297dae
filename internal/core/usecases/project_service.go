package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"staleview/internal/core/domain"
	"staleview/internal/core/ports"
)

// ProjectService handles project catalog lookups.
type ProjectService struct {
	catalog ports.ProjectCatalog
	cache   ports.CacheService
}

// NewProjectService creates a new ProjectService.
func NewProjectService(catalog ports.ProjectCatalog, cache ports.CacheService) *ProjectService {
	return &ProjectService{catalog: catalog, cache: cache}
}

// GetByID returns one project summary.
func (s *ProjectService) GetByID(ctx context.Context, id int) (*domain.ProjectSummary, error) {
	if id <= 0 {
		return nil, fmt.Errorf("project id must be positive, got %d", id)
	}

	cacheKey := fmt.Sprintf("project:%d", id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.ProjectSummary
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	project, err := s.catalog.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	// Project metadata moves slowly; 5 minutes matches the dashboard cache.
	if s.cache != nil {
		if data, err := json.Marshal(project); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return project, nil
}

// Boundary returns the project AOI GeoJSON document.
func (s *ProjectService) Boundary(ctx context.Context, id int) ([]byte, error) {
	if id <= 0 {
		return nil, fmt.Errorf("project id must be positive, got %d", id)
	}

	cacheKey := fmt.Sprintf("project:%d:boundary", id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			return data, nil
		}
	}

	boundary, err := s.catalog.GetBoundary(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// Boundaries are effectively static once published.
		_ = s.cache.Set(ctx, cacheKey, boundary, 3600)
	}

	return boundary, nil
}

// Snapshot returns the bulk boundary snapshot for the overview layer.
func (s *ProjectService) Snapshot(ctx context.Context) ([]byte, error) {
	return s.catalog.Snapshot(ctx)
}
