package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"staleview/internal/core/domain"
)

// SnapshotRepo implements ports.SnapshotRepository.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Insert(ctx context.Context, snap *domain.StalenessSnapshot) error {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO staleness_snapshots
			(project_id, source, taken_at, fresh, medium, old, very_old, unknown, median_age_years)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, snap.ProjectID, string(snap.Source), snap.TakenAt,
		snap.Fresh, snap.Medium, snap.Old, snap.VeryOld, snap.Unknown,
		snap.MedianAgeYears,
	).Scan(&id)
	if err != nil {
		return err
	}
	snap.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *SnapshotRepo) ListByProject(ctx context.Context, projectID int, limit int) ([]domain.StalenessSnapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, project_id, source, taken_at, fresh, medium, old, very_old, unknown, median_age_years
		FROM staleness_snapshots
		WHERE project_id = $1
		ORDER BY taken_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []domain.StalenessSnapshot
	for rows.Next() {
		var s domain.StalenessSnapshot
		var id int64
		var source string
		var median sql.NullFloat64
		if err := rows.Scan(&id, &s.ProjectID, &source, &s.TakenAt,
			&s.Fresh, &s.Medium, &s.Old, &s.VeryOld, &s.Unknown, &median); err != nil {
			return nil, err
		}
		s.ID = strconv.FormatInt(id, 10)
		s.Source = domain.Provider(source)
		if median.Valid {
			v := median.Float64
			s.MedianAgeYears = &v
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
