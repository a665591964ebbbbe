package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/database"
)

var _ database.LocationRepository = (*LocationRepo)(nil)

type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) InsertSample(ctx context.Context, s *domain.LocationSample) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO location_samples (id, entity_id, latitude, longitude, speed, heading, accuracy, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.EntityID, s.Latitude, s.Longitude, s.Speed, s.Heading, s.Accuracy, s.CapturedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert sample: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sample: %w", err)
	}
	return n > 0, nil
}

func (r *LocationRepo) GetLatest(ctx context.Context, entityID string) (*domain.LocationSample, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_id, latitude, longitude, speed, heading, accuracy, captured_at
		 FROM location_samples WHERE entity_id = $1 ORDER BY captured_at DESC LIMIT 1`,
		entityID,
	)

	var s domain.LocationSample
	err := row.Scan(&s.ID, &s.EntityID, &s.Latitude, &s.Longitude, &s.Speed, &s.Heading, &s.Accuracy, &s.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *LocationRepo) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.LocationSample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_id, latitude, longitude, speed, heading, accuracy, captured_at
		 FROM location_samples WHERE entity_id = $1 AND captured_at >= $2 AND captured_at <= $3
		 ORDER BY captured_at ASC`,
		query.EntityID, query.Start, query.End,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.LocationSample
	for rows.Next() {
		var s domain.LocationSample
		if err := rows.Scan(&s.ID, &s.EntityID, &s.Latitude, &s.Longitude, &s.Speed, &s.Heading, &s.Accuracy, &s.CapturedAt); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func (r *LocationRepo) GetAllVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM location_samples ORDER BY entity_id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.EntityID); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}
