package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/database"
)

var (
	_ database.GeofenceRepository      = (*GeofenceRepo)(nil)
	_ database.GeofenceStateRepository = (*GeofenceRepo)(nil)
)

// GeofenceRepo reads geofence definitions (owned by fleet management)
// and owns the per-entity containment state and derived events.
type GeofenceRepo struct {
	db *sql.DB
}

func NewGeofenceRepo(db *sql.DB) *GeofenceRepo {
	return &GeofenceRepo{db: db}
}

func (r *GeofenceRepo) ActiveForEntity(ctx context.Context, entityID string) ([]domain.Geofence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.kind, g.shape
		 FROM geofences g
		 JOIN geofence_assignments a ON a.geofence_id = g.id
		 WHERE g.active AND (a.entity_id = $1 OR a.entity_id = '*')`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Geofence
	for rows.Next() {
		var (
			gf    domain.Geofence
			shape []byte
		)
		if err := rows.Scan(&gf.ID, &gf.Name, &gf.Kind, &shape); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(shape, &gf.Shape); err != nil {
			return nil, fmt.Errorf("decode geofence %s shape: %w", gf.ID, err)
		}
		results = append(results, gf)
	}
	return results, rows.Err()
}

func (r *GeofenceRepo) GetContainment(ctx context.Context, entityID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT geofence_id, inside FROM entity_geofence_state WHERE entity_id = $1`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	state := make(map[string]bool)
	for rows.Next() {
		var (
			id     string
			inside bool
		)
		if err := rows.Scan(&id, &inside); err != nil {
			return nil, err
		}
		state[id] = inside
	}
	return state, rows.Err()
}

func (r *GeofenceRepo) SetContainment(ctx context.Context, entityID, geofenceID string, inside bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entity_geofence_state (entity_id, geofence_id, inside)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (entity_id, geofence_id) DO UPDATE SET inside = EXCLUDED.inside`,
		entityID, geofenceID, inside,
	)
	return err
}

func (r *GeofenceRepo) InsertEvent(ctx context.Context, e *domain.GeofenceEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO geofence_events (id, entity_id, geofence_id, kind, at, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.EntityID, e.GeofenceID, e.Kind, e.At, e.Location.Lat, e.Location.Lon,
	)
	return err
}
