package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/database"
)

var _ database.DeliveryRepository = (*DeliveryRepo)(nil)

type DeliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

func (r *DeliveryRepo) GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_id, status, status_changed_at FROM deliveries WHERE id = $1`,
		deliveryID,
	)

	var d domain.Delivery
	err := row.Scan(&d.ID, &d.EntityID, &d.Status, &d.StatusChangedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ApplyStatusUpdate runs the timestamp compare and the write as a single
// conditional UPDATE inside one transaction, so two concurrent updates
// for the same delivery cannot both believe they are the newest.
func (r *DeliveryRepo) ApplyStatusUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE deliveries SET status = $1, status_changed_at = $2
		 WHERE id = $3 AND status_changed_at <= $2`,
		rec.NewStatus, rec.CapturedAt, rec.DeliveryID,
	)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, rec.DeliveryID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check delivery exists: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	var lat, lon sql.NullFloat64
	if rec.LocationAtUpdate != nil {
		lat = sql.NullFloat64{Float64: rec.LocationAtUpdate.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: rec.LocationAtUpdate.Lon, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO delivery_status_log (id, delivery_id, status, captured_at, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.DeliveryID, rec.NewStatus, rec.CapturedAt, lat, lon,
	); err != nil {
		return fmt.Errorf("append status log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) InsertProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, rec.DeliveryID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check delivery exists: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO proof_of_delivery (id, delivery_id, signature, photos, notes, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.DeliveryID, rec.SignatureBlob, pq.ByteaArray(rec.PhotoBlobs), rec.Notes, rec.CapturedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert proof: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert proof: %w", err)
	}
	return n > 0, nil
}
