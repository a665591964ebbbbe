package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/internal/metrics"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/database"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/publisher"
)

// DefaultProofMaxBytes caps a single proof-of-delivery record. Oversized
// proofs are rejected, never truncated.
const DefaultProofMaxBytes = 5 << 20

// IngestService validates and persists incoming location and delivery
// records, derives edge-triggered geofence events, and fans results out
// to subscribers.
type IngestService struct {
	locations  database.LocationRepository
	deliveries database.DeliveryRepository
	geofences  database.GeofenceRepository
	state      database.GeofenceStateRepository
	evaluator  *Evaluator
	pub        publisher.EventPublisher
	log        logrus.FieldLogger

	proofMaxBytes int
	now           func() time.Time
}

func NewIngestService(
	locations database.LocationRepository,
	deliveries database.DeliveryRepository,
	geofences database.GeofenceRepository,
	state database.GeofenceStateRepository,
	evaluator *Evaluator,
	pub publisher.EventPublisher,
	log logrus.FieldLogger,
) *IngestService {
	return &IngestService{
		locations:     locations,
		deliveries:    deliveries,
		geofences:     geofences,
		state:         state,
		evaluator:     evaluator,
		pub:           pub,
		log:           log,
		proofMaxBytes: DefaultProofMaxBytes,
		now:           time.Now,
	}
}

// IngestLocation persists a sample, re-evaluates the entity's geofence
// containment, and publishes the update plus any derived events.
// Resubmitting an already stored sample id returns the same ack without
// re-evaluating, so client retries cannot duplicate geofence events.
func (s *IngestService) IngestLocation(ctx context.Context, sample *domain.LocationSample) (*domain.Ack, error) {
	if err := sample.Validate(s.now()); err != nil {
		metrics.SamplesIngested.WithLabelValues("rejected").Inc()
		return nil, err
	}

	inserted, err := s.locations.InsertSample(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("%w: persist sample: %v", domain.ErrUnavailable, err)
	}
	if !inserted {
		metrics.SamplesIngested.WithLabelValues("duplicate").Inc()
		return &domain.Ack{ID: sample.ID, Status: domain.AckOK}, nil
	}

	if err := s.evaluateGeofences(ctx, sample); err != nil {
		return nil, err
	}

	if err := s.pub.PublishLocation(ctx, sample); err != nil {
		// fan-out is best effort; the sample is already durable
		s.log.WithError(err).WithField("sample_id", sample.ID).Warn("publish location failed")
	}

	metrics.SamplesIngested.WithLabelValues("accepted").Inc()
	return &domain.Ack{ID: sample.ID, Status: domain.AckOK}, nil
}

// IngestLocationBatch processes samples in order and returns one ack per
// input, same order. Validation failures reject the single sample;
// storage failures abort the batch so the client retries it whole.
func (s *IngestService) IngestLocationBatch(ctx context.Context, samples []domain.LocationSample) ([]domain.Ack, error) {
	acks := make([]domain.Ack, 0, len(samples))
	for i := range samples {
		ack, err := s.IngestLocation(ctx, &samples[i])
		switch {
		case err == nil:
			acks = append(acks, *ack)
		case errors.Is(err, domain.ErrValidation):
			s.log.WithError(err).WithField("sample_id", samples[i].ID).Warn("rejected location sample")
			acks = append(acks, domain.Ack{ID: samples[i].ID, Status: domain.AckRejected, Kind: "validation"})
		default:
			return nil, err
		}
	}
	return acks, nil
}

func (s *IngestService) evaluateGeofences(ctx context.Context, sample *domain.LocationSample) error {
	fences, err := s.geofences.ActiveForEntity(ctx, sample.EntityID)
	if err != nil {
		return fmt.Errorf("%w: load geofences: %v", domain.ErrUnavailable, err)
	}
	if len(fences) == 0 {
		return nil
	}

	statuses, err := s.evaluator.Evaluate(sample.Point(), fences)
	if err != nil {
		// a malformed definition is the definition owner's bug; it must
		// not fail ingestion of a valid sample
		s.log.WithError(err).WithFields(logrus.Fields{
			"entity_id": sample.EntityID,
			"sample_id": sample.ID,
		}).Error("geofence evaluation failed")
		return nil
	}

	known, err := s.state.GetContainment(ctx, sample.EntityID)
	if err != nil {
		return fmt.Errorf("%w: load containment state: %v", domain.ErrUnavailable, err)
	}

	fenceByID := make(map[string]*domain.Geofence, len(fences))
	for i := range fences {
		fenceByID[fences[i].ID] = &fences[i]
	}

	for _, st := range statuses {
		prev, seen := known[st.GeofenceID]
		if seen && prev == st.Inside {
			continue // level, not edge: no event
		}

		if err := s.state.SetContainment(ctx, sample.EntityID, st.GeofenceID, st.Inside); err != nil {
			return fmt.Errorf("%w: store containment state: %v", domain.ErrUnavailable, err)
		}
		if !seen && !st.Inside {
			// first observation outside a zone establishes the baseline
			// without an exit event
			continue
		}

		event := &domain.GeofenceEvent{
			ID:         uuid.NewString(),
			EntityID:   sample.EntityID,
			GeofenceID: st.GeofenceID,
			Kind:       eventKind(fenceByID[st.GeofenceID], st.Inside),
			At:         sample.CapturedAt,
			Location:   sample.Point(),
		}
		if err := s.state.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("%w: persist geofence event: %v", domain.ErrUnavailable, err)
		}
		metrics.GeofenceEvents.WithLabelValues(string(event.Kind)).Inc()

		if err := s.pub.PublishGeofenceEvent(ctx, event); err != nil {
			s.log.WithError(err).WithField("event_id", event.ID).Warn("publish geofence event failed")
		}
	}
	return nil
}

// eventKind maps a containment transition to its event kind. Leaving an
// inclusion zone or entering an exclusion zone is a violation; all other
// transitions are plain enter/exit.
func eventKind(gf *domain.Geofence, inside bool) domain.GeofenceEventKind {
	if gf != nil {
		if inside && gf.Kind == domain.GeofenceExclusion {
			return domain.GeofenceViolation
		}
		if !inside && gf.Kind == domain.GeofenceInclusion {
			return domain.GeofenceViolation
		}
	}
	if inside {
		return domain.GeofenceEnter
	}
	return domain.GeofenceExit
}

// IngestDeliveryUpdate applies a status update under last-writer-wins:
// if the stored status timestamp is strictly newer than the record's,
// the caller gets ErrConflict and should discard its copy.
func (s *IngestService) IngestDeliveryUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) (*domain.Ack, error) {
	if err := rec.Validate(s.now()); err != nil {
		metrics.DeliveryUpdates.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if current, err := s.deliveries.GetDelivery(ctx, rec.DeliveryID); err == nil {
		if current.Status != rec.NewStatus && !current.Status.CanTransition(rec.NewStatus) {
			// LWW still applies; an out-of-order transition is only an anomaly
			s.log.WithFields(logrus.Fields{
				"delivery_id": rec.DeliveryID,
				"from":        current.Status,
				"to":          rec.NewStatus,
			}).Warn("irregular delivery status transition")
		}
	} else if errors.Is(err, domain.ErrNotFound) {
		metrics.DeliveryUpdates.WithLabelValues("not_found").Inc()
		return nil, err
	} else {
		return nil, fmt.Errorf("%w: load delivery: %v", domain.ErrUnavailable, err)
	}

	err := s.deliveries.ApplyStatusUpdate(ctx, rec)
	switch {
	case errors.Is(err, domain.ErrConflict):
		metrics.DeliveryUpdates.WithLabelValues("conflict").Inc()
		return nil, err
	case errors.Is(err, domain.ErrNotFound):
		metrics.DeliveryUpdates.WithLabelValues("not_found").Inc()
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: apply status update: %v", domain.ErrUnavailable, err)
	}

	if err := s.pub.PublishDeliveryEvent(ctx, rec); err != nil {
		s.log.WithError(err).WithField("delivery_id", rec.DeliveryID).Warn("publish delivery event failed")
	}

	metrics.DeliveryUpdates.WithLabelValues("applied").Inc()
	return &domain.Ack{ID: rec.ID, Status: domain.AckOK}, nil
}

// AttachProof stores a proof-of-delivery record. Idempotent by record
// id: resubmission after a lost ack returns the same ack.
func (s *IngestService) AttachProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) (*domain.Ack, error) {
	if err := rec.Validate(s.now(), s.proofMaxBytes); err != nil {
		return nil, err
	}

	inserted, err := s.deliveries.InsertProof(ctx, rec)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: persist proof: %v", domain.ErrUnavailable, err)
	}
	if !inserted {
		s.log.WithField("proof_id", rec.ID).Debug("duplicate proof submission")
	}
	return &domain.Ack{ID: rec.ID, Status: domain.AckOK}, nil
}

// Query pass-throughs for the read API.

func (s *IngestService) GetLatest(ctx context.Context, entityID string) (*domain.LocationSample, error) {
	return s.locations.GetLatest(ctx, entityID)
}

func (s *IngestService) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.LocationSample, error) {
	return s.locations.GetHistory(ctx, query)
}

func (s *IngestService) GetAllVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	return s.locations.GetAllVehicles(ctx)
}
