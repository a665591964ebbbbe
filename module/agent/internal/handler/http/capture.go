// Package http exposes the agent's local capture API. Apps on the
// device write here; everything lands in the durable queue first and
// reaches the server only through the sync path.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

const proofMaxBytes = 5 << 20

type Journal interface {
	Enqueue(ctx context.Context, rec domain.Record) (string, error)
	PendingCount(ctx context.Context) (int, error)
	UsageBytes(ctx context.Context) (int64, error)
}

type Kicker interface {
	Kick()
}

type Connectivity interface {
	Online() bool
}

type CaptureHandler struct {
	journal Journal
	syncer  Kicker
	conn    Connectivity
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewCaptureHandler(journal Journal, syncer Kicker, conn Connectivity, log logrus.FieldLogger) *CaptureHandler {
	return &CaptureHandler{
		journal: journal,
		syncer:  syncer,
		conn:    conn,
		log:     log,
		now:     time.Now,
	}
}

func (h *CaptureHandler) Register(r gin.IRouter) {
	r.POST("/capture/location", h.CaptureLocation)
	r.POST("/capture/delivery", h.CaptureDelivery)
	r.POST("/capture/proof", h.CaptureProof)
	r.GET("/status", h.Status)
}

type captureLocationRequest struct {
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"`
}

func (h *CaptureHandler) CaptureLocation(c *gin.Context) {
	var req captureLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	sample := &domain.LocationSample{
		ID:         req.ID,
		EntityID:   req.EntityID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Speed:      req.Speed,
		Heading:    req.Heading,
		Accuracy:   req.Accuracy,
		CapturedAt: time.Unix(req.CapturedAt, 0),
	}
	if err := sample.Validate(h.now()); err != nil {
		h.writeError(c, err)
		return
	}

	h.accept(c, domain.NewLocationRecord(sample), false)
}

type captureDeliveryRequest struct {
	ID               string     `json:"id"`
	DeliveryID       string     `json:"delivery_id"`
	NewStatus        string     `json:"new_status"`
	CapturedAt       int64      `json:"captured_at"`
	LocationAtUpdate *geo.Point `json:"location_at_update,omitempty"`
}

func (h *CaptureHandler) CaptureDelivery(c *gin.Context) {
	var req captureDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rec := &domain.DeliveryUpdateRecord{
		ID:               req.ID,
		DeliveryID:       req.DeliveryID,
		NewStatus:        domain.DeliveryStatus(req.NewStatus),
		CapturedAt:       time.Unix(req.CapturedAt, 0),
		LocationAtUpdate: req.LocationAtUpdate,
	}
	if err := rec.Validate(h.now()); err != nil {
		h.writeError(c, err)
		return
	}

	h.accept(c, domain.NewDeliveryRecord(rec), true)
}

type captureProofRequest struct {
	ID         string   `json:"id"`
	DeliveryID string   `json:"delivery_id"`
	Signature  []byte   `json:"signature,omitempty"`
	Photos     [][]byte `json:"photos,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CapturedAt int64    `json:"captured_at"`
}

func (h *CaptureHandler) CaptureProof(c *gin.Context) {
	var req captureProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rec := &domain.ProofOfDeliveryRecord{
		ID:            req.ID,
		DeliveryID:    req.DeliveryID,
		SignatureBlob: req.Signature,
		PhotoBlobs:    req.Photos,
		Notes:         req.Notes,
		CapturedAt:    time.Unix(req.CapturedAt, 0),
	}
	if err := rec.Validate(h.now(), proofMaxBytes); err != nil {
		h.writeError(c, err)
		return
	}

	h.accept(c, domain.NewProofRecord(rec), true)
}

// accept persists the record and, for critical records, nudges the
// syncer so they do not wait for the next periodic pass.
func (h *CaptureHandler) accept(c *gin.Context, rec domain.Record, kick bool) {
	id, err := h.journal.Enqueue(c.Request.Context(), rec)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if kick {
		h.syncer.Kick()
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *CaptureHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.journal.PendingCount(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	usage, err := h.journal.UsageBytes(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":      h.conn.Online(),
		"pending":     pending,
		"usage_bytes": usage,
	})
}

func (h *CaptureHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "validation"})
	case errors.Is(err, domain.ErrStorageExhausted):
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error(), "kind": "storage_exhausted"})
	default:
		h.log.WithError(err).Error("capture request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": "internal"})
	}
}
