package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

type ingestService interface {
	IngestLocationBatch(ctx context.Context, samples []domain.LocationSample) ([]domain.Ack, error)
	IngestDeliveryUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) (*domain.Ack, error)
	AttachProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) (*domain.Ack, error)
	GetLatest(ctx context.Context, entityID string) (*domain.LocationSample, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.LocationSample, error)
	GetAllVehicles(ctx context.Context) ([]domain.Vehicle, error)
}

type IngestHandler struct {
	svc ingestService
}

func NewIngestHandler(svc ingestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

func (h *IngestHandler) Register(r *gin.RouterGroup) {
	r.POST("/locations", h.IngestLocations)
	r.PUT("/deliveries/:delivery_id/status", h.UpdateDeliveryStatus)
	r.POST("/deliveries/:delivery_id/proof", h.AttachProof)

	r.GET("/vehicles", h.GetAllVehicles)
	r.GET("/vehicles/:entity_id/location", h.GetLatestLocation)
	r.GET("/vehicles/:entity_id/history", h.GetHistory)
}

type locationRequest struct {
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"`
}

func (h *IngestHandler) IngestLocations(c *gin.Context) {
	var body []locationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": "validation"})
		return
	}

	samples := make([]domain.LocationSample, len(body))
	for i, req := range body {
		samples[i] = domain.LocationSample{
			ID:         req.ID,
			EntityID:   req.EntityID,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			Speed:      req.Speed,
			Heading:    req.Heading,
			Accuracy:   req.Accuracy,
			CapturedAt: time.Unix(req.CapturedAt, 0),
		}
	}

	acks, err := h.svc.IngestLocationBatch(c.Request.Context(), samples)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acks)
}

type deliveryStatusRequest struct {
	ID               string     `json:"id"`
	NewStatus        string     `json:"new_status"`
	CapturedAt       int64      `json:"captured_at"`
	LocationAtUpdate *geo.Point `json:"location_at_update,omitempty"`
}

func (h *IngestHandler) UpdateDeliveryStatus(c *gin.Context) {
	var body deliveryStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": "validation"})
		return
	}

	rec := &domain.DeliveryUpdateRecord{
		ID:               body.ID,
		DeliveryID:       c.Param("delivery_id"),
		NewStatus:        domain.DeliveryStatus(body.NewStatus),
		CapturedAt:       time.Unix(body.CapturedAt, 0),
		LocationAtUpdate: body.LocationAtUpdate,
	}

	ack, err := h.svc.IngestDeliveryUpdate(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

type proofRequest struct {
	ID         string   `json:"id"`
	Signature  []byte   `json:"signature,omitempty"`
	Photos     [][]byte `json:"photos,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CapturedAt int64    `json:"captured_at"`
}

func (h *IngestHandler) AttachProof(c *gin.Context) {
	var body proofRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": "validation"})
		return
	}

	rec := &domain.ProofOfDeliveryRecord{
		ID:            body.ID,
		DeliveryID:    c.Param("delivery_id"),
		SignatureBlob: body.Signature,
		PhotoBlobs:    body.Photos,
		Notes:         body.Notes,
		CapturedAt:    time.Unix(body.CapturedAt, 0),
	}

	ack, err := h.svc.AttachProof(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

type locationResponse struct {
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"`
}

func (h *IngestHandler) GetAllVehicles(c *gin.Context) {
	vehicles, err := h.svc.GetAllVehicles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch vehicles"})
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

func (h *IngestHandler) GetLatestLocation(c *gin.Context) {
	sample, err := h.svc.GetLatest(c.Request.Context(), c.Param("entity_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLocationResponse(sample))
}

func (h *IngestHandler) GetHistory(c *gin.Context) {
	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start parameter", "kind": "validation"})
		return
	}
	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end parameter", "kind": "validation"})
		return
	}

	query := &domain.HistoryQuery{
		EntityID: c.Param("entity_id"),
		Start:    time.Unix(start, 0),
		End:      time.Unix(end, 0),
	}
	locations, err := h.svc.GetHistory(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	results := make([]locationResponse, len(locations))
	for i := range locations {
		results[i] = toLocationResponse(&locations[i])
	}
	c.JSON(http.StatusOK, results)
}

func toLocationResponse(s *domain.LocationSample) locationResponse {
	return locationResponse{
		ID:         s.ID,
		EntityID:   s.EntityID,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Speed:      s.Speed,
		Heading:    s.Heading,
		Accuracy:   s.Accuracy,
		CapturedAt: s.CapturedAt.Unix(),
	}
}

// writeError maps the error taxonomy to status codes with a
// machine-readable kind the sync client can branch on.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "conflict"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "not_found"})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidGeometry):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "validation"})
	case errors.Is(err, domain.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": "unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "kind": "unavailable"})
	}
}
