// Package remote is the agent's HTTP client for the server ingest API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

// DefaultTimeout bounds every ingest call; exceeding it is a transient
// failure, handled by the retry path.
const DefaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: timeout,
	}
}

type locationPayload struct {
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"`
}

// SendLocationBatch POSTs samples as one batch. Acks come back in input
// order, correlated by id.
func (c *Client) SendLocationBatch(ctx context.Context, samples []*domain.LocationSample) ([]domain.Ack, error) {
	body := make([]locationPayload, len(samples))
	for i, s := range samples {
		body[i] = locationPayload{
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

	var acks []domain.Ack
	if err := c.do(ctx, http.MethodPost, "/locations", body, &acks); err != nil {
		return nil, err
	}
	if len(acks) != len(samples) {
		return nil, fmt.Errorf("%w: expected %d acks, got %d", domain.ErrUnavailable, len(samples), len(acks))
	}
	return acks, nil
}

type deliveryStatusPayload struct {
	ID               string     `json:"id"`
	NewStatus        string     `json:"new_status"`
	CapturedAt       int64      `json:"captured_at"`
	LocationAtUpdate *geo.Point `json:"location_at_update,omitempty"`
}

func (c *Client) SendDeliveryUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) error {
	body := deliveryStatusPayload{
		ID:               rec.ID,
		NewStatus:        string(rec.NewStatus),
		CapturedAt:       rec.CapturedAt.Unix(),
		LocationAtUpdate: rec.LocationAtUpdate,
	}
	path := fmt.Sprintf("/deliveries/%s/status", rec.DeliveryID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

type proofPayload struct {
	ID         string   `json:"id"`
	Signature  []byte   `json:"signature,omitempty"`
	Photos     [][]byte `json:"photos,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CapturedAt int64    `json:"captured_at"`
}

func (c *Client) SendProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) error {
	body := proofPayload{
		ID:         rec.ID,
		Signature:  rec.SignatureBlob,
		Photos:     rec.PhotoBlobs,
		Notes:      rec.Notes,
		CapturedAt: rec.CapturedAt.Unix(),
	}
	path := fmt.Sprintf("/deliveries/%s/proof", rec.DeliveryID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// network errors and timeouts are transient by definition
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUnavailable, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func classifyStatus(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	detail := body.Error
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, detail)
	case resp.StatusCode >= 400:
		// any other 4xx means the payload itself cannot succeed
		return fmt.Errorf("%w: %s", domain.ErrValidation, detail)
	default:
		return fmt.Errorf("%w: unexpected status %d", domain.ErrUnavailable, resp.StatusCode)
	}
}
