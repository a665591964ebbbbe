package domain

import (
	"errors"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
)

// Error taxonomy shared by the agent and the server. Callers classify
// with errors.Is; transport layers map these to status codes and back.
var (
	// ErrInvalidGeometry aliases the kernel's sentinel so callers can
	// match either package.
	ErrInvalidGeometry = geo.ErrInvalidGeometry

	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrConflict means the server already holds a newer update for the
	// same delivery. The local record is discarded, server wins.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing entity or delivery reference. Not
	// retried: a retry cannot create the missing row.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a transient failure (network, 5xx, storage
	// down). Retried with backoff.
	ErrUnavailable = errors.New("unavailable")

	// ErrStorageExhausted is returned when the local queue cannot accept
	// a delivery or proof record without evicting business data.
	ErrStorageExhausted = errors.New("storage exhausted")

	// ErrDropped marks a record that exhausted its retry budget.
	ErrDropped = errors.New("dropped")
)
