package domain

import (
	"encoding/json"
	"fmt"
)

// RecordKind tags the payload stored in a queue entry. Eviction policy
// depends on it: location samples are regenerable and may be shed under
// storage pressure, delivery and proof records are not.
type RecordKind string

const (
	KindLocation RecordKind = "location"
	KindDelivery RecordKind = "delivery_update"
	KindProof    RecordKind = "proof_of_delivery"
)

// Record is the tagged union queued for sync. Exactly one of the
// variant pointers is non-nil, matching Kind.
type Record struct {
	Kind     RecordKind
	Location *LocationSample
	Delivery *DeliveryUpdateRecord
	Proof    *ProofOfDeliveryRecord
}

func NewLocationRecord(s *LocationSample) Record {
	return Record{Kind: KindLocation, Location: s}
}

func NewDeliveryRecord(r *DeliveryUpdateRecord) Record {
	return Record{Kind: KindDelivery, Delivery: r}
}

func NewProofRecord(r *ProofOfDeliveryRecord) Record {
	return Record{Kind: KindProof, Proof: r}
}

func (r Record) ID() string {
	switch r.Kind {
	case KindLocation:
		return r.Location.ID
	case KindDelivery:
		return r.Delivery.ID
	case KindProof:
		return r.Proof.ID
	}
	return ""
}

// Critical reports whether the record carries non-regenerable business
// data. Critical records are never evicted and their terminal drops are
// surfaced to the error sink.
func (r Record) Critical() bool {
	return r.Kind == KindDelivery || r.Kind == KindProof
}

func (r Record) MarshalPayload() ([]byte, error) {
	switch r.Kind {
	case KindLocation:
		return json.Marshal(r.Location)
	case KindDelivery:
		return json.Marshal(r.Delivery)
	case KindProof:
		return json.Marshal(r.Proof)
	}
	return nil, fmt.Errorf("%w: unknown record kind %q", ErrValidation, r.Kind)
}

func DecodeRecord(kind RecordKind, payload []byte) (Record, error) {
	switch kind {
	case KindLocation:
		var s LocationSample
		if err := json.Unmarshal(payload, &s); err != nil {
			return Record{}, fmt.Errorf("decode location record: %w", err)
		}
		return NewLocationRecord(&s), nil
	case KindDelivery:
		var d DeliveryUpdateRecord
		if err := json.Unmarshal(payload, &d); err != nil {
			return Record{}, fmt.Errorf("decode delivery record: %w", err)
		}
		return NewDeliveryRecord(&d), nil
	case KindProof:
		var p ProofOfDeliveryRecord
		if err := json.Unmarshal(payload, &p); err != nil {
			return Record{}, fmt.Errorf("decode proof record: %w", err)
		}
		return NewProofRecord(&p), nil
	}
	return Record{}, fmt.Errorf("%w: unknown record kind %q", ErrValidation, kind)
}
