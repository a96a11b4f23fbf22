// Package events announces lead changes to other services over RabbitMQ.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Meta describes one emitted event.
type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service and version
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. lead.upserted.v1
	Type string `json:"type"`
}

// Envelope wraps every payload on the wire.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps data with a fresh ID and the current time.
func NewEnvelope(eventType, producer string, data any) Envelope {
	m := Meta{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Type: eventType,
	}
	if producer != "" {
		m.Producer = &producer
	}
	return Envelope{Meta: m, Data: data}
}

// WithCorrelation returns a copy of e carrying id.
func (e Envelope) WithCorrelation(id string) Envelope {
	if id != "" {
		e.Meta.CorrelationID = &id
	}
	return e
}
