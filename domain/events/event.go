package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata keys present on every stored event.
const (
	MetaCorrelationID = "correlationId"
	MetaStored        = "stored"
)

// DomainEvent is the immutable record persisted in the event store and
// carried over the bus. The payload stays an opaque map at this level;
// aggregates and handlers materialize it into typed values.
type DomainEvent struct {
	AggregateID   string                 `json:"aggregateId" bson:"aggregateId"`
	EventType     string                 `json:"eventType" bson:"eventType"`
	Version       int                    `json:"version" bson:"version"`
	GlobalVersion int                    `json:"globalVersion" bson:"globalVersion"`
	SchemaVersion int                    `json:"schemaVersion" bson:"schemaVersion"`
	Timestamp     time.Time              `json:"timestamp" bson:"timestamp"`
	Payload       map[string]interface{} `json:"payload" bson:"payload"`
	Metadata      map[string]interface{} `json:"metadata" bson:"metadata"`
}

// NewDomainEvent creates an event for an aggregate at the given version.
// GlobalVersion and the stored timestamp are assigned by the event store
// at persistence time.
func NewDomainEvent(aggregateID, eventType string, version int, payload map[string]interface{}) DomainEvent {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return DomainEvent{
		AggregateID:   aggregateID,
		EventType:     eventType,
		Version:       version,
		SchemaVersion: 1,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
		Metadata:      map[string]interface{}{},
	}
}

// CorrelationID returns the correlation id from metadata, empty if unset.
func (e DomainEvent) CorrelationID() string {
	if e.Metadata == nil {
		return ""
	}
	if id, ok := e.Metadata[MetaCorrelationID].(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a copy carrying the given correlation id.
// Used by choreography handlers to propagate tracing across hops.
func (e DomainEvent) WithCorrelationID(correlationID string) DomainEvent {
	meta := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[MetaCorrelationID] = correlationID
	e.Metadata = meta
	return e
}

// EnsureCorrelationID assigns a fresh correlation id when none is present.
func (e *DomainEvent) EnsureCorrelationID() {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	if e.CorrelationID() == "" {
		e.Metadata[MetaCorrelationID] = uuid.New().String()
	}
}

// Marshal serializes the event to its JSON wire format.
func (e DomainEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an event from its JSON wire format. Unknown payload and
// metadata fields survive the round trip because both are open maps.
func Unmarshal(data []byte) (DomainEvent, error) {
	var e DomainEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return DomainEvent{}, err
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = 1
	}
	return e, nil
}

// Payload accessors. Events that crossed the bus carry JSON-decoded maps,
// so numbers arrive as float64 regardless of how they were produced.

// PayloadString returns a string payload field, empty if absent.
func (e DomainEvent) PayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadFloat returns a numeric payload field, 0 if absent.
func (e DomainEvent) PayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// PayloadInt returns an integer payload field, 0 if absent.
func (e DomainEvent) PayloadInt(key string) int {
	return int(e.PayloadFloat(key))
}

// PayloadBool returns a boolean payload field, false if absent.
func (e DomainEvent) PayloadBool(key string) bool {
	if b, ok := e.Payload[key].(bool); ok {
		return b
	}
	return false
}

// PayloadTime parses an RFC3339 payload field, zero time if absent or invalid.
func (e DomainEvent) PayloadTime(key string) time.Time {
	s := e.PayloadString(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
