package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainEvent(t *testing.T) {
	e := NewDomainEvent("agg-1", BookCreated, 1, map[string]interface{}{"title": "t"})

	assert.Equal(t, "agg-1", e.AggregateID)
	assert.Equal(t, BookCreated, e.EventType)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, 1, e.SchemaVersion)
	assert.Equal(t, "t", e.PayloadString("title"))
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}

func TestCorrelationIDPropagation(t *testing.T) {
	e := NewDomainEvent("agg-1", BookCreated, 1, nil)
	assert.Empty(t, e.CorrelationID())

	withID := e.WithCorrelationID("corr-1")
	assert.Equal(t, "corr-1", withID.CorrelationID())
	// Copy-on-write: the original metadata stays untouched.
	assert.Empty(t, e.CorrelationID())

	e.EnsureCorrelationID()
	assert.NotEmpty(t, e.CorrelationID())
}

func TestMarshalRoundTrip(t *testing.T) {
	e := NewDomainEvent("agg-1", ReservationReturned, 5, map[string]interface{}{
		"daysLate":       3,
		"lateFeeApplied": "0.6",
		"futureField":    map[string]interface{}{"nested": true},
	})
	e = e.WithCorrelationID("corr-1")
	e.GlobalVersion = 42

	data, err := e.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, e.AggregateID, decoded.AggregateID)
	assert.Equal(t, e.EventType, decoded.EventType)
	assert.Equal(t, 5, decoded.Version)
	assert.Equal(t, 42, decoded.GlobalVersion)
	assert.Equal(t, "corr-1", decoded.CorrelationID())
	assert.Equal(t, 3, decoded.PayloadInt("daysLate"))
	assert.Equal(t, "0.6", decoded.PayloadString("lateFeeApplied"))
	// Unknown payload fields survive the round trip.
	assert.Contains(t, decoded.Payload, "futureField")
}

func TestUnmarshalDefaultsSchemaVersion(t *testing.T) {
	decoded, err := Unmarshal([]byte(`{"aggregateId":"a","eventType":"BOOK_CREATED","version":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.SchemaVersion)
}

func TestNewFailedEvent(t *testing.T) {
	original := NewDomainEvent("res-1", ReservationBookValidation, 2, map[string]interface{}{
		"bookId": "book-1",
	})
	original = original.WithCorrelationID("corr-1")

	failed := NewFailedEvent(original, assert.AnError, false)

	assert.Equal(t, "RESERVATION_BOOK_VALIDATION_FAILED", failed.EventType)
	assert.Equal(t, "res-1", failed.AggregateID)
	assert.Equal(t, "corr-1", failed.CorrelationID())
	assert.Equal(t, ReservationBookValidation, failed.PayloadString(FailedOriginalEventType))

	payload, ok := failed.Payload[FailedOriginalPayload].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "book-1", payload["bookId"])

	// Sanitized: non-AppError details stay out of the payload in production.
	descriptor, ok := failed.Payload[FailedError].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "internal error", descriptor["message"])
	assert.NotContains(t, descriptor, "detail")
}

func TestNewFailedEventAssignsCorrelationID(t *testing.T) {
	original := NewDomainEvent("res-1", ReservationBookValidation, 2, nil)
	failed := NewFailedEvent(original, assert.AnError, true)
	assert.NotEmpty(t, failed.CorrelationID())
}
