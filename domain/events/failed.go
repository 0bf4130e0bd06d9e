package events

import (
	"github.com/google/uuid"

	"bibliotek/pkg/errors"
)

// FailedEventPayload keys.
const (
	FailedOriginalEventType = "originalEventType"
	FailedOriginalPayload   = "originalPayload"
	FailedError             = "error"
)

// NewFailedEvent wraps a handler error into a `<OriginalType>_FAILED` event so
// downstream choreography can react instead of losing the hop. The original
// payload and correlation id are preserved; the error descriptor is sanitized
// and only carries a cause chain outside production.
func NewFailedEvent(original DomainEvent, err error, includeDetail bool) DomainEvent {
	descriptor := map[string]interface{}{
		"code":    errors.CodeInternalError,
		"message": "internal error",
	}
	if appErr := errors.GetAppError(err); appErr != nil {
		descriptor["code"] = appErr.Code
		descriptor["message"] = appErr.Message
	} else if err != nil && includeDetail {
		descriptor["message"] = err.Error()
	}
	if includeDetail && err != nil {
		descriptor["detail"] = err.Error()
	}

	failed := NewDomainEvent(original.AggregateID, original.EventType+FailedSuffix, original.Version, map[string]interface{}{
		FailedOriginalEventType: original.EventType,
		FailedOriginalPayload:   original.Payload,
		FailedError:             descriptor,
	})

	correlationID := original.CorrelationID()
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return failed.WithCorrelationID(correlationID)
}
