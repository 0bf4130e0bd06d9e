package aggregates

import (
	"github.com/shopspring/decimal"

	"bibliotek/domain/events"
)

// payloadDecimal reads a money field that may arrive as a decimal string
// (our own events) or as a JSON number (external producers).
func payloadDecimal(e events.DomainEvent, key string) decimal.Decimal {
	if s := e.PayloadString(key); s != "" {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	if _, ok := e.Payload[key]; ok {
		return decimal.NewFromFloat(e.PayloadFloat(key))
	}
	return decimal.Zero
}
