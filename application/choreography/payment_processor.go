package choreography

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/application/services"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// PaymentProcessor is the wallets-service side of the choreography: it charges
// the reservation fee and reports the verdict back.
type PaymentProcessor struct {
	wallets *services.WalletService
	bus     ports.EventBus
	logger  *zap.Logger
}

// NewPaymentProcessor creates the processor.
func NewPaymentProcessor(wallets *services.WalletService, bus ports.EventBus, logger *zap.Logger) *PaymentProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentProcessor{wallets: wallets, bus: bus, logger: logger}
}

// Register binds the processor to payment requests.
func (p *PaymentProcessor) Register(bus ports.EventBus) error {
	return bus.Subscribe(events.ReservationPendingPayment, p.onPendingPayment)
}

func (p *PaymentProcessor) onPendingPayment(ctx context.Context, event events.DomainEvent) error {
	reservationID := event.AggregateID
	userID := event.PayloadString("userId")

	fee, err := decimal.NewFromString(event.PayloadString("fee"))
	if err != nil {
		fee = decimal.NewFromFloat(event.PayloadFloat("fee"))
	}

	chargeErr := p.wallets.ChargeUser(ctx, userID, reservationID, fee, event.CorrelationID())
	if chargeErr == nil {
		completed := events.NewDomainEvent(reservationID, events.ReservationPaymentCompleted, 1, map[string]interface{}{
			"reservationId": reservationID,
			"userId":        userID,
			"amount":        fee.String(),
		})
		return p.bus.Publish(ctx, completed.WithCorrelationID(event.CorrelationID()))
	}

	appErr := errors.GetAppError(chargeErr)
	if appErr == nil || appErr.Type == errors.ErrorTypeInfrastructure {
		// The wallet could not be read or written; retry the delivery.
		return chargeErr
	}

	p.logger.Info("payment declined",
		zap.String("reservationId", reservationID),
		zap.String("userId", userID),
		zap.String("code", appErr.Code))
	declined := events.NewDomainEvent(reservationID, events.ReservationPaymentDeclined, 1, map[string]interface{}{
		"reservationId": reservationID,
		"userId":        userID,
		"amount":        fee.String(),
		"reason":        appErr.Code,
	})
	return p.bus.Publish(ctx, declined.WithCorrelationID(event.CorrelationID()))
}
