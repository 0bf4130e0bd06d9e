package projections

import (
	"context"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// WalletProjector folds wallet events into the wallet read model.
type WalletProjector struct {
	repo   ports.ProjectionRepository[WalletReadModel]
	logger *zap.Logger
}

// NewWalletProjector creates the projector.
func NewWalletProjector(repo ports.ProjectionRepository[WalletReadModel], logger *zap.Logger) *WalletProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletProjector{repo: repo, logger: logger}
}

// Register binds the projector to its event types.
func (p *WalletProjector) Register(bus ports.EventBus) error {
	for _, eventType := range []string{
		events.WalletCreated,
		events.WalletCredited,
		events.WalletDebited,
	} {
		if err := bus.Subscribe(eventType, p.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle folds one event into the read model.
func (p *WalletProjector) Handle(ctx context.Context, event events.DomainEvent) error {
	switch event.EventType {
	case events.WalletCreated:
		return p.repo.Save(ctx, WalletReadModel{
			ID:        event.AggregateID,
			UserID:    event.PayloadString("userId"),
			Balance:   event.PayloadString("balance"),
			Version:   event.Version,
			CreatedAt: event.Timestamp,
			UpdatedAt: event.Timestamp,
		})

	case events.WalletCredited, events.WalletDebited:
		matched, err := p.repo.UpdateIfNewer(ctx, event.AggregateID, map[string]interface{}{
			"balance": event.PayloadString("balance"),
		}, event.Version)
		if err != nil {
			return err
		}
		if !matched {
			return staleOrMissing(ctx, p.repo, event, errors.CodeWalletNotFound, p.logger)
		}
		return nil

	default:
		p.logger.Debug("wallet projector ignoring event", zap.String("eventType", event.EventType))
		return nil
	}
}
