package services

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/domain/core/aggregates"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// WalletService executes wallet commands. Payment charges arrive through
// the choreography, deposits and creation through HTTP.
type WalletService struct {
	writer eventWriter
	repo   ports.ProjectionRepository[projections.WalletReadModel]
	logger *zap.Logger
}

// NewWalletService creates the service. The read model is only used to map
// a user to their wallet; all balance math runs on the rehydrated aggregate.
func NewWalletService(store ports.EventStore, bus ports.EventBus, repo ports.ProjectionRepository[projections.WalletReadModel], logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletService{
		writer: newEventWriter(store, bus, logger),
		repo:   repo,
		logger: logger,
	}
}

// CreateWallet opens a wallet for a user and returns its id.
func (s *WalletService) CreateWallet(ctx context.Context, userID string, initialBalance decimal.Decimal) (string, error) {
	wallet, err := aggregates.NewWallet(aggregates.CreateWalletProps{
		UserID:         userID,
		InitialBalance: initialBalance,
	})
	if err != nil {
		return "", err
	}
	if _, err := s.writer.commit(ctx, wallet.ID(), wallet.UncommittedEvents(), ""); err != nil {
		return "", err
	}
	return wallet.ID(), nil
}

// Deposit credits a wallet.
func (s *WalletService) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) error {
	wallet, err := s.load(ctx, walletID)
	if err != nil {
		return err
	}
	if err := wallet.Credit(amount, "deposit"); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, wallet.ID(), wallet.UncommittedEvents(), "")
	return err
}

// ChargeUser debits the user's wallet for a reservation fee. Fails with
// WALLET_NOT_FOUND when the user has no wallet and INSUFFICIENT_FUNDS when
// the balance does not cover the fee.
func (s *WalletService) ChargeUser(ctx context.Context, userID, reservationID string, amount decimal.Decimal, correlationID string) error {
	walletID, err := s.walletIDForUser(ctx, userID)
	if err != nil {
		return err
	}
	wallet, err := s.load(ctx, walletID)
	if err != nil {
		return err
	}
	if err := wallet.Debit(amount, "reservation "+reservationID); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, wallet.ID(), wallet.UncommittedEvents(), correlationID)
	return err
}

func (s *WalletService) walletIDForUser(ctx context.Context, userID string) (string, error) {
	page, _, err := s.repo.GetAll(ctx,
		map[string]interface{}{"userId": userID},
		common.PaginationParams{Page: 1, Limit: 1},
		ports.QueryOptions{FieldMask: []string{"userId"}})
	if err != nil {
		return "", err
	}
	if len(page) == 0 {
		return "", errors.NewNotFoundError(errors.CodeWalletNotFound, "wallet for user "+userID)
	}
	return page[0].ID, nil
}

func (s *WalletService) load(ctx context.Context, id string) (*aggregates.Wallet, error) {
	stream, err := s.writer.store.GetEventsForAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 {
		return nil, errors.NewNotFoundError(errors.CodeWalletNotFound, "wallet")
	}
	return aggregates.RehydrateWallet(stream, s.logger)
}
