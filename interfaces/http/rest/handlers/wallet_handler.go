package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/commands"
	"bibliotek/application/commands/bus"
	"bibliotek/application/queries"
	querybus "bibliotek/application/queries/bus"
	"bibliotek/pkg/auth"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// WalletHandler exposes wallets over HTTP.
type WalletHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	logger     *zap.Logger
}

// NewWalletHandler creates the handler.
func NewWalletHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		logger:     logger,
	}
}

// CreateWalletRequest is the POST /wallets body.
type CreateWalletRequest struct {
	InitialBalance string `json:"initialBalance"`
}

// DepositRequest is the POST /wallets/{walletID}/deposit body.
type DepositRequest struct {
	Amount string `json:"amount"`
}

// CreateWallet handles POST /wallets, opening a wallet for the caller.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, errors.NewUnauthorizedError("unauthorized"))
		return
	}

	var req CreateWalletRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	balance, err := parseAmount(req.InitialBalance)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	cmd := &commands.CreateWalletCommand{
		UserID:         user.UserID,
		InitialBalance: balance,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.CreatedID})
}

// GetWallet handles GET /wallets/{walletID}.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	query := &queries.GetWalletQuery{ID: chi.URLParam(r, "walletID")}
	wallet, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, wallet)
}

// GetOwnWallet handles GET /wallets/me.
func (h *WalletHandler) GetOwnWallet(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, errors.NewUnauthorizedError("unauthorized"))
		return
	}

	query := &queries.GetWalletByUserQuery{UserID: user.UserID}
	wallet, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, wallet)
}

// Deposit handles POST /wallets/{walletID}/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	cmd := &commands.DepositCommand{
		WalletID: chi.URLParam(r, "walletID"),
		Amount:   amount,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": cmd.WalletID})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.NewValidationError("amount must be a decimal string")
	}
	return amount, nil
}
