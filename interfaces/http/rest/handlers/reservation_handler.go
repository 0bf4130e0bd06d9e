package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bibliotek/application/commands"
	"bibliotek/application/commands/bus"
	"bibliotek/application/queries"
	querybus "bibliotek/application/queries/bus"
	"bibliotek/pkg/auth"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// ReservationHandler exposes the reservation lifecycle over HTTP.
type ReservationHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	pagination common.PaginationDefaults
	logger     *zap.Logger
}

// NewReservationHandler creates the handler.
func NewReservationHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, pagination common.PaginationDefaults, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		pagination: pagination,
		logger:     logger,
	}
}

// CreateReservationRequest is the POST /reservations body. The user comes
// from the token, never the body.
type CreateReservationRequest struct {
	BookID string `json:"bookId"`
}

// CreateReservation handles POST /reservations. The reservation is accepted
// in CREATED; validation and payment settle asynchronously.
func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, errors.NewUnauthorizedError("unauthorized"))
		return
	}

	var req CreateReservationRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	cmd := &commands.CreateReservationCommand{
		BookID: req.BookID,
		UserID: user.UserID,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, map[string]string{
		"id":     cmd.CreatedID,
		"status": "CREATED",
	})
}

// GetReservation handles GET /reservations/{reservationID}.
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	query := &queries.GetReservationQuery{
		ID:     chi.URLParam(r, "reservationID"),
		Fields: parseFields(r),
	}
	reservation, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, reservation)
}

// ListReservations handles GET /reservations, scoped to the caller's own
// reservations.
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, errors.NewUnauthorizedError("unauthorized"))
		return
	}

	query := &queries.ListReservationsQuery{
		UserID: user.UserID,
		Status: r.URL.Query().Get("status"),
		Page:   common.ExtractPaginationParams(r, h.pagination),
		Fields: parseFields(r),
	}
	page, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, page)
}

// CancelReservation handles POST /reservations/{reservationID}/cancel.
func (h *ReservationHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.CancelReservationCommand{ID: chi.URLParam(r, "reservationID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{
		"id":     cmd.ID,
		"status": "CANCELLED",
	})
}

// BorrowReservation handles POST /reservations/{reservationID}/borrow.
func (h *ReservationHandler) BorrowReservation(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.BorrowReservationCommand{ID: chi.URLParam(r, "reservationID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{
		"id":     cmd.ID,
		"status": "BORROWED",
	})
}

// MarkLate handles POST /reservations/{reservationID}/late. Normally driven
// by the overdue sweep, exposed for librarians.
func (h *ReservationHandler) MarkLate(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.MarkReservationLateCommand{ID: chi.URLParam(r, "reservationID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{
		"id":     cmd.ID,
		"status": "LATE",
	})
}

// ReturnReservation handles POST /reservations/{reservationID}/return and
// reports the applied late fee.
func (h *ReservationHandler) ReturnReservation(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.ReturnReservationCommand{ID: chi.URLParam(r, "reservationID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, cmd.Result)
}
