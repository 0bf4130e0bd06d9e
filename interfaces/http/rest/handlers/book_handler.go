package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/commands"
	"bibliotek/application/commands/bus"
	"bibliotek/application/queries"
	querybus "bibliotek/application/queries/bus"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

const maxBodyBytes = 1 << 20

// BookHandler exposes the catalog over HTTP.
type BookHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	pagination common.PaginationDefaults
	logger     *zap.Logger
}

// NewBookHandler creates the handler.
func NewBookHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, pagination common.PaginationDefaults, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		pagination: pagination,
		logger:     logger,
	}
}

// CreateBookRequest is the POST /books body. Prices travel as decimal
// strings.
type CreateBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	RetailPrice string `json:"retailPrice"`
}

// UpdateBookRequest is the PUT /books/{bookID} body; absent fields are left
// untouched.
type UpdateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
}

// SetPriceRequest is the PUT /books/{bookID}/price body.
type SetPriceRequest struct {
	RetailPrice string `json:"retailPrice"`
}

// CreateBook handles POST /books.
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	price, err := parsePrice(req.RetailPrice)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	cmd := &commands.CreateBookCommand{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		RetailPrice: price,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.CreatedID})
}

// GetBook handles GET /books/{bookID}. A `fields` query parameter narrows
// the returned document.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	query := &queries.GetBookQuery{
		ID:     chi.URLParam(r, "bookID"),
		Fields: parseFields(r),
	}
	book, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, book)
}

// ListBooks handles GET /books.
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	query := &queries.ListBooksQuery{
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

// UpdateBook handles PUT /books/{bookID}.
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var req UpdateBookRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	cmd := &commands.UpdateBookCommand{
		ID:          chi.URLParam(r, "bookID"),
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": cmd.ID})
}

// SetRetailPrice handles PUT /books/{bookID}/price.
func (h *BookHandler) SetRetailPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	price, err := parsePrice(req.RetailPrice)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	cmd := &commands.SetBookRetailPriceCommand{
		ID:          chi.URLParam(r, "bookID"),
		RetailPrice: price,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"id": cmd.ID})
}

// DeleteBook handles DELETE /books/{bookID}.
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.DeleteBookCommand{ID: chi.URLParam(r, "bookID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusNoContent, nil)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.NewValidationError("retailPrice must be a decimal string")
	}
	return price, nil
}

func parseFields(r *http.Request) []string {
	raw := r.URL.Query().Get("fields")
	if raw == "" {
		return nil
	}
	var fields []string
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}
