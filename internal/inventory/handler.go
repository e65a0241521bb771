package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storeline/storeline/internal/platform/httpx"
	"github.com/storeline/storeline/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) movement(op string, post func(*http.Request, int64, MovementInput) (StockMovement, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, ok := h.businessID(w, r)
		if !ok {
			return
		}
		var req MovementRequest
		if !h.decode(w, r, &req) {
			return
		}
		result, err := post(r, businessID, req.input())
		if err != nil {
			h.respondError(w, r, op, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, result)
	}
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)

	balance, err := h.service.GetBalance(r.Context(), businessID, locationID, productID)
	if err != nil {
		h.respondError(w, r, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"balance":   balance,
		"available": balance.Available(),
	})
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	balances, err := h.service.ListBalances(r.Context(), businessID, locationID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.respondError(w, r, "list balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	filter := MovementFilter{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	filter.LocationID, _ = strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	filter.ProductID, _ = strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if typ := r.URL.Query().Get("type"); typ != "" {
		t := MovementType(typ)
		filter.Type = &t
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = parsed
		}
	}
	movements, err := h.service.ListMovements(r.Context(), businessID, filter)
	if err != nil {
		h.respondError(w, r, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) businessID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "businessID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid business id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrReservedExceeded):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "movement already recorded")
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func queryInt(r *http.Request, name string) int {
	value, _ := strconv.Atoi(r.URL.Query().Get(name))
	return value
}
