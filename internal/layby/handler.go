package layby

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storeline/storeline/internal/accounts"
	"github.com/storeline/storeline/internal/inventory"
	"github.com/storeline/storeline/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req CreateLaybyRequest
	if !h.decode(w, r, &req) {
		return
	}
	layby, err := h.service.Create(r.Context(), businessID, req)
	if err != nil {
		h.respondError(w, r, "create layby", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, layby)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	laybyID, ok := h.pathID(w, r, "laybyID")
	if !ok {
		return
	}
	layby, err := h.service.Get(r.Context(), businessID, laybyID)
	if err != nil {
		h.respondError(w, r, "get layby", err)
		return
	}
	httpx.JSON(w, http.StatusOK, layby)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	req := ListLaybysRequest{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := LaybyStatus(status)
		req.Status = &s
	}
	req.CustomerID, _ = strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	laybys, total, err := h.service.List(r.Context(), businessID, req)
	if err != nil {
		h.respondError(w, r, "list laybys", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"laybys": laybys,
		"total":  total,
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	laybyID, ok := h.pathID(w, r, "laybyID")
	if !ok {
		return
	}
	layby, err := h.service.Cancel(r.Context(), businessID, laybyID)
	if err != nil {
		h.respondError(w, r, "cancel layby", err)
		return
	}
	httpx.JSON(w, http.StatusOK, layby)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	laybyID, ok := h.pathID(w, r, "laybyID")
	if !ok {
		return
	}
	layby, err := h.service.Complete(r.Context(), businessID, laybyID)
	if err != nil {
		h.respondError(w, r, "complete layby", err)
		return
	}
	httpx.JSON(w, http.StatusOK, layby)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrLaybyNotOpen),
		errors.Is(err, ErrNotPaidOff),
		errors.Is(err, ErrReservationFinal),
		errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}

func queryInt(r *http.Request, name string) int {
	value, _ := strconv.Atoi(r.URL.Query().Get(name))
	return value
}
