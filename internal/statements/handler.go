package statements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

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

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req GenerateStatementRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, _ := time.Parse("2006-01-02", req.PeriodStart)
	end, _ := time.Parse("2006-01-02", req.PeriodEnd)
	// The end date is inclusive: cover the whole day.
	end = end.Add(24*time.Hour - time.Nanosecond)

	statement, err := h.service.Generate(r.Context(), businessID, req.AccountID, start, end)
	if err != nil {
		h.respondError(w, r, "generate statement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, statement)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	statement, err := h.service.Get(r.Context(), businessID, statementID)
	if err != nil {
		h.respondError(w, r, "get statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, statement)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	body, err := h.service.Render(r.Context(), businessID, statementID)
	if err != nil {
		h.respondError(w, r, "render statement", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	statementID, ok := h.pathID(w, r, "statementID")
	if !ok {
		return
	}
	var req SendStatementRequest
	if !h.decode(w, r, &req) {
		return
	}
	statement, err := h.service.Send(r.Context(), businessID, statementID, req.Recipient)
	if err != nil {
		h.respondError(w, r, "send statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, statement)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, _ := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if accountID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "account_id query parameter required")
		return
	}
	statements, err := h.service.List(r.Context(), businessID, accountID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.respondError(w, r, "list statements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"statements": statements})
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
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadySent):
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
