package accounts

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

// Handler manages account ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.OpenAccount(r.Context(), businessID, req)
	if err != nil {
		h.respondError(w, r, "open account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), businessID, accountID)
	if err != nil {
		h.respondError(w, r, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	req := ListAccountsRequest{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := AccountStatus(status)
		req.Status = &s
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	accounts, total, err := h.service.ListAccounts(r.Context(), businessID, req)
	if err != nil {
		h.respondError(w, r, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"accounts":   accounts,
		"pagination": shared.NewPagination(req.Offset/max(req.Limit, 1)+1, req.Limit, total),
	})
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.SetStatus(r.Context(), businessID, accountID, req.Status)
	if err != nil {
		h.respondError(w, r, "set account status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createCharge(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.CreateCharge(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "create charge", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.CreateAdjustment(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "create adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) createWriteOff(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req WriteOffRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.CreateWriteOff(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "create write-off", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RecordPayment(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathID(w, r, "paymentID")
	if !ok {
		return
	}
	var req AllocatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := h.service.AllocatePayment(r.Context(), businessID, paymentID, req)
	if err != nil {
		h.respondError(w, r, "allocate payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathID(w, r, "paymentID")
	if !ok {
		return
	}
	payment, err := h.service.GetPayment(r.Context(), businessID, paymentID)
	if err != nil {
		h.respondError(w, r, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	req := ListTransactionsRequest{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		t := TransactionType(typ)
		req.Type = &t
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txns, total, err := h.service.ListTransactions(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
	})
}

func (h *Handler) logCollectionActivity(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req CollectionActivityRequest
	if !h.decode(w, r, &req) {
		return
	}
	activity, err := h.service.LogCollectionActivity(r.Context(), businessID, accountID, req)
	if err != nil {
		h.respondError(w, r, "log collection activity", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, activity)
}

func (h *Handler) listCollectionActivities(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	activities, err := h.service.ListCollectionActivities(r.Context(), businessID, accountID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.respondError(w, r, "list collection activities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activities": activities})
}

func (h *Handler) agingSummary(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathID(w, r, "accountID")
	if !ok {
		return
	}
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	summary, err := h.service.AgingSummary(r.Context(), businessID, accountID, asOf)
	if err != nil {
		h.respondError(w, r, "aging summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
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

// respondError logs and translates ledger domain errors.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrZeroAdjustment),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrAllocationMismatch),
		errors.Is(err, ErrAllocationNotPositive),
		errors.Is(err, ErrOverAllocation),
		errors.Is(err, ErrWrongAccount),
		errors.Is(err, ErrNotACharge),
		errors.Is(err, ErrPromiseDateRequired),
		errors.Is(err, ErrPromiseAmountRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAccountNotActive),
		errors.Is(err, ErrAccountClosed),
		errors.Is(err, ErrInvalidStatusChange),
		errors.Is(err, ErrBalanceOutstanding):
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
