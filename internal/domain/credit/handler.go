package credit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
	"github.com/pptmaker/pptmaker-api/internal/pkg/validator"
)

// Ledger is the part of Service the HTTP layer needs.
type Ledger interface {
	Consume(ctx context.Context, in ConsumeInput) (*Result, error)
	GetBreakdown(ctx context.Context, userID uuid.UUID) (*Breakdown, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int, error)
}

// ErrorRules maps ledger errors to HTTP responses. Shared with handlers in
// other packages that call into the ledger.
var ErrorRules = []errorhandler.Rule{
	errorhandler.Map(ErrInsufficientCredits, http.StatusConflict, "INSUFFICIENT_CREDITS", "Insufficient credits"),
	errorhandler.Map(ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than 0"),
	errorhandler.Map(ErrInvalidType, http.StatusBadRequest, "INVALID_TYPE", "Invalid transaction type"),
	errorhandler.Map(ErrInvalidSource, http.StatusBadRequest, "INVALID_SOURCE", "Invalid source type"),
	errorhandler.Map(ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"),
}

type Handler struct {
	svc Ledger
}

func NewHandler(svc Ledger) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /credits/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	b, err := h.svc.GetBreakdown(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}

	response.OK(w, BalanceResponse{Balance: b.Balance, Available: b.Available})
}

// Breakdown handles GET /credits/breakdown
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	b, err := h.svc.GetBreakdown(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}

	response.OK(w, b)
}

// Transactions handles GET /credits/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := ParsePagination(r, 20)
	txs, total, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}

	response.WithMeta(w, txs, response.NewMeta(total, limit, offset))
}

// Consume handles POST /credits/consume
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	res, err := h.svc.Consume(r.Context(), ConsumeInput{
		UserID:      userID,
		Amount:      req.Amount,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}

	response.OK(w, res)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/breakdown", h.Breakdown)
	r.Get("/transactions", h.Transactions)
	r.Post("/consume", h.Consume)
	return r
}

// ParsePagination reads limit and offset query params, clamped to 1..100.
func ParsePagination(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
