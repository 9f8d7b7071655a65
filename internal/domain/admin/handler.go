package admin

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
	"github.com/pptmaker/pptmaker-api/internal/pkg/validator"
)

// Handler serves /api/admin
type Handler struct {
	service *Service
	rules   []errorhandler.Rule
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	rules := append([]errorhandler.Rule{}, errorRules...)
	rules = append(rules, credit.ErrorRules...)
	rules = append(rules, payment.ErrorRules...)
	rules = append(rules, permission.ErrorRules...)
	return &Handler{service: service, rules: rules}
}

// Dashboard handles GET /admin/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.OK(w, stats)
}

// ListUsers handles GET /admin/users?search=&banned=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := credit.ParsePagination(r, 20)
	filter := user.ListFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("banned"); v != "" {
		banned, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, "Invalid banned filter")
			return
		}
		filter.Banned = &banned
	}

	rows, total, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.WithMeta(w, rows, response.NewMeta(total, limit, offset))
}

// GrantCredits handles POST /admin/users/{id}/credits
func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req GrantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	res, err := h.service.GrantCredits(r.Context(), actor(r), userID, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.OK(w, res)
}

// Ban handles POST /admin/users/{id}/ban
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// Unban handles POST /admin/users/{id}/unban
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req BanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	if err := h.service.SetBanned(r.Context(), actor(r), userID, banned, req.Reason); err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.OK(w, map[string]interface{}{"user_id": userID, "is_banned": banned})
}

// ListAdmins handles GET /admin/admins
func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.ListAdmins(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.OK(w, admins)
}

// GrantAdmin handles POST /admin/admins/{id}
func (h *Handler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.GrantAdmin(r.Context(), actor(r), userID); err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.Created(w, map[string]interface{}{"user_id": userID, "is_admin": true})
}

// RevokeAdmin handles DELETE /admin/admins/{id}
func (h *Handler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RevokeAdmin(r.Context(), actor(r), userID); err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.NoContent(w)
}

// Transactions handles GET /admin/transactions?user_id=&type=&source=&reference_id=&from=&to=
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := credit.ParsePagination(r, 50)
	q := r.URL.Query()
	filters := credit.SearchFilters{Limit: limit, Offset: offset}

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "Invalid user_id")
			return
		}
		filters.UserID = &id
	}
	if v := q.Get("type"); v != "" {
		t := credit.TxType(strings.ToUpper(v))
		filters.Type = &t
	}
	if v := q.Get("source"); v != "" {
		s := credit.SourceType(strings.ToUpper(v))
		if !s.Valid() {
			response.BadRequest(w, "Invalid source")
			return
		}
		filters.Source = &s
	}
	if v := q.Get("reference_id"); v != "" {
		filters.ReferenceID = &v
	}
	for param, dst := range map[string]**time.Time{"from": &filters.DateFrom, "to": &filters.DateTo} {
		if v := q.Get(param); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.BadRequest(w, "Invalid "+param+" (RFC3339 expected)")
				return
			}
			*dst = &ts
		}
	}

	txs, total, err := h.service.SearchTransactions(r.Context(), filters)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.WithMeta(w, txs, response.NewMeta(total, limit, offset))
}

// Payments handles GET /admin/payments?user_id=&status=
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	limit, offset := credit.ParsePagination(r, 50)
	filter := payment.ListFilter{Limit: limit, Offset: offset}

	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "Invalid user_id")
			return
		}
		filter.UserID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := payment.Status(v)
		filter.Status = &st
	}

	items, total, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.WithMeta(w, items, response.NewMeta(total, limit, offset))
}

// RefundPayment handles POST /admin/payments/{id}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	p, err := h.service.RefundPayment(r.Context(), actor(r), paymentID, req.Reason)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.OK(w, p)
}

// AuditLogs handles GET /admin/audit-logs?admin_id=&action=
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := credit.ParsePagination(r, 50)
	filter := AuditFilter{Limit: limit, Offset: offset}

	if v := r.URL.Query().Get("admin_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "Invalid admin_id")
			return
		}
		filter.AdminID = &id
	}
	if v := r.URL.Query().Get("action"); v != "" {
		filter.Action = &v
	}

	logs, total, err := h.service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, h.rules...)
		return
	}
	response.WithMeta(w, logs, response.NewMeta(total, limit, offset))
}

// Routes returns the admin router. Every route requires an authenticated
// user holding the global admin relation.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, checker permission.AdminChecker) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(permission.RequireAdmin(checker))

	r.Get("/dashboard", h.Dashboard)

	r.Get("/users", h.ListUsers)
	r.Post("/users/{id}/credits", h.GrantCredits)
	r.Post("/users/{id}/ban", h.Ban)
	r.Post("/users/{id}/unban", h.Unban)

	r.Get("/admins", h.ListAdmins)
	r.Post("/admins/{id}", h.GrantAdmin)
	r.Delete("/admins/{id}", h.RevokeAdmin)

	r.Get("/transactions", h.Transactions)
	r.Get("/payments", h.Payments)
	r.Post("/payments/{id}/refund", h.RefundPayment)

	r.Get("/audit-logs", h.AuditLogs)
	return r
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.BadRequest(w, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) Actor {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return Actor{ID: middleware.GetUserID(r.Context()), IP: ip}
}
