package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
	"github.com/pptmaker/pptmaker-api/internal/pkg/validator"
	"github.com/pptmaker/pptmaker-api/internal/pkg/webhook"
)

const maxWebhookBody = 64 << 10

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListPackages handles GET /payments/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	response.OK(w, Packages())
}

// List handles GET /payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := credit.ParsePagination(r, 20)
	items, total, err := h.service.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}
	response.WithMeta(w, items, response.NewMeta(total, limit, offset))
}

// Checkout handles POST /payments/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	result, err := h.service.Checkout(r.Context(), userID, req.Package)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}
	response.Created(w, result)
}

// Webhook handles POST /webhooks/payments
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Failed to read body")
		return
	}

	var event WebhookEvent
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&event); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&event); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(webhook.SignatureHeader), &event); err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorRules...)
		return
	}
	response.OK(w, map[string]string{"status": "ok"})
}

// Routes returns the authenticated /payments router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/packages", h.ListPackages)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/checkout", h.Checkout)
	})
	return r
}

// WebhookRoutes returns the unauthenticated provider callback router
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/payments", h.Webhook)
	return r
}
