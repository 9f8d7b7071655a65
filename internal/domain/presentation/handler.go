package presentation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/imaging"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
	"github.com/pptmaker/pptmaker-api/internal/pkg/validator"
)

// Handler handles presentation HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates presentation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /presentations
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	p, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.Created(w, p)
}

// List handles GET /presentations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := credit.ParsePagination(r, 20)
	items, total, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.WithMeta(w, items, response.NewMeta(total, limit, offset))
}

// Get handles GET /presentations/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.OK(w, p)
}

// Update handles PATCH /presentations/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	p, err := h.service.Update(r.Context(), userID, id, &req)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.OK(w, p)
}

// Delete handles DELETE /presentations/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.NoContent(w)
}

// Generate handles POST /presentations/{id}/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	result, err := h.service.Generate(r.Context(), userID, id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.OK(w, result)
}

// Export handles POST /presentations/{id}/export. The body is empty or a
// multipart form with an optional "cover" image.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var cover io.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxFileSize+1<<20)
		if err := r.ParseMultipartForm(imaging.MaxFileSize); err != nil {
			response.BadRequest(w, "Invalid multipart form")
			return
		}
		file, _, err := r.FormFile("cover")
		switch {
		case err == nil:
			defer file.Close()
			cover = file
		case !errors.Is(err, http.ErrMissingFile):
			response.BadRequest(w, "Invalid cover image")
			return
		}
	}

	p, err := h.service.Export(r.Context(), userID, id, cover)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.OK(w, p)
}

// ListShares handles GET /presentations/{id}/shares
func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	shares, err := h.service.ListShares(r.Context(), userID, id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.OK(w, shares)
}

// Share handles POST /presentations/{id}/shares
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	if err := h.service.Share(r.Context(), userID, id, &req); err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.Created(w, Share{UserID: req.UserID, Relation: req.Relation})
}

// Unshare handles DELETE /presentations/{id}/shares/{userId}
func (h *Handler) Unshare(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	if err := h.service.Unshare(r.Context(), userID, id, target); err != nil {
		errorhandler.Handle(r.Context(), w, err, errorRules...)
		return
	}
	response.NoContent(w)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid presentation ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

// Routes mounts the presentation API. generateLimit throttles the endpoints
// that spend credits or call the generator.
func (h *Handler) Routes(authMiddleware, generateLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.With(generateLimit).Post("/generate", h.Generate)
		r.Post("/export", h.Export)

		r.Get("/shares", h.ListShares)
		r.Post("/shares", h.Share)
		r.Delete("/shares/{userId}", h.Unshare)
	})
	return r
}
