package presentation

import (
	"time"

	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/pkg/generator"
)

// CreateRequest for POST /presentations
type CreateRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=255"`
	Prompt     string `json:"prompt" validate:"max=4000"`
	SlideCount int    `json:"slide_count" validate:"required,min=1,max=50"`
}

// UpdateRequest for PATCH /presentations/{id}. Nil fields are left unchanged.
type UpdateRequest struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=255"`
	Prompt     *string `json:"prompt" validate:"omitempty,max=4000"`
	SlideCount *int    `json:"slide_count" validate:"omitempty,min=1,max=50"`
}

// ShareRequest for POST /presentations/{id}/shares
type ShareRequest struct {
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	Relation string    `json:"relation" validate:"required,share_relation"`
}

// Response is the API view of a presentation
type Response struct {
	ID           uuid.UUID         `json:"id"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Title        string            `json:"title"`
	Prompt       string            `json:"prompt"`
	SlideCount   int               `json:"slide_count"`
	Status       Status            `json:"status"`
	Slides       []generator.Slide `json:"slides,omitempty"`
	ExportURL    string            `json:"export_url,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// GenerateResponse reports a finished generation and what it cost
type GenerateResponse struct {
	Presentation   *Response `json:"presentation"`
	CreditsCharged int       `json:"credits_charged"`
	Balance        int       `json:"balance"`
}
