package presentation

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/pptmaker/pptmaker-api/internal/pkg/generator"
)

// Status is the generation state of a presentation
type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

const (
	MinSlides = 1
	MaxSlides = 50
)

// Presentation is a slide deck. Access is governed by relation tuples, not by
// OwnerID, which only records who created it.
type Presentation struct {
	ID           uuid.UUID      `db:"id"`
	OwnerID      uuid.UUID      `db:"owner_id"`
	Title        string         `db:"title"`
	Prompt       string         `db:"prompt"`
	SlideCount   int            `db:"slide_count"`
	Status       Status         `db:"status"`
	Content      types.JSONText `db:"content"`
	ExportKey    *string        `db:"export_key"`
	ThumbnailKey *string        `db:"thumbnail_key"`
	Generation   int            `db:"generation"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`

	// GeneratedBy is the user charged for the current generation run.
	GeneratedBy         *uuid.UUID `db:"generated_by"`
	GenerationStartedAt *time.Time `db:"generation_started_at"`
}

// Slides decodes the generated content. A draft has none.
func (p *Presentation) Slides() ([]generator.Slide, error) {
	if len(p.Content) == 0 {
		return nil, nil
	}
	var slides []generator.Slide
	if err := p.Content.Unmarshal(&slides); err != nil {
		return nil, err
	}
	return slides, nil
}

// Cost is the credit price of generating the deck.
func (p *Presentation) Cost(creditsPerSlide int) int {
	return p.SlideCount * creditsPerSlide
}

// GenerationReference is the ledger reference of the current generation run.
// Every run gets its own so a deck can be regenerated after a failure.
func (p *Presentation) GenerationReference() string {
	return generationReference(p.ID, p.Generation)
}

func generationReference(id uuid.UUID, generation int) string {
	if generation <= 1 {
		return id.String()
	}
	return id.String() + ":" + strconv.Itoa(generation)
}

// Share is one user's access to a presentation
type Share struct {
	UserID    uuid.UUID `json:"user_id"`
	Relation  string    `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}
