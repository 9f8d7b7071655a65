package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/pkg/generator"
	"github.com/pptmaker/pptmaker-api/internal/pkg/imaging"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/storage"
)

// Permissions is the relation tuple store as presentations use it.
type Permissions interface {
	GrantTx(ctx context.Context, tx *sqlx.Tx, t permission.Tuple) error
	Grant(ctx context.Context, t permission.Tuple) error
	Revoke(ctx context.Context, t permission.Tuple) error
	RemoveObject(ctx context.Context, tx *sqlx.Tx, namespace, objectID string) error
	CheckPresentation(ctx context.Context, userID, presentationID uuid.UUID, relation string) (bool, error)
	ListSubjects(ctx context.Context, namespace, objectID string) ([]permission.Tuple, error)
	AccessiblePresentations(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Credits is the part of the ledger generation needs.
type Credits interface {
	ConsumeTx(ctx context.Context, tx *sqlx.Tx, in credit.ConsumeInput) (*credit.Result, error)
	RefundUsageTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, referenceID, description string) (*credit.Result, error)
	NotifyBalance(ctx context.Context, userID uuid.UUID)
}

// Generator drafts slide content.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) ([]generator.Slide, error)
}

// Thumbnailer resizes cover images.
type Thumbnailer interface {
	Thumbnail(r io.Reader) (*imaging.Thumbnail, error)
}

// Users looks up share targets.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Service handles presentation business logic
type Service struct {
	repo            Repository
	perms           Permissions
	credits         Credits
	generator       Generator
	storage         storage.Storage
	thumbs          Thumbnailer
	users           Users
	creditsPerSlide int
}

// Deps groups the collaborators of Service
type Deps struct {
	Repo            Repository
	Permissions     Permissions
	Credits         Credits
	Generator       Generator
	Storage         storage.Storage
	Thumbnailer     Thumbnailer
	Users           Users
	CreditsPerSlide int
}

// NewService creates presentation service
func NewService(d Deps) *Service {
	perSlide := d.CreditsPerSlide
	if perSlide < 1 {
		perSlide = 1
	}
	return &Service{
		repo:            d.Repo,
		perms:           d.Permissions,
		credits:         d.Credits,
		generator:       d.Generator,
		storage:         d.Storage,
		thumbs:          d.Thumbnailer,
		users:           d.Users,
		creditsPerSlide: perSlide,
	}
}

// Create stores a draft and makes userID its owner in the same transaction.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreateRequest) (*Response, error) {
	p := &Presentation{
		ID:         uuid.New(),
		OwnerID:    userID,
		Title:      strings.TrimSpace(req.Title),
		Prompt:     strings.TrimSpace(req.Prompt),
		SlideCount: req.SlideCount,
		Status:     StatusDraft,
	}

	err := s.repo.Create(ctx, p, func(tx *sqlx.Tx) error {
		return s.perms.GrantTx(ctx, tx, permission.PresentationTuple(p.ID, permission.RelationOwner, userID))
	})
	if err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}
	return s.toResponse(p), nil
}

// Get returns a presentation the user can view
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Response, error) {
	if err := s.authorize(ctx, userID, id, permission.RelationViewer); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(p), nil
}

// List returns every presentation the user can view
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Response, int, error) {
	ids, err := s.perms.AccessiblePresentations(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListByIDs(ctx, ids, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Response, 0, len(items))
	for _, p := range items {
		out = append(out, s.toResponse(p))
	}
	return out, total, nil
}

// Update changes title, prompt or slide count. Editors and owners only.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, req *UpdateRequest) (*Response, error) {
	if err := s.authorize(ctx, userID, id, permission.RelationEditor); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusGenerating {
		return nil, ErrGenerationInProgress
	}

	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Prompt != nil {
		p.Prompt = strings.TrimSpace(*req.Prompt)
	}
	if req.SlideCount != nil {
		p.SlideCount = *req.SlideCount
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.toResponse(p), nil
}

// Delete removes the presentation, its tuples and its stored files. Owner only.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.authorize(ctx, userID, id, permission.RelationOwner); err != nil {
		return err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.repo.Delete(ctx, id, func(tx *sqlx.Tx) error {
		return s.perms.RemoveObject(ctx, tx, permission.NamespacePresentation, id.String())
	})
	if err != nil {
		return err
	}

	for _, key := range []*string{p.ExportKey, p.ThumbnailKey} {
		if key == nil || s.storage == nil {
			continue
		}
		if err := s.storage.Delete(ctx, *key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.FromContext(ctx).Warn().Err(err).Str("key", *key).Msg("Failed to delete presentation file")
		}
	}
	return nil
}

// Generate charges slide_count × credits-per-slide to the caller, asks the
// generator for content and refunds the charge if generation fails.
func (s *Service) Generate(ctx context.Context, userID, id uuid.UUID) (*GenerateResponse, error) {
	if err := s.authorize(ctx, userID, id, permission.RelationEditor); err != nil {
		return nil, err
	}

	var p *Presentation
	var charged *credit.Result
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status == StatusGenerating {
			return ErrGenerationInProgress
		}

		cur.Generation++
		res, err := s.credits.ConsumeTx(ctx, tx, credit.ConsumeInput{
			UserID:      userID,
			Amount:      cur.Cost(s.creditsPerSlide),
			Description: fmt.Sprintf("Generate %q (%d slides)", cur.Title, cur.SlideCount),
			ReferenceID: cur.GenerationReference(),
		})
		if err != nil {
			return err
		}
		if err := s.repo.StartGeneration(ctx, tx, id, cur.Generation, userID); err != nil {
			return err
		}
		cur.Status = StatusGenerating
		p, charged = cur, res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.credits.NotifyBalance(ctx, userID)

	slides, genErr := s.generator.Generate(ctx, generator.Request{
		Title:      p.Title,
		Prompt:     p.Prompt,
		SlideCount: p.SlideCount,
	})
	if genErr == nil {
		var content []byte
		content, genErr = json.Marshal(slides)
		if genErr == nil {
			genErr = s.repo.SaveContent(ctx, id, p.Generation, types.JSONText(content))
		}
		if genErr == nil {
			p.Content = content
		}
	}
	if errors.Is(genErr, ErrGenerationAbandoned) {
		logger.FromContext(ctx).Warn().Str("presentation_id", id.String()).Int("generation", p.Generation).Msg("Generation finished after the run was recovered")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}
	if genErr != nil {
		logger.FromContext(ctx).Error().Err(genErr).Str("presentation_id", id.String()).Msg("Generation failed")
		if err := s.refund(context.WithoutCancel(ctx), userID, p); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}

	p.Status = StatusReady
	logger.LogInfo(ctx, "presentation generated", "presentation_id", id.String(), "slides", len(slides))
	return &GenerateResponse{
		Presentation:   s.toResponse(p),
		CreditsCharged: p.Cost(s.creditsPerSlide),
		Balance:        charged.Balance,
	}, nil
}

func (s *Service) refund(ctx context.Context, userID uuid.UUID, p *Presentation) error {
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.repo.GetForUpdate(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		// Already recovered by the worker.
		if cur.Status != StatusGenerating || cur.Generation != p.Generation {
			return nil
		}
		if _, err := s.credits.RefundUsageTx(ctx, tx, userID, p.GenerationReference(), fmt.Sprintf("Refund: generation of %q failed", p.Title)); err != nil {
			return err
		}
		return s.repo.SetStatus(ctx, tx, p.ID, StatusFailed, p.Generation)
	})
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("presentation_id", p.ID.String()).
			Str("reference_id", p.GenerationReference()).
			Msg("Failed to refund generation")
		return fmt.Errorf("refund generation: %w", err)
	}
	s.credits.NotifyBalance(ctx, userID)
	return nil
}

// RecoveryReport summarizes one sweep over stuck generation runs.
type RecoveryReport struct {
	Found     int
	Recovered int
	Failed    int
}

const stuckScanLimit = 100

// RecoverStuckGenerations fails runs left generating since before startedBefore,
// e.g. after a crash, and refunds their charge to the user who paid for them.
func (s *Service) RecoverStuckGenerations(ctx context.Context, startedBefore time.Time) (RecoveryReport, error) {
	stuck, err := s.repo.ListStuck(ctx, startedBefore, stuckScanLimit)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("list stuck generations: %w", err)
	}

	report := RecoveryReport{Found: len(stuck)}
	for _, p := range stuck {
		recovered, err := s.recoverGeneration(ctx, p.ID, p.Generation)
		if err != nil {
			report.Failed++
			logger.FromContext(ctx).Error().Err(err).
				Str("presentation_id", p.ID.String()).
				Int("generation", p.Generation).
				Msg("Failed to recover stuck generation")
			continue
		}
		if recovered {
			report.Recovered++
		}
	}
	return report, nil
}

func (s *Service) recoverGeneration(ctx context.Context, id uuid.UUID, generation int) (bool, error) {
	var payer *uuid.UUID
	recovered := false
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.repo.GetForUpdate(ctx, tx, id)
		if errors.Is(err, ErrPresentationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Finished or restarted since the scan.
		if cur.Status != StatusGenerating || cur.Generation != generation {
			return nil
		}

		if cur.GeneratedBy != nil {
			desc := fmt.Sprintf("Refund: generation of %q did not finish", cur.Title)
			_, err := s.credits.RefundUsageTx(ctx, tx, *cur.GeneratedBy, cur.GenerationReference(), desc)
			if err != nil && !errors.Is(err, credit.ErrNoUsage) {
				return err
			}
			payer = cur.GeneratedBy
		}
		recovered = true
		return s.repo.SetStatus(ctx, tx, id, StatusFailed, cur.Generation)
	})
	if err != nil {
		return false, err
	}
	if payer != nil {
		s.credits.NotifyBalance(ctx, *payer)
	}
	if recovered {
		logger.LogInfo(ctx, "stuck generation recovered", "presentation_id", id.String(), "generation", generation)
	}
	return recovered, nil
}

// Export renders the generated deck to storage. An optional cover image is
// stored as a slide-ratio thumbnail.
func (s *Service) Export(ctx context.Context, userID, id uuid.UUID, cover io.Reader) (*Response, error) {
	if err := s.authorize(ctx, userID, id, permission.RelationEditor); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusReady {
		if p.Status == StatusGenerating {
			return nil, ErrGenerationInProgress
		}
		return nil, ErrNotGenerated
	}

	slides, err := p.Slides()
	if err != nil {
		return nil, fmt.Errorf("decode slides: %w", err)
	}

	var thumbKey *string
	if cover != nil {
		thumb, err := s.thumbs.Thumbnail(cover)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("thumbnails/%s%s", p.ID, imaging.Extension(thumb.ContentType))
		if err := s.storage.Put(ctx, key, bytes.NewReader(thumb.Data), int64(len(thumb.Data)), thumb.ContentType); err != nil {
			return nil, fmt.Errorf("store thumbnail: %w", err)
		}
		thumbKey = &key
	}

	doc := RenderMarkdown(p.Title, slides, time.Now().UTC())
	exportKey := fmt.Sprintf("exports/%s/%d.md", p.ID, p.Generation)
	if err := s.storage.Put(ctx, exportKey, bytes.NewReader(doc), int64(len(doc)), "text/markdown; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	if err := s.repo.SetExport(ctx, p.ID, exportKey, thumbKey); err != nil {
		return nil, err
	}

	p.ExportKey = &exportKey
	if thumbKey != nil {
		p.ThumbnailKey = thumbKey
	}
	logger.LogInfo(ctx, "presentation exported", "presentation_id", id.String(), "key", exportKey)
	return s.toResponse(p), nil
}

// ListShares returns everyone with access, owner included
func (s *Service) ListShares(ctx context.Context, userID, id uuid.UUID) ([]Share, error) {
	if err := s.authorize(ctx, userID, id, permission.RelationViewer); err != nil {
		return nil, err
	}
	tuples, err := s.perms.ListSubjects(ctx, permission.NamespacePresentation, id.String())
	if err != nil {
		return nil, err
	}
	out := make([]Share, 0, len(tuples))
	for _, t := range tuples {
		sid, err := uuid.Parse(t.SubjectID)
		if err != nil || t.SubjectType != permission.SubjectUser {
			continue
		}
		out = append(out, Share{UserID: sid, Relation: t.Relation, CreatedAt: t.CreatedAt})
	}
	return out, nil
}

// Share gives target a viewer or editor relation, replacing any previous one.
// Owner only.
func (s *Service) Share(ctx context.Context, userID, id uuid.UUID, req *ShareRequest) error {
	if req.Relation != permission.RelationEditor && req.Relation != permission.RelationViewer {
		return permission.ErrInvalidRelation
	}
	if err := s.authorize(ctx, userID, id, permission.RelationOwner); err != nil {
		return err
	}
	if req.UserID == userID {
		return ErrCannotShareWithSelf
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return err
	}
	if err := s.revokeShares(ctx, id, req.UserID); err != nil {
		return err
	}
	if err := s.perms.Grant(ctx, permission.PresentationTuple(id, req.Relation, req.UserID)); err != nil {
		return err
	}
	logger.LogInfo(ctx, "presentation shared", "presentation_id", id.String(), "user_id", req.UserID.String(), "relation", req.Relation)
	return nil
}

// Unshare removes target's viewer and editor relations. Owner only.
func (s *Service) Unshare(ctx context.Context, userID, id, target uuid.UUID) error {
	if err := s.authorize(ctx, userID, id, permission.RelationOwner); err != nil {
		return err
	}
	if target == userID {
		return ErrCannotShareWithSelf
	}
	return s.revokeShares(ctx, id, target)
}

func (s *Service) revokeShares(ctx context.Context, id, target uuid.UUID) error {
	isOwner, err := s.perms.CheckPresentation(ctx, target, id, permission.RelationOwner)
	if err != nil {
		return err
	}
	if isOwner {
		return ErrOwnerShare
	}
	for _, rel := range []string{permission.RelationEditor, permission.RelationViewer} {
		if err := s.perms.Revoke(ctx, permission.PresentationTuple(id, rel, target)); err != nil {
			return err
		}
	}
	return nil
}

// authorize requires relation on the presentation. Callers without any access
// get ErrPresentationNotFound so existence is not leaked.
func (s *Service) authorize(ctx context.Context, userID, id uuid.UUID, relation string) error {
	ok, err := s.perms.CheckPresentation(ctx, userID, id, relation)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if relation != permission.RelationViewer {
		canView, err := s.perms.CheckPresentation(ctx, userID, id, permission.RelationViewer)
		if err != nil {
			return err
		}
		if canView {
			return ErrForbidden
		}
	}
	return ErrPresentationNotFound
}

func (s *Service) toResponse(p *Presentation) *Response {
	resp := &Response{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Title:      p.Title,
		Prompt:     p.Prompt,
		SlideCount: p.SlideCount,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if slides, err := p.Slides(); err == nil {
		resp.Slides = slides
	}
	if s.storage != nil {
		if p.ExportKey != nil {
			resp.ExportURL = s.storage.URL(*p.ExportKey)
		}
		if p.ThumbnailKey != nil {
			resp.ThumbnailURL = s.storage.URL(*p.ThumbnailKey)
		}
	}
	return resp
}
