package presentation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

const columns = `id, owner_id, title, prompt, slide_count, status, content, export_key, thumbnail_key, generation, generated_by, generation_started_at, created_at, updated_at`

// Repository defines presentation data access
type Repository interface {
	// Create inserts p and runs onCreate in the same transaction.
	Create(ctx context.Context, p *Presentation, onCreate func(tx *sqlx.Tx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*Presentation, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID, limit, offset int) ([]*Presentation, int, error)
	Update(ctx context.Context, p *Presentation) error
	// Delete removes the row and runs onDelete in the same transaction.
	Delete(ctx context.Context, id uuid.UUID, onDelete func(tx *sqlx.Tx) error) error

	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Presentation, error)
	SetStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status, generation int) error
	// StartGeneration marks run generation as in progress and charged to payer.
	StartGeneration(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, generation int, payer uuid.UUID) error
	// SaveContent stores the slides of run generation. It returns
	// ErrGenerationAbandoned when that run is no longer in progress.
	SaveContent(ctx context.Context, id uuid.UUID, generation int, content types.JSONText) error
	// ListStuck returns runs still generating that started before the cutoff.
	ListStuck(ctx context.Context, startedBefore time.Time, limit int) ([]*Presentation, error)
	SetExport(ctx context.Context, id uuid.UUID, exportKey string, thumbnailKey *string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates presentation repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Presentation, onCreate func(tx *sqlx.Tx) error) error {
	return r.InTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO presentations (id, owner_id, title, prompt, slide_count, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			p.ID, p.OwnerID, p.Title, p.Prompt, p.SlideCount, p.Status,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		if onCreate != nil {
			return onCreate(tx)
		}
		return nil
	})
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Presentation, error) {
	var p Presentation
	err := r.db.GetContext(ctx, &p, `SELECT `+columns+` FROM presentations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresentationNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByIDs pages through the given presentations, most recently updated first.
func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID, limit, offset int) ([]*Presentation, int, error) {
	items := []*Presentation{}
	if len(ids) == 0 {
		return items, 0, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	arg := pq.StringArray(strs)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM presentations WHERE id = ANY($1::uuid[])`, arg); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM presentations
		WHERE id = ANY($1::uuid[])
		ORDER BY updated_at DESC, id
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &items, query, arg, limit, offset); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) Update(ctx context.Context, p *Presentation) error {
	query := `
		UPDATE presentations
		SET title = $2, prompt = $3, slide_count = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, p.ID, p.Title, p.Prompt, p.SlideCount).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPresentationNotFound
	}
	return err
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID, onDelete func(tx *sqlx.Tx) error) error {
	return r.InTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM presentations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPresentationNotFound
		}
		if onDelete != nil {
			return onDelete(tx)
		}
		return nil
	})
}

func (r *repository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Presentation, error) {
	var p Presentation
	err := tx.GetContext(ctx, &p, `SELECT `+columns+` FROM presentations WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresentationNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) SetStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status, generation int) error {
	query := `UPDATE presentations SET status = $2, generation = $3, updated_at = NOW() WHERE id = $1`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, id, status, generation)
	} else {
		_, err = r.db.ExecContext(ctx, query, id, status, generation)
	}
	return err
}

func (r *repository) StartGeneration(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, generation int, payer uuid.UUID) error {
	query := `
		UPDATE presentations
		SET status = 'generating', generation = $2, generated_by = $3, generation_started_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, generation, payer)
	return err
}

func (r *repository) SaveContent(ctx context.Context, id uuid.UUID, generation int, content types.JSONText) error {
	query := `
		UPDATE presentations
		SET content = $3, status = 'ready', updated_at = NOW()
		WHERE id = $1 AND generation = $2 AND status = 'generating'
	`
	res, err := r.db.ExecContext(ctx, query, id, generation, content)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGenerationAbandoned
	}
	return nil
}

func (r *repository) ListStuck(ctx context.Context, startedBefore time.Time, limit int) ([]*Presentation, error) {
	items := []*Presentation{}
	query := `
		SELECT ` + columns + `
		FROM presentations
		WHERE status = 'generating' AND generation_started_at < $1
		ORDER BY generation_started_at
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &items, query, startedBefore, limit); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) SetExport(ctx context.Context, id uuid.UUID, exportKey string, thumbnailKey *string) error {
	query := `
		UPDATE presentations
		SET export_key = $2, thumbnail_key = COALESCE($3, thumbnail_key), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, exportKey, thumbnailKey)
	return err
}
