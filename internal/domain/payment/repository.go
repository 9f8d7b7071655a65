package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const paymentColumns = `id, user_id, kind, amount, currency, credits, plan_id, subscription_id, status, provider, external_id, created_at, paid_at`

// Repository defines payment data access
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error)
	List(ctx context.Context, filter ListFilter) ([]*Payment, int, error)
	Revenue(ctx context.Context) ([]Revenue, error)

	// InTx runs fn in one transaction, committing when it returns nil.
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Payment, error)
	MarkPaid(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, externalID string, paidAt time.Time) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payment repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, user_id, kind, amount, currency, credits, plan_id, subscription_id, status, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		p.ID,
		p.UserID,
		p.Kind,
		p.Amount,
		p.Currency,
		p.Credits,
		p.PlanID,
		p.SubscriptionID,
		p.Status,
		p.Provider,
	).Scan(&p.CreatedAt)
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return r.List(ctx, ListFilter{UserID: &userID, Limit: limit, Offset: offset})
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Payment, int, error) {
	var where []string
	var args []interface{}
	argN := 1

	if filter.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argN))
		args = append(args, *filter.UserID)
		argN++
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, *filter.Status)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments "+whereClause, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, whereClause, argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	items := []*Payment{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) Revenue(ctx context.Context) ([]Revenue, error) {
	query := `
		SELECT currency, status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		FROM payments
		WHERE status IN ('paid', 'refunded')
		GROUP BY currency, status
		ORDER BY currency, status
	`
	out := []Revenue{}
	err := r.db.SelectContext(ctx, &out, query)
	return out, err
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

func (r *repository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) MarkPaid(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, externalID string, paidAt time.Time) error {
	query := `UPDATE payments SET status = 'paid', external_id = NULLIF($2, ''), paid_at = $3 WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, id, externalID, paidAt)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status) error {
	_, err := tx.ExecContext(ctx, `UPDATE payments SET status = $2 WHERE id = $1`, id, status)
	return err
}
