package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `id, user_id, plan_id, status, started_at, expires_at, cancelled_at, cancel_reason, created_at, updated_at`

// Repository defines subscription data access
type Repository interface {
	// Plans
	GetPlanByID(ctx context.Context, id PlanID) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)

	// Subscriptions
	Create(ctx context.Context, sub *Subscription) error
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Subscription, error)
	Activate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, startedAt, expiresAt time.Time) error
	CancelOthers(ctx context.Context, tx *sqlx.Tx, userID, keepID uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID, reason string) error
	ExpireOldSubscriptions(ctx context.Context, now, pendingBefore time.Time) (int, error)
	CountActive(ctx context.Context) (int, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates subscription repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Plans

func (r *repository) GetPlanByID(ctx context.Context, id PlanID) (*Plan, error) {
	query := `
		SELECT id, name, price_monthly, currency, monthly_credits, is_active
		FROM plans
		WHERE id = $1 AND is_active = true
	`
	var plan Plan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListPlans(ctx context.Context) ([]*Plan, error) {
	query := `
		SELECT id, name, price_monthly, currency, monthly_credits, is_active
		FROM plans
		WHERE is_active = true
		ORDER BY price_monthly
	`
	plans := []*Plan{}
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, err
	}
	return plans, nil
}

// Subscriptions

func (r *repository) Create(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, status, started_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.StartedAt,
		sub.ExpiresAt,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
}

func (r *repository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var sub Subscription
	if err := r.db.GetContext(ctx, &sub, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	var sub Subscription
	if err := tx.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Activate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, startedAt, expiresAt time.Time) error {
	query := `
		UPDATE subscriptions SET
			status = 'active', started_at = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, startedAt, expiresAt)
	return err
}

func (r *repository) CancelOthers(ctx context.Context, tx *sqlx.Tx, userID, keepID uuid.UUID, reason string) error {
	query := `
		UPDATE subscriptions SET
			status = 'cancelled', cancelled_at = NOW(), cancel_reason = $3, updated_at = NOW()
		WHERE user_id = $1 AND id <> $2 AND status = 'active'
	`
	_, err := tx.ExecContext(ctx, query, userID, keepID, reason)
	return err
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE subscriptions SET
			status = 'cancelled', cancelled_at = NOW(), cancel_reason = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	return err
}

// ExpireOldSubscriptions expires active subscriptions past their term and
// pending ones that were never paid.
func (r *repository) ExpireOldSubscriptions(ctx context.Context, now, pendingBefore time.Time) (int, error) {
	query := `
		UPDATE subscriptions SET
			status = 'expired', updated_at = NOW()
		WHERE (status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1)
		   OR (status = 'pending' AND created_at < $2)
	`
	result, err := r.db.ExecContext(ctx, query, now, pendingBefore)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (r *repository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`)
	return n, err
}
