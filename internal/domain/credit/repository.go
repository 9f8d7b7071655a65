package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	queryTimeout = 3 * time.Second
	maxPageSize  = 100
)

const txColumns = `id, seq, user_id, amount, type, source_type, expires_at, balance, description, reference_id, created_at`

// CreditRepository reads and appends ledger rows. Every method takes the
// queryer to run on, so the same code serves pooled reads and caller-owned
// transactions.
type CreditRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// BeginTx starts a ledger write transaction.
func (r *CreditRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	return tx, nil
}

// LockUser takes the row lock that serializes ledger writes for one user.
func (r *CreditRepository) LockUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: lock user row", ErrInternal)
	}
	return nil
}

// LatestBalance returns the cached balance of the user's newest row, 0 when none.
// Per-user order is seq, which follows the user lock; created_at does not.
func (r *CreditRepository) LatestBalance(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID) (int, error) {
	var balance int
	err := sqlx.GetContext(ctx, q, &balance, `
		SELECT balance
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: latest balance", ErrInternal)
	}
	return balance, nil
}

// History returns every row of the user in insertion order.
func (r *CreditRepository) History(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID) ([]Transaction, error) {
	rows := make([]Transaction, 0)
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT `+txColumns+`
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history", ErrInternal)
	}
	return rows, nil
}

// HistoryMany loads the history of several users in one query.
func (r *CreditRepository) HistoryMany(ctx context.Context, userIDs []uuid.UUID) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &rows, `
		SELECT `+txColumns+`
		FROM credit_transactions
		WHERE user_id = ANY($1::uuid[])
		ORDER BY user_id, seq
	`, pq.StringArray(uuidStrings(userIDs)))
	if err != nil {
		return nil, fmt.Errorf("%w: load histories", ErrInternal)
	}
	return rows, nil
}

// FindByReference returns rows recorded for a reference id and type.
func (r *CreditRepository) FindByReference(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, txType TxType, referenceID string) ([]Transaction, error) {
	rows := make([]Transaction, 0)
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT `+txColumns+`
		FROM credit_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		ORDER BY seq
	`, userID, txType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("%w: find by reference", ErrInternal)
	}
	return rows, nil
}

// Insert appends a ledger row and fills in the generated columns.
func (r *CreditRepository) Insert(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	if strings.TrimSpace(t.Description) == "" {
		t.Description = defaultDescription(t.Type)
	}

	err := tx.QueryRowxContext(ctx, `
		INSERT INTO credit_transactions (
			user_id, amount, type, source_type, expires_at, balance, description, reference_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, seq, created_at
	`, t.UserID, t.Amount, t.Type, t.SourceType, t.ExpiresAt, t.Balance, t.Description, t.ReferenceID).
		Scan(&t.ID, &t.Seq, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: insert transaction", ErrInternal)
	}
	return nil
}

// ListTransactions returns a page of the user's history, newest first, and the total count.
func (r *CreditRepository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, int, error) {
	uid := userID
	return r.SearchTransactions(ctx, SearchFilters{UserID: &uid, Limit: pagination.Limit, Offset: pagination.Offset})
}

// SearchTransactions returns filtered transactions (admin use) and the total match count.
func (r *CreditRepository) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := " WHERE 1=1"
	args := make([]interface{}, 0, 8)
	idx := 1

	if filters.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *filters.UserID)
		idx++
	}
	if filters.Type != nil && *filters.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, *filters.Type)
		idx++
	}
	if filters.Source != nil && *filters.Source != "" {
		where += fmt.Sprintf(" AND source_type = $%d", idx)
		args = append(args, *filters.Source)
		idx++
	}
	if filters.ReferenceID != nil && *filters.ReferenceID != "" {
		where += fmt.Sprintf(" AND reference_id = $%d", idx)
		args = append(args, *filters.ReferenceID)
		idx++
	}
	if filters.DateFrom != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	var total int
	if err := r.db.GetContext(ctx2, &total, `SELECT COUNT(*) FROM credit_transactions`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions", ErrInternal)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	query := `SELECT ` + txColumns + ` FROM credit_transactions` + where +
		fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filters.Offset)

	transactions := make([]Transaction, 0)
	if err := r.db.SelectContext(ctx2, &transactions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: search transactions", ErrInternal)
	}
	return transactions, total, nil
}

// UsersWithExpiredBatches finds users holding expired batches with credits left.
func (r *CreditRepository) UsersWithExpiredBatches(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ids := make([]uuid.UUID, 0)
	err := r.db.SelectContext(ctx2, &ids, `
		SELECT DISTINCT user_id
		FROM (
			SELECT user_id
			FROM credit_transactions
			WHERE expires_at IS NOT NULL AND expires_at <= $1
			GROUP BY user_id, source_type, expires_at
			HAVING SUM(amount) > 0
		) expired
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: find expired batches", ErrInternal)
	}
	return ids, nil
}

// Totals sums ledger volume by type across all users.
func (r *CreditRepository) Totals(ctx context.Context) (Totals, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Totals
	err := r.db.QueryRowxContext(ctx2, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type IN ('PURCHASE', 'BONUS')), 0),
			COALESCE(-SUM(amount) FILTER (WHERE type = 'USAGE'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'REFUND'), 0),
			COALESCE(-SUM(amount) FILTER (WHERE type = 'EXPIRATION'), 0)
		FROM credit_transactions
	`).Scan(&t.Granted, &t.Consumed, &t.Refunded, &t.Expired)
	if err != nil {
		return Totals{}, fmt.Errorf("%w: totals", ErrInternal)
	}
	return t, nil
}

func defaultDescription(t TxType) string {
	switch t {
	case TxTypePurchase:
		return "credits purchased"
	case TxTypeUsage:
		return "credits used"
	case TxTypeRefund:
		return "credits refunded"
	case TxTypeBonus:
		return "bonus credits"
	case TxTypeExpiration:
		return "credits expired"
	default:
		return "credit balance adjustment"
	}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
