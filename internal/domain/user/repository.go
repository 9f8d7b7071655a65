package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const sqlStateUniqueViolation = "23505"

const userColumns = `id, email, password_hash, name, is_banned, created_at, updated_at`

// Repository defines user data access interface
type Repository interface {
	// Create inserts the user and runs onCreate inside the same transaction,
	// so side effects like the signup bonus commit or roll back with the row.
	Create(ctx context.Context, user *User, onCreate func(tx *sqlx.Tx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	IsBanned(ctx context.Context, id uuid.UUID) (bool, error)
	SetBanned(ctx context.Context, id uuid.UUID, banned bool) error
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Count(ctx context.Context) (int, error)
}

// repository implements Repository
type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Create creates a new user
func (r *repository) Create(ctx context.Context, user *User, onCreate func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("user repository begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO users (id, email, password_hash, name, is_banned)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowxContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.Name, user.IsBanned).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("user repository create: %w", err)
	}

	if onCreate != nil {
		if err := onCreate(tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("user repository commit: %w", err)
	}
	return nil
}

// GetByID returns user by ID, ErrUserNotFound when missing
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail returns user by email, ErrUserNotFound when missing
func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// IsBanned satisfies middleware.BanChecker
func (r *repository) IsBanned(ctx context.Context, id uuid.UUID) (bool, error) {
	var banned bool
	err := r.db.GetContext(ctx, &banned, `SELECT is_banned FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return banned, nil
}

func (r *repository) SetBanned(ctx context.Context, id uuid.UUID, banned bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_banned = $2, updated_at = NOW() WHERE id = $1`, id, banned)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns a page of users, newest first, with the total match count
func (r *repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var where []string
	var args []interface{}
	argN := 1

	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", argN, argN))
		args = append(args, "%"+s+"%")
		argN++
	}
	if filter.Banned != nil {
		where = append(where, fmt.Sprintf("is_banned = $%d", argN))
		args = append(args, *filter.Banned)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users "+whereClause, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	users := []User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == sqlStateUniqueViolation
}
