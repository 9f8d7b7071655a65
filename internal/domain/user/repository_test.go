package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateRunsHookInSameTransaction(t *testing.T) {
	repo, mock := newMock(t)
	u := &User{ID: uuid.New(), Email: "a@b.c", PasswordHash: "h", Name: "A"}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(u.ID, u.Email, u.PasswordHash, u.Name, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	called := false
	err := repo.Create(context.Background(), u, func(tx *sqlx.Tx) error {
		called = tx != nil
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !called {
		t.Fatal("hook was not called with the transaction")
	}
	if !u.CreatedAt.Equal(now) {
		t.Fatalf("created_at not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateRollsBackWhenHookFails(t *testing.T) {
	repo, mock := newMock(t)
	u := &User{ID: uuid.New(), Email: "a@b.c"}
	hookErr := errors.New("bonus failed")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), u, func(*sqlx.Tx) error { return hookErr })
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateMapsDuplicateEmail(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &User{ID: uuid.New(), Email: "dup@b.c"}, nil)
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListBuildsFilters(t *testing.T) {
	repo, mock := newMock(t)
	banned := true

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE \(email ILIKE \$1 OR name ILIKE \$1\) AND is_banned = \$2`).
		WithArgs("%ann%", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`ORDER BY created_at DESC, id LIMIT \$3 OFFSET \$4`).
		WithArgs("%ann%", true, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "is_banned", "created_at", "updated_at"}).
			AddRow(uuid.New().String(), "ann@x.y", "h", "Ann", true, time.Now(), time.Now()))

	users, total, err := repo.List(context.Background(), ListFilter{Search: " ann ", Banned: &banned, Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(users) != 1 || users[0].Name != "Ann" {
		t.Fatalf("unexpected result: total=%d users=%+v", total, users)
	}
}
