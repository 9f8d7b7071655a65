package payment

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &repository{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListFiltersByStatus(t *testing.T) {
	repo, mock := newMock(t)
	status := StatusPaid
	id, userID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM payments WHERE status = $1`)).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $2 OFFSET $3`)).
		WithArgs(status, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "kind", "amount", "currency", "credits", "plan_id", "subscription_id",
			"status", "provider", "external_id", "created_at", "paid_at",
		}).AddRow(id.String(), userID.String(), "credits", 499, "USD", 50, nil, nil, "paid", "stub", "ext", now, now))

	items, total, err := repo.List(context.Background(), ListFilter{Status: &status, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, StatusPaid, items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInTxRollsBackOnError(t *testing.T) {
	repo, mock := newMock(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $2 WHERE id = $1`)).
		WithArgs(id, StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx *sqlx.Tx) error {
		if err := repo.UpdateStatus(context.Background(), tx, id, StatusFailed); err != nil {
			return err
		}
		return ErrAmountMismatch
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}
