package credit

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var historyColumns = []string{"id", "seq", "user_id", "amount", "type", "source_type", "expires_at", "balance", "description", "reference_id", "created_at"}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(sqlx.NewDb(db, "sqlmock"))
	svc.now = func() time.Time { return now }
	return svc, mock
}

func historyRow(userID uuid.UUID, seq int64, amount int, txType TxType, source SourceType, exp *time.Time, balance int) []driver.Value {
	var e driver.Value
	if exp != nil {
		e = *exp
	}
	return []driver.Value{uuid.New().String(), seq, userID.String(), amount, string(txType), string(source), e, balance, "", nil, now.Add(time.Duration(seq) * time.Minute)}
}

type recordingNotifier struct {
	calls []int
}

func (n *recordingNotifier) BalanceChanged(_ context.Context, _ uuid.UUID, balance, _ int) {
	n.calls = append(n.calls, balance)
}

func TestConsumeWritesOneUsageRowPerBatch(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()
	freeExp := now.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`FROM credit_transactions\s+WHERE user_id = \$1\s+ORDER BY seq`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 1, 50, TxTypePurchase, SourcePurchase, nil, 50)...).
			AddRow(historyRow(userID, 2, 10, TxTypeBonus, SourceFree, &freeExp, 60)...))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, -10, TxTypeUsage, SourceFree, sqlmock.AnyArg(), 50, "generate", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 3, now))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, -5, TxTypeUsage, SourcePurchase, nil, 45, "generate", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 4, now))
	mock.ExpectCommit()

	res, err := svc.Consume(context.Background(), ConsumeInput{UserID: userID, Amount: 15, Description: "generate"})
	require.NoError(t, err)
	assert.Equal(t, 45, res.Balance)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, SourceFree, res.Transactions[0].SourceType)
	assert.Equal(t, -5, res.Transactions[1].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeInsufficientWritesNothing(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()
	expired := now.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`ORDER BY seq`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 1, 10, TxTypeBonus, SourceFree, &expired, 10)...).
			AddRow(historyRow(userID, 2, 3, TxTypePurchase, SourcePurchase, nil, 13)...))
	mock.ExpectRollback()

	_, err := svc.Consume(context.Background(), ConsumeInput{UserID: userID, Amount: 4})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeUnknownUser(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.Consume(context.Background(), ConsumeInput{UserID: userID, Amount: 1})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeDuplicateReferenceIsNoop(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`WHERE user_id = \$1 AND type = \$2 AND reference_id = \$3`).
		WithArgs(userID, TxTypeUsage, "pres-1").
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 5, -4, TxTypeUsage, SourcePurchase, nil, 6)...))
	mock.ExpectQuery(`SELECT balance`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(6))
	mock.ExpectCommit()

	res, err := svc.Consume(context.Background(), ConsumeInput{UserID: userID, Amount: 4, ReferenceID: "pres-1"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 6, res.Balance)
	assert.Empty(t, notifier.calls, "duplicates must not emit balance events")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantAppendsRunningBalance(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()
	exp := now.Add(30 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`WHERE user_id = \$1 AND type = \$2 AND reference_id = \$3`).
		WithArgs(userID, TxTypePurchase, "pay-1").
		WillReturnRows(sqlmock.NewRows(historyColumns))
	mock.ExpectQuery(`SELECT balance`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, 50, TxTypePurchase, SourcePurchase, exp, 57, "credits purchased", "pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 9, now))
	mock.ExpectCommit()

	res, err := svc.Grant(context.Background(), GrantInput{
		UserID:      userID,
		Amount:      50,
		Type:        TxTypePurchase,
		Source:      SourcePurchase,
		ExpiresAt:   &exp,
		ReferenceID: "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 57, res.Balance)
	assert.False(t, res.Duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantValidatesInput(t *testing.T) {
	svc, _ := newMockService(t)
	ctx := context.Background()
	uid := uuid.New()

	cases := []struct {
		in   GrantInput
		want error
	}{
		{GrantInput{UserID: uid, Amount: 0, Type: TxTypeBonus, Source: SourceFree}, ErrInvalidAmount},
		{GrantInput{UserID: uid, Amount: -3, Type: TxTypeBonus, Source: SourceFree}, ErrInvalidAmount},
		{GrantInput{UserID: uid, Amount: 3, Type: TxTypeUsage, Source: SourceFree}, ErrInvalidType},
		{GrantInput{UserID: uid, Amount: 3, Type: TxTypeExpiration, Source: SourceFree}, ErrInvalidType},
		{GrantInput{UserID: uid, Amount: 3, Type: TxTypeBonus, Source: "GIFT"}, ErrInvalidSource},
	}
	for _, tc := range cases {
		_, err := svc.GrantTx(ctx, nil, tc.in)
		assert.ErrorIs(t, err, tc.want)
	}
}

func TestGetBreakdownsCoversEveryRequestedUser(t *testing.T) {
	svc, mock := newMockService(t)
	withCredits, withoutRows := uuid.New(), uuid.New()

	mock.ExpectQuery(`WHERE user_id = ANY\(\$1::uuid\[\]\)`).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(withCredits, 1, 10, TxTypeBonus, SourceFree, nil, 10)...).
			AddRow(historyRow(withCredits, 2, -4, TxTypeUsage, SourceFree, nil, 6)...))

	out, err := svc.GetBreakdowns(context.Background(), []uuid.UUID{withCredits, withoutRows})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 6, out[withCredits].Balance)
	assert.Equal(t, 6, out[withCredits].Available)
	assert.Equal(t, 0, out[withoutRows].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireBatchesWritesExpirationRows(t *testing.T) {
	svc, mock := newMockService(t)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	userID := uuid.New()
	expired := now.Add(-time.Hour)

	mock.ExpectQuery(`HAVING SUM\(amount\) > 0`).
		WithArgs(now, expiryScanLimit).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(userID.String()))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`ORDER BY seq`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 1, 10, TxTypeBonus, SourceFree, &expired, 10)...).
			AddRow(historyRow(userID, 2, -3, TxTypeUsage, SourceFree, &expired, 7)...).
			AddRow(historyRow(userID, 3, 20, TxTypePurchase, SourcePurchase, nil, 27)...))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, -7, TxTypeExpiration, SourceFree, sqlmock.AnyArg(), 20, "credits expired", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 4, now))
	mock.ExpectCommit()
	// NotifyBalance reloads the breakdown after commit.
	mock.ExpectQuery(`ORDER BY seq`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 3, 20, TxTypePurchase, SourcePurchase, nil, 27)...).
			AddRow(historyRow(userID, 4, -7, TxTypeExpiration, SourceFree, &expired, 20)...))

	report, err := svc.ExpireBatches(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, ExpiryReport{Users: 1, Batches: 1, Credits: 7}, report)
	assert.Equal(t, []int{20}, notifier.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireBatchesContinuesAfterFailure(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()

	mock.ExpectQuery(`HAVING SUM\(amount\) > 0`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(userID.String()))
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	report, err := svc.ExpireBatches(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Users)
}

func TestRefundUsageRestoresDrawnBatches(t *testing.T) {
	svc, mock := newMockService(t)
	userID := uuid.New()
	freeExp := now.Add(24 * time.Hour)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID.String()))
	mock.ExpectQuery(`WHERE user_id = \$1 AND type = \$2 AND reference_id = \$3`).
		WithArgs(userID, TxTypeRefund, "pres-1:1").
		WillReturnRows(sqlmock.NewRows(historyColumns))
	mock.ExpectQuery(`WHERE user_id = \$1 AND type = \$2 AND reference_id = \$3`).
		WithArgs(userID, TxTypeUsage, "pres-1:1").
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(historyRow(userID, 3, -10, TxTypeUsage, SourceFree, &freeExp, 50)...).
			AddRow(historyRow(userID, 4, -5, TxTypeUsage, SourcePurchase, nil, 45)...))
	mock.ExpectQuery(`SELECT balance`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(45))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, 10, TxTypeRefund, SourceFree, freeExp, 55, "generation failed", "pres-1:1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 5, now))
	mock.ExpectQuery(`INSERT INTO credit_transactions`).
		WithArgs(userID, 5, TxTypeRefund, SourcePurchase, nil, 60, "generation failed", "pres-1:1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow(uuid.New().String(), 6, now))
	mock.ExpectCommit()

	tx, err := svc.repo.BeginTx(ctx)
	require.NoError(t, err)
	res, err := svc.RefundUsageTx(ctx, tx, userID, "pres-1:1", "generation failed")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 60, res.Balance)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, SourceFree, res.Transactions[0].SourceType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundUsageWithoutUsageFails(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.RefundUsageTx(context.Background(), nil, uuid.New(), " ", "")
	assert.ErrorIs(t, err, ErrNoUsage)
}
