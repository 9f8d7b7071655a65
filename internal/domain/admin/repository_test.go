package admin

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

func newMock(t *testing.T) (AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestAuditCreateStoresEntry(t *testing.T) {
	repo, mock := newMock(t)
	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    uuid.New(),
		Action:     ActionUserBan,
		EntityType: "user",
		EntityID:   uuid.NewString(),
		Details:    []byte(`{"k":"v"}`),
		Reason:     "spam",
		IPAddress:  "10.0.0.1",
	}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO admin_audit_logs`)).
		WithArgs(entry.ID, entry.AdminID, entry.Action, entry.EntityType, entry.EntityID, sqlmock.AnyArg(), entry.Reason, entry.IPAddress).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, now, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListFiltersByAction(t *testing.T) {
	repo, mock := newMock(t)
	action := ActionCreditGrant
	id, adminID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM admin_audit_logs WHERE action = $1`)).
		WithArgs(action).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $2 OFFSET $3`)).
		WithArgs(action, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "admin_id", "action", "entity_type", "entity_id", "details", "reason", "ip_address", "created_at",
		}).AddRow(id.String(), adminID.String(), action, "user", "u-1", []byte(`{"amount":5}`), "gift", "", time.Now()))

	logs, total, err := repo.List(context.Background(), AuditFilter{Action: &action, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, adminID, logs[0].AdminID)
	assert.JSONEq(t, `{"amount":5}`, string(logs[0].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}
