package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
)

type usersStub struct {
	users map[uuid.UUID]*user.User
}

func (u *usersStub) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	if v, ok := u.users[id]; ok {
		return v, nil
	}
	return nil, user.ErrUserNotFound
}

func (u *usersStub) List(_ context.Context, _ user.ListFilter) ([]user.User, int, error) {
	out := make([]user.User, 0, len(u.users))
	for _, v := range u.users {
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (u *usersStub) Count(context.Context) (int, error) { return len(u.users), nil }

func (u *usersStub) SetBanned(_ context.Context, id uuid.UUID, banned bool) error {
	v, ok := u.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	v.IsBanned = banned
	return nil
}

type ledgerStub struct {
	grants   []credit.GrantInput
	refs     map[string]bool
	balances map[uuid.UUID]credit.Breakdown
	filters  credit.SearchFilters
}

func (l *ledgerStub) Grant(_ context.Context, in credit.GrantInput) (*credit.Result, error) {
	if in.ReferenceID != "" && l.refs[in.ReferenceID] {
		return &credit.Result{Balance: in.Amount, Duplicate: true}, nil
	}
	if l.refs == nil {
		l.refs = map[string]bool{}
	}
	l.refs[in.ReferenceID] = true
	l.grants = append(l.grants, in)
	return &credit.Result{Balance: in.Amount}, nil
}

func (l *ledgerStub) GetBreakdowns(context.Context, []uuid.UUID) (map[uuid.UUID]credit.Breakdown, error) {
	return l.balances, nil
}

func (l *ledgerStub) SearchTransactions(_ context.Context, f credit.SearchFilters) ([]credit.Transaction, int, error) {
	l.filters = f
	return []credit.Transaction{}, 0, nil
}

func (l *ledgerStub) Totals(context.Context) (credit.Totals, error) {
	return credit.Totals{Granted: 100, Consumed: 40}, nil
}

type permsStub struct {
	admins map[uuid.UUID]bool
}

func (p *permsStub) IsAdmin(_ context.Context, id uuid.UUID) (bool, error) { return p.admins[id], nil }

func (p *permsStub) RequireAdmin(_ context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return permission.ErrUnauthorized
	}
	if !p.admins[id] {
		return permission.ErrForbidden
	}
	return nil
}

func (p *permsStub) CheckAdmins(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = p.admins[id]
	}
	return out, nil
}

func (p *permsStub) ListAdmins(context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, ok := range p.admins {
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *permsStub) Grant(_ context.Context, t permission.Tuple) error {
	p.admins[uuid.MustParse(t.SubjectID)] = true
	return nil
}

func (p *permsStub) RevokeAdmin(_ context.Context, id uuid.UUID) error {
	if !p.admins[id] {
		return permission.ErrNotAdmin
	}
	if len(p.admins) <= 1 {
		return permission.ErrLastAdmin
	}
	delete(p.admins, id)
	return nil
}

type paymentsStub struct {
	payments map[uuid.UUID]*payment.Payment
}

func (p *paymentsStub) List(context.Context, payment.ListFilter) ([]*payment.Payment, int, error) {
	return nil, 0, nil
}

func (p *paymentsStub) Refund(_ context.Context, id uuid.UUID, _ string) (*payment.Payment, error) {
	v, ok := p.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	if v.Status != payment.StatusPaid {
		return nil, payment.ErrNotRefundable
	}
	v.Status = payment.StatusRefunded
	return v, nil
}

func (p *paymentsStub) Revenue(context.Context) ([]payment.Revenue, error) {
	return []payment.Revenue{{Currency: "USD", Status: payment.StatusPaid, Count: 1, Amount: 999}}, nil
}

type subsStub struct{}

func (subsStub) CountActive(context.Context) (int, error) { return 3, nil }

type auditStub struct {
	logs []AuditLog
}

func (a *auditStub) Create(_ context.Context, l *AuditLog) error {
	l.CreatedAt = time.Now()
	a.logs = append(a.logs, *l)
	return nil
}

func (a *auditStub) List(context.Context, AuditFilter) ([]AuditLog, int, error) {
	return a.logs, len(a.logs), nil
}

type fixture struct {
	svc      *Service
	users    *usersStub
	ledger   *ledgerStub
	perms    *permsStub
	payments *paymentsStub
	audit    *auditStub
	admin    Actor
	member   uuid.UUID
}

func newFixture() *fixture {
	adminID, memberID := uuid.New(), uuid.New()
	f := &fixture{
		users: &usersStub{users: map[uuid.UUID]*user.User{
			adminID:  {ID: adminID, Email: "admin@example.com", Name: "Admin"},
			memberID: {ID: memberID, Email: "member@example.com", Name: "Member"},
		}},
		ledger:   &ledgerStub{balances: map[uuid.UUID]credit.Breakdown{memberID: {Balance: 30, Available: 20}}},
		perms:    &permsStub{admins: map[uuid.UUID]bool{adminID: true}},
		payments: &paymentsStub{payments: map[uuid.UUID]*payment.Payment{}},
		audit:    &auditStub{},
		admin:    Actor{ID: adminID, IP: "10.0.0.1"},
		member:   memberID,
	}
	f.svc = NewService(f.users, f.ledger, f.perms, f.payments, subsStub{}, f.audit)
	return f
}

func TestDashboard(t *testing.T) {
	f := newFixture()
	stats, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 3, stats.ActiveSubscriptions)
	assert.Equal(t, 100, stats.Credits.Granted)
	require.Len(t, stats.Revenue, 1)
}

func TestListUsersResolvesAdminAndBalance(t *testing.T) {
	f := newFixture()
	rows, total, err := f.svc.ListUsers(context.Background(), user.ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	byID := map[uuid.UUID]UserRow{}
	for _, r := range rows {
		byID[r.ID] = r
	}
	assert.True(t, byID[f.admin.ID].IsAdmin)
	assert.False(t, byID[f.member].IsAdmin)
	assert.Equal(t, 30, byID[f.member].Balance)
	assert.Equal(t, 20, byID[f.member].AvailableCredits)
}

func TestGrantCreditsDefaultsAndAudits(t *testing.T) {
	f := newFixture()
	res, err := f.svc.GrantCredits(context.Background(), f.admin, f.member, &GrantCreditsRequest{Amount: 50, Reason: "apology", ReferenceID: "ticket-1"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	require.Len(t, f.ledger.grants, 1)
	assert.Equal(t, credit.TxTypeBonus, f.ledger.grants[0].Type)
	assert.Equal(t, credit.SourceEvent, f.ledger.grants[0].Source)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, ActionCreditGrant, f.audit.logs[0].Action)
	assert.Equal(t, f.member.String(), f.audit.logs[0].EntityID)
	assert.Equal(t, "10.0.0.1", f.audit.logs[0].IPAddress)
}

func TestGrantCreditsDuplicateIsNotAudited(t *testing.T) {
	f := newFixture()
	req := &GrantCreditsRequest{Amount: 50, Reason: "apology", ReferenceID: "ticket-1"}
	_, err := f.svc.GrantCredits(context.Background(), f.admin, f.member, req)
	require.NoError(t, err)
	res, err := f.svc.GrantCredits(context.Background(), f.admin, f.member, req)
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Len(t, f.audit.logs, 1)
}

func TestGrantCreditsUnknownUser(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GrantCredits(context.Background(), f.admin, uuid.New(), &GrantCreditsRequest{Amount: 5, Reason: "test"})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestSetBannedRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.SetBanned(ctx, f.admin, f.admin.ID, true, ""), ErrCannotBanSelf)

	other := uuid.New()
	f.users.users[other] = &user.User{ID: other}
	f.perms.admins[other] = true
	assert.ErrorIs(t, f.svc.SetBanned(ctx, f.admin, other, true, ""), ErrCannotBanAdmin)

	require.NoError(t, f.svc.SetBanned(ctx, f.admin, f.member, true, "spam"))
	assert.True(t, f.users.users[f.member].IsBanned)
	require.NoError(t, f.svc.SetBanned(ctx, f.admin, f.member, false, ""))
	assert.False(t, f.users.users[f.member].IsBanned)

	require.Len(t, f.audit.logs, 2)
	assert.Equal(t, ActionUserBan, f.audit.logs[0].Action)
	assert.Equal(t, "spam", f.audit.logs[0].Reason)
	assert.Equal(t, ActionUserUnban, f.audit.logs[1].Action)
}

func TestGrantAndRevokeAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.GrantAdmin(ctx, f.admin, f.member))
	assert.ErrorIs(t, f.svc.GrantAdmin(ctx, f.admin, f.member), ErrAlreadyAdmin)

	admins, err := f.svc.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	require.NoError(t, f.svc.RevokeAdmin(ctx, f.admin, f.member))
	assert.ErrorIs(t, f.svc.RevokeAdmin(ctx, f.admin, f.member), ErrNotAdmin)
	assert.ErrorIs(t, f.svc.RevokeAdmin(ctx, f.admin, f.admin.ID), ErrLastAdmin)

	require.Len(t, f.audit.logs, 2)
	assert.Equal(t, ActionAdminRevoke, f.audit.logs[1].Action)
}

func TestRefundPaymentAudits(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.payments.payments[id] = &payment.Payment{ID: id, UserID: f.member, Amount: 499, Currency: "USD", Status: payment.StatusPaid}

	p, err := f.svc.RefundPayment(context.Background(), f.admin, id, "duplicate charge")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, p.Status)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, ActionPaymentRefund, f.audit.logs[0].Action)

	_, err = f.svc.RefundPayment(context.Background(), f.admin, id, "again")
	assert.ErrorIs(t, err, payment.ErrNotRefundable)
	assert.Len(t, f.audit.logs, 1)
}

func withUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
		})
	}
}

func serve(t *testing.T, f *fixture, userID uuid.UUID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := chi.NewRouter()
	r.Mount("/api/admin", NewHandler(f.svc).Routes(withUser(userID), f.perms))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.168.0.7:4242"
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresAdmin(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusForbidden, serve(t, f, f.member, http.MethodGet, "/api/admin/dashboard", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, f, uuid.Nil, http.MethodGet, "/api/admin/dashboard", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, f, f.admin.ID, http.MethodGet, "/api/admin/dashboard", nil).Code)
}

func TestGrantCreditsHandler(t *testing.T) {
	f := newFixture()
	rec := serve(t, f, f.admin.ID, http.MethodPost, "/api/admin/users/"+f.member.String()+"/credits",
		GrantCreditsRequest{Amount: 25, Source: "FREE", Reason: "welcome back"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.ledger.grants, 1)
	assert.Equal(t, credit.SourceFree, f.ledger.grants[0].Source)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "192.168.0.7", f.audit.logs[0].IPAddress)
}

func TestGrantCreditsHandlerValidates(t *testing.T) {
	f := newFixture()
	rec := serve(t, f, f.admin.ID, http.MethodPost, "/api/admin/users/"+f.member.String()+"/credits",
		GrantCreditsRequest{Amount: 0, Reason: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.ledger.grants)
}

func TestBanHandlerMapsErrors(t *testing.T) {
	f := newFixture()
	rec := serve(t, f, f.admin.ID, http.MethodPost, "/api/admin/users/"+f.admin.ID.String()+"/ban", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "CANNOT_BAN_SELF")

	rec = serve(t, f, f.admin.ID, http.MethodPost, "/api/admin/users/"+uuid.NewString()+"/unban", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevokeLastAdminHandler(t *testing.T) {
	f := newFixture()
	rec := serve(t, f, f.admin.ID, http.MethodDelete, "/api/admin/admins/"+f.admin.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "LAST_ADMIN")
}

func TestTransactionsHandlerParsesFilters(t *testing.T) {
	f := newFixture()
	rec := serve(t, f, f.admin.ID, http.MethodGet,
		"/api/admin/transactions?user_id="+f.member.String()+"&source=purchase&from=2026-01-01T00:00:00Z&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, f.ledger.filters.UserID)
	assert.Equal(t, f.member, *f.ledger.filters.UserID)
	require.NotNil(t, f.ledger.filters.Source)
	assert.Equal(t, credit.SourcePurchase, *f.ledger.filters.Source)
	require.NotNil(t, f.ledger.filters.DateFrom)
	assert.Nil(t, f.ledger.filters.DateTo)
	assert.Equal(t, 10, f.ledger.filters.Limit)

	rec = serve(t, f, f.admin.ID, http.MethodGet, "/api/admin/transactions?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundHandlerMapsNotRefundable(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.payments.payments[id] = &payment.Payment{ID: id, Status: payment.StatusPending}

	rec := serve(t, f, f.admin.ID, http.MethodPost, "/api/admin/payments/"+id.String()+"/refund", RefundRequest{Reason: "customer asked"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_REFUNDABLE")
}
