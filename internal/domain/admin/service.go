package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
)

// Users is the user store as the admin panel uses it.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	List(ctx context.Context, filter user.ListFilter) ([]user.User, int, error)
	Count(ctx context.Context) (int, error)
	SetBanned(ctx context.Context, id uuid.UUID, banned bool) error
}

// Ledger is the credit ledger as the admin panel uses it.
type Ledger interface {
	Grant(ctx context.Context, in credit.GrantInput) (*credit.Result, error)
	GetBreakdowns(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]credit.Breakdown, error)
	SearchTransactions(ctx context.Context, filters credit.SearchFilters) ([]credit.Transaction, int, error)
	Totals(ctx context.Context) (credit.Totals, error)
}

// Permissions is the tuple store as the admin panel uses it.
type Permissions interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	CheckAdmins(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	ListAdmins(ctx context.Context) ([]uuid.UUID, error)
	Grant(ctx context.Context, t permission.Tuple) error
	RevokeAdmin(ctx context.Context, userID uuid.UUID) error
}

// Payments is the payment service as the admin panel uses it.
type Payments interface {
	List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, int, error)
	Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*payment.Payment, error)
	Revenue(ctx context.Context) ([]payment.Revenue, error)
}

// Subscriptions reports subscription counts.
type Subscriptions interface {
	CountActive(ctx context.Context) (int, error)
}

// Actor identifies the admin performing an action.
type Actor struct {
	ID uuid.UUID
	IP string
}

// Service is the admin panel
type Service struct {
	users         Users
	ledger        Ledger
	perms         Permissions
	payments      Payments
	subscriptions Subscriptions
	audit         AuditRepository
}

// NewService creates admin service
func NewService(users Users, ledger Ledger, perms Permissions, payments Payments, subscriptions Subscriptions, audit AuditRepository) *Service {
	return &Service{
		users:         users,
		ledger:        ledger,
		perms:         perms,
		payments:      payments,
		subscriptions: subscriptions,
		audit:         audit,
	}
}

// Dashboard returns the overview totals
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.subscriptions.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.payments.Revenue(ctx)
	if err != nil {
		return nil, err
	}
	return &DashboardStats{
		Users:               users,
		ActiveSubscriptions: subs,
		Credits:             totals,
		Revenue:             revenue,
	}, nil
}

// ListUsers returns a page of users with admin flag and balances resolved in
// one batched call each.
func (s *Service) ListUsers(ctx context.Context, filter user.ListFilter) ([]UserRow, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	admins, err := s.perms.CheckAdmins(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	balances, err := s.ledger.GetBreakdowns(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]UserRow, len(users))
	for i, u := range users {
		b := balances[u.ID]
		rows[i] = UserRow{
			ID:               u.ID,
			Email:            u.Email,
			Name:             u.Name,
			IsBanned:         u.IsBanned,
			IsAdmin:          admins[u.ID],
			Balance:          b.Balance,
			AvailableCredits: b.Available,
			CreatedAt:        u.CreatedAt,
		}
	}
	return rows, total, nil
}

// GrantCredits adds credits to a user. Type defaults to BONUS and source to EVENT.
func (s *Service) GrantCredits(ctx context.Context, actor Actor, userID uuid.UUID, req *GrantCreditsRequest) (*GrantResponse, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	in := credit.GrantInput{
		UserID:      userID,
		Amount:      req.Amount,
		Type:        credit.TxTypeBonus,
		Source:      credit.SourceEvent,
		ExpiresAt:   req.ExpiresAt,
		Description: "Admin grant: " + strings.TrimSpace(req.Reason),
		ReferenceID: req.ReferenceID,
	}
	if req.Type != "" {
		in.Type = credit.TxType(req.Type)
	}
	if req.Source != "" {
		in.Source = credit.SourceType(req.Source)
	}

	res, err := s.ledger.Grant(ctx, in)
	if err != nil {
		return nil, err
	}
	if !res.Duplicate {
		s.logAction(ctx, actor, ActionCreditGrant, "user", userID.String(), req.Reason, map[string]interface{}{
			"amount":  req.Amount,
			"type":    in.Type,
			"source":  in.Source,
			"balance": res.Balance,
		})
	}
	return &GrantResponse{Balance: res.Balance, Duplicate: res.Duplicate}, nil
}

// SetBanned bans or unbans a user. Admins cannot ban themselves or other admins.
func (s *Service) SetBanned(ctx context.Context, actor Actor, userID uuid.UUID, banned bool, reason string) error {
	if banned {
		if userID == actor.ID {
			return ErrCannotBanSelf
		}
		isAdmin, err := s.perms.IsAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if isAdmin {
			return ErrCannotBanAdmin
		}
	}

	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return err
	}

	action := ActionUserUnban
	if banned {
		action = ActionUserBan
	}
	s.logAction(ctx, actor, action, "user", userID.String(), reason, nil)
	return nil
}

// ListAdmins returns every global admin
func (s *Service) ListAdmins(ctx context.Context) ([]AdminRow, error) {
	ids, err := s.perms.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]AdminRow, 0, len(ids))
	for _, id := range ids {
		row := AdminRow{ID: id}
		if u, err := s.users.GetByID(ctx, id); err == nil {
			row.Email, row.Name = u.Email, u.Name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GrantAdmin writes the global admin tuple for userID
func (s *Service) GrantAdmin(ctx context.Context, actor Actor, userID uuid.UUID) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	isAdmin, err := s.perms.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if isAdmin {
		return ErrAlreadyAdmin
	}
	if err := s.perms.Grant(ctx, permission.AdminTuple(userID)); err != nil {
		return err
	}
	s.logAction(ctx, actor, ActionAdminGrant, "user", userID.String(), "", map[string]string{"email": u.Email})
	return nil
}

// RevokeAdmin removes the global admin tuple. At least one admin always remains.
func (s *Service) RevokeAdmin(ctx context.Context, actor Actor, userID uuid.UUID) error {
	if err := s.perms.RevokeAdmin(ctx, userID); err != nil {
		return err
	}
	s.logAction(ctx, actor, ActionAdminRevoke, "user", userID.String(), "", nil)
	return nil
}

// SearchTransactions is the ledger search
func (s *Service) SearchTransactions(ctx context.Context, filters credit.SearchFilters) ([]credit.Transaction, int, error) {
	return s.ledger.SearchTransactions(ctx, filters)
}

// ListPayments lists payments across users
func (s *Service) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, int, error) {
	return s.payments.List(ctx, filter)
}

// RefundPayment marks a paid payment refunded
func (s *Service) RefundPayment(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string) (*payment.Payment, error) {
	p, err := s.payments.Refund(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, actor, ActionPaymentRefund, "payment", paymentID.String(), reason, map[string]interface{}{
		"user_id":  p.UserID,
		"amount":   p.Amount,
		"currency": p.Currency,
	})
	return p, nil
}

// ListAuditLogs returns the admin action history
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error) {
	return s.audit.List(ctx, filter)
}

// logAction records an audit entry. A failed write is logged, not returned:
// the action itself already happened.
func (s *Service) logAction(ctx context.Context, actor Actor, action, entityType, entityID, reason string, details interface{}) {
	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     strings.TrimSpace(reason),
		IPAddress:  actor.IP,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			entry.Details = raw
		}
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("admin_id", actor.ID.String()).
			Str("action", action).
			Msg("Failed to create audit log")
		return
	}
	log.Info().
		Str("admin_id", actor.ID.String()).
		Str("action", action).
		Str("entity", fmt.Sprintf("%s:%s", entityType, entityID)).
		Msg("Admin action")
}
