package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
)

// Audit actions
const (
	ActionCreditGrant   = "credit.grant"
	ActionUserBan       = "user.ban"
	ActionUserUnban     = "user.unban"
	ActionAdminGrant    = "admin.grant"
	ActionAdminRevoke   = "admin.revoke"
	ActionPaymentRefund = "payment.refund"
)

// AuditLog represents an admin action log entry
type AuditLog struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	AdminID    uuid.UUID      `db:"admin_id" json:"admin_id"`
	Action     string         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	EntityID   string         `db:"entity_id" json:"entity_id"`
	Details    types.JSONText `db:"details" json:"details,omitempty"`
	Reason     string         `db:"reason" json:"reason,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter for listing audit logs
type AuditFilter struct {
	AdminID *uuid.UUID
	Action  *string
	Limit   int
	Offset  int
}

// DashboardStats is the admin overview
type DashboardStats struct {
	Users               int               `json:"users"`
	ActiveSubscriptions int               `json:"active_subscriptions"`
	Credits             credit.Totals     `json:"credits"`
	Revenue             []payment.Revenue `json:"revenue"`
}

// UserRow is one line of the admin user list
type UserRow struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	IsBanned         bool      `json:"is_banned"`
	IsAdmin          bool      `json:"is_admin"`
	Balance          int       `json:"balance"`
	AvailableCredits int       `json:"available_credits"`
	CreatedAt        time.Time `json:"created_at"`
}

// AdminRow is one global admin
type AdminRow struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}
