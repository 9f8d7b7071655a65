package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// AuditRepository stores admin audit logs
type AuditRepository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error)
}

type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates audit log repository
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, log *AuditLog) error {
	query := `
		INSERT INTO admin_audit_logs (id, admin_id, action, entity_type, entity_id, details, reason, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	var details interface{}
	if len(log.Details) > 0 {
		details = log.Details
	}
	return r.db.QueryRowxContext(ctx, query,
		log.ID,
		log.AdminID,
		log.Action,
		log.EntityType,
		log.EntityID,
		details,
		log.Reason,
		log.IPAddress,
	).Scan(&log.CreatedAt)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error) {
	var where []string
	var args []interface{}
	argN := 1

	if filter.AdminID != nil {
		where = append(where, fmt.Sprintf("admin_id = $%d", argN))
		args = append(args, *filter.AdminID)
		argN++
	}
	if filter.Action != nil {
		where = append(where, fmt.Sprintf("action = $%d", argN))
		args = append(args, *filter.Action)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM admin_audit_logs "+whereClause, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, admin_id, action, entity_type, entity_id, details, reason, ip_address, created_at
		FROM admin_audit_logs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	logs := []AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
