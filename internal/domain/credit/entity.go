package credit

import (
	"time"

	"github.com/google/uuid"
)

// TxType defines supported credit transaction types.
type TxType string

const (
	TxTypePurchase   TxType = "PURCHASE"
	TxTypeUsage      TxType = "USAGE"
	TxTypeRefund     TxType = "REFUND"
	TxTypeBonus      TxType = "BONUS"
	TxTypeExpiration TxType = "EXPIRATION"
)

// IsGrant reports whether the type adds credits.
func (t TxType) IsGrant() bool {
	return t == TxTypePurchase || t == TxTypeRefund || t == TxTypeBonus
}

// SourceType says where a batch of credits came from.
type SourceType string

const (
	SourceFree         SourceType = "FREE"
	SourceEvent        SourceType = "EVENT"
	SourceSubscription SourceType = "SUBSCRIPTION"
	SourcePurchase     SourceType = "PURCHASE"
)

// priority orders batches with equal expiry. Lower is consumed first,
// so purchased credits are kept longest.
func (s SourceType) priority() int {
	switch s {
	case SourceFree:
		return 0
	case SourceEvent:
		return 1
	case SourceSubscription:
		return 2
	case SourcePurchase:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known source.
func (s SourceType) Valid() bool {
	return s.priority() < 4
}

// Transaction is an immutable ledger row.
type Transaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Seq         int64      `db:"seq" json:"-"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Amount      int        `db:"amount" json:"amount"`
	Type        TxType     `db:"type" json:"type"`
	SourceType  SourceType `db:"source_type" json:"source_type"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Balance     int        `db:"balance" json:"balance"`
	Description string     `db:"description" json:"description"`
	ReferenceID *string    `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// GrantInput describes credits being added to a user.
type GrantInput struct {
	UserID      uuid.UUID
	Amount      int
	Type        TxType
	Source      SourceType
	ExpiresAt   *time.Time
	Description string
	ReferenceID string
}

// ConsumeInput describes credits being spent.
type ConsumeInput struct {
	UserID      uuid.UUID
	Amount      int
	Description string
	ReferenceID string
}

// Result is the outcome of a ledger write.
type Result struct {
	Balance      int           `json:"balance"`
	Transactions []Transaction `json:"transactions"`
	// Duplicate is set when the reference id was already recorded and nothing was written.
	Duplicate bool `json:"duplicate"`
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// SearchFilters provides admin-facing transaction filtering.
type SearchFilters struct {
	UserID      *uuid.UUID
	Type        *TxType
	Source      *SourceType
	ReferenceID *string
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}

// Totals aggregates ledger volume per transaction type.
type Totals struct {
	Granted  int `json:"granted"`
	Consumed int `json:"consumed"`
	Refunded int `json:"refunded"`
	Expired  int `json:"expired"`
}

// ExpiryReport summarises one ExpireBatches run.
type ExpiryReport struct {
	Users   int `json:"users"`
	Batches int `json:"batches"`
	Credits int `json:"credits"`
	Failed  int `json:"failed"`
}
