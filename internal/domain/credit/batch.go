package credit

import (
	"sort"
	"time"
)

// Batch is a pool of credits sharing a source and expiry. Batches are never
// stored: they are rebuilt by summing every ledger row with the same key.
type Batch struct {
	Source    SourceType `json:"source_type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Remaining int        `json:"remaining"`
	Expired   bool       `json:"expired"`
}

// Breakdown is the per-batch view of a user's credits.
type Breakdown struct {
	// Balance is the cached running total from the latest ledger row.
	Balance int `json:"balance"`
	// Available excludes batches that have already expired.
	Available int     `json:"available"`
	Batches   []Batch `json:"batches"`
}

// Debit is the part of a write taken from one batch.
type Debit struct {
	Source    SourceType
	ExpiresAt *time.Time
	Amount    int
}

type batchKey struct {
	source    SourceType
	expiresAt int64
	expiring  bool
}

func keyOf(source SourceType, expiresAt *time.Time) batchKey {
	if expiresAt == nil {
		return batchKey{source: source}
	}
	// Postgres keeps microseconds; normalise so scanned and in-memory times agree.
	return batchKey{source: source, expiresAt: expiresAt.UTC().UnixMicro(), expiring: true}
}

// ReplayBatches buckets ledger rows by (source, expiry) and returns batches
// that still hold credits, in consumption order.
func ReplayBatches(rows []Transaction, now time.Time) []Batch {
	sums := make(map[batchKey]*Batch)
	order := make([]batchKey, 0)

	for _, row := range rows {
		k := keyOf(row.SourceType, row.ExpiresAt)
		b, ok := sums[k]
		if !ok {
			b = &Batch{Source: row.SourceType}
			if row.ExpiresAt != nil {
				exp := time.UnixMicro(k.expiresAt).UTC()
				b.ExpiresAt = &exp
			}
			sums[k] = b
			order = append(order, k)
		}
		b.Remaining += row.Amount
	}

	batches := make([]Batch, 0, len(order))
	for _, k := range order {
		b := sums[k]
		if b.Remaining <= 0 {
			continue
		}
		b.Expired = b.ExpiresAt != nil && !b.ExpiresAt.After(now)
		batches = append(batches, *b)
	}

	SortBatches(batches)
	return batches
}

// SortBatches orders batches soonest expiry first, non-expiring last, with
// ties broken by source priority.
func SortBatches(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiresAt != nil && b.ExpiresAt != nil:
			if !a.ExpiresAt.Equal(*b.ExpiresAt) {
				return a.ExpiresAt.Before(*b.ExpiresAt)
			}
		case a.ExpiresAt != nil:
			return true
		case b.ExpiresAt != nil:
			return false
		}
		return a.Source.priority() < b.Source.priority()
	})
}

// BuildBreakdown combines the cached balance with replayed batches.
func BuildBreakdown(rows []Transaction, balance int, now time.Time) Breakdown {
	batches := ReplayBatches(rows, now)
	available := 0
	for _, b := range batches {
		if !b.Expired {
			available += b.Remaining
		}
	}
	return Breakdown{Balance: balance, Available: available, Batches: batches}
}

// PlanConsumption splits amount across unexpired batches in consumption
// order. Nothing is planned unless the whole amount fits.
func PlanConsumption(batches []Batch, amount int) ([]Debit, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	available := 0
	for _, b := range batches {
		if !b.Expired && b.Remaining > 0 {
			available += b.Remaining
		}
	}
	if amount > available {
		return nil, ErrInsufficientCredits
	}

	debits := make([]Debit, 0, 2)
	left := amount
	for _, b := range batches {
		if left == 0 {
			break
		}
		if b.Expired || b.Remaining <= 0 {
			continue
		}
		take := b.Remaining
		if take > left {
			take = left
		}
		debits = append(debits, Debit{Source: b.Source, ExpiresAt: b.ExpiresAt, Amount: take})
		left -= take
	}
	return debits, nil
}

// PlanExpirations returns one debit per expired batch that still holds credits.
func PlanExpirations(batches []Batch) []Debit {
	debits := make([]Debit, 0)
	for _, b := range batches {
		if b.Expired && b.Remaining > 0 {
			debits = append(debits, Debit{Source: b.Source, ExpiresAt: b.ExpiresAt, Amount: b.Remaining})
		}
	}
	return debits
}
