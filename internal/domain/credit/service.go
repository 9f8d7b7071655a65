package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/pkg/metrics"
)

const expiryScanLimit = 500

// BalanceNotifier is told about balance changes after they are committed.
type BalanceNotifier interface {
	BalanceChanged(ctx context.Context, userID uuid.UUID, balance, available int)
}

// Service is the credit ledger.
type Service struct {
	repo     *CreditRepository
	notifier BalanceNotifier
	now      func() time.Time
}

// NewService creates a new credit service
func NewService(db *sqlx.DB) *Service {
	return &Service{
		repo: NewRepository(db),
		now:  time.Now,
	}
}

// SetNotifier wires realtime balance events.
func (s *Service) SetNotifier(n BalanceNotifier) {
	s.notifier = n
}

// Grant adds credits in its own transaction.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.repo.BeginTx(ctx2)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := s.GrantTx(ctx2, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	if !res.Duplicate {
		s.NotifyBalance(ctx, in.UserID)
	}
	return res, nil
}

// GrantTx adds credits inside a caller-owned transaction. The caller commits
// and should call NotifyBalance afterwards.
func (s *Service) GrantTx(ctx context.Context, tx *sqlx.Tx, in GrantInput) (*Result, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !in.Type.IsGrant() {
		return nil, ErrInvalidType
	}
	if !in.Source.Valid() {
		return nil, ErrInvalidSource
	}

	if err := s.repo.LockUser(ctx, tx, in.UserID); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(in.ReferenceID)
	if ref != "" {
		existing, err := s.repo.FindByReference(ctx, tx, in.UserID, in.Type, ref)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			balance, err := s.repo.LatestBalance(ctx, tx, in.UserID)
			if err != nil {
				return nil, err
			}
			return &Result{Balance: balance, Transactions: existing, Duplicate: true}, nil
		}
	}

	balance, err := s.repo.LatestBalance(ctx, tx, in.UserID)
	if err != nil {
		return nil, err
	}

	row := Transaction{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Type:        in.Type,
		SourceType:  in.Source,
		ExpiresAt:   in.ExpiresAt,
		Balance:     balance + in.Amount,
		Description: in.Description,
		ReferenceID: optional(ref),
	}
	if err := s.repo.Insert(ctx, tx, &row); err != nil {
		return nil, err
	}

	metrics.CreditsGrantedTotal.WithLabelValues(string(in.Type), string(in.Source)).Add(float64(in.Amount))
	log.Info().
		Str("user_id", in.UserID.String()).
		Int("amount", in.Amount).
		Str("type", string(in.Type)).
		Str("source", string(in.Source)).
		Int("balance", row.Balance).
		Msg("Credits granted")

	return &Result{Balance: row.Balance, Transactions: []Transaction{row}}, nil
}

// Consume debits credits in its own transaction.
func (s *Service) Consume(ctx context.Context, in ConsumeInput) (*Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.repo.BeginTx(ctx2)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := s.ConsumeTx(ctx2, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	if !res.Duplicate {
		s.NotifyBalance(ctx, in.UserID)
	}
	return res, nil
}

// ConsumeTx debits credits inside a caller-owned transaction, writing one
// USAGE row per batch it draws from, soonest expiry first. Either the whole
// amount is recorded or nothing is.
func (s *Service) ConsumeTx(ctx context.Context, tx *sqlx.Tx, in ConsumeInput) (*Result, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.repo.LockUser(ctx, tx, in.UserID); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(in.ReferenceID)
	if ref != "" {
		existing, err := s.repo.FindByReference(ctx, tx, in.UserID, TxTypeUsage, ref)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			balance, err := s.repo.LatestBalance(ctx, tx, in.UserID)
			if err != nil {
				return nil, err
			}
			return &Result{Balance: balance, Transactions: existing, Duplicate: true}, nil
		}
	}

	history, err := s.repo.History(ctx, tx, in.UserID)
	if err != nil {
		return nil, err
	}

	debits, err := PlanConsumption(ReplayBatches(history, s.now()), in.Amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			metrics.InsufficientCreditsTotal.Inc()
		}
		return nil, err
	}

	balance := latestOf(history)
	written := make([]Transaction, 0, len(debits))
	for _, d := range debits {
		balance -= d.Amount
		row := Transaction{
			UserID:      in.UserID,
			Amount:      -d.Amount,
			Type:        TxTypeUsage,
			SourceType:  d.Source,
			ExpiresAt:   d.ExpiresAt,
			Balance:     balance,
			Description: in.Description,
			ReferenceID: optional(ref),
		}
		if err := s.repo.Insert(ctx, tx, &row); err != nil {
			return nil, err
		}
		written = append(written, row)
	}

	metrics.CreditsConsumedTotal.Add(float64(in.Amount))
	log.Info().
		Str("user_id", in.UserID.String()).
		Int("amount", in.Amount).
		Int("batches", len(debits)).
		Int("balance", balance).
		Msg("Credits consumed")

	return &Result{Balance: balance, Transactions: written}, nil
}

// RefundUsageTx reverses the USAGE rows recorded under referenceID, writing
// one REFUND row per row back into the batch it was drawn from. A second
// call for the same reference is a no-op.
func (s *Service) RefundUsageTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, referenceID, description string) (*Result, error) {
	ref := strings.TrimSpace(referenceID)
	if ref == "" {
		return nil, ErrNoUsage
	}

	if err := s.repo.LockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	refunded, err := s.repo.FindByReference(ctx, tx, userID, TxTypeRefund, ref)
	if err != nil {
		return nil, err
	}
	if len(refunded) > 0 {
		balance, err := s.repo.LatestBalance(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		return &Result{Balance: balance, Transactions: refunded, Duplicate: true}, nil
	}

	usage, err := s.repo.FindByReference(ctx, tx, userID, TxTypeUsage, ref)
	if err != nil {
		return nil, err
	}
	if len(usage) == 0 {
		return nil, ErrNoUsage
	}

	balance, err := s.repo.LatestBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	written := make([]Transaction, 0, len(usage))
	for _, u := range usage {
		balance -= u.Amount
		row := Transaction{
			UserID:      userID,
			Amount:      -u.Amount,
			Type:        TxTypeRefund,
			SourceType:  u.SourceType,
			ExpiresAt:   u.ExpiresAt,
			Balance:     balance,
			Description: description,
			ReferenceID: optional(ref),
		}
		if err := s.repo.Insert(ctx, tx, &row); err != nil {
			return nil, err
		}
		metrics.CreditsGrantedTotal.WithLabelValues(string(TxTypeRefund), string(u.SourceType)).Add(float64(-u.Amount))
		written = append(written, row)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reference_id", ref).
		Int("rows", len(written)).
		Int("balance", balance).
		Msg("Credits refunded")

	return &Result{Balance: balance, Transactions: written}, nil
}

// GetBalance returns the cached balance of the user's latest ledger row.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.repo.LatestBalance(ctx2, s.repo.db, userID)
}

// GetBreakdown replays the user's history into batches.
func (s *Service) GetBreakdown(ctx context.Context, userID uuid.UUID) (*Breakdown, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	history, err := s.repo.History(ctx2, s.repo.db, userID)
	if err != nil {
		return nil, err
	}
	b := BuildBreakdown(history, latestOf(history), s.now())
	return &b, nil
}

// GetBreakdowns is the batched GetBreakdown for list views. Every requested
// id is present in the result.
func (s *Service) GetBreakdowns(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]Breakdown, error) {
	out := make(map[uuid.UUID]Breakdown, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := s.repo.HistoryMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uuid.UUID][]Transaction, len(userIDs))
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}

	now := s.now()
	for _, id := range userIDs {
		history := byUser[id]
		out[id] = BuildBreakdown(history, latestOf(history), now)
	}
	return out, nil
}

// ListTransactions returns paginated transaction history for a user
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListTransactions(ctx, userID, Pagination{Limit: limit, Offset: offset})
}

// SearchTransactions returns filtered transactions (admin use)
func (s *Service) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, int, error) {
	return s.repo.SearchTransactions(ctx, filters)
}

// Totals returns ledger volume for the admin dashboard.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.repo.Totals(ctx)
}

// ExpireBatches writes an EXPIRATION row for every expired batch that still
// holds credits so cached balances converge with available balances. Users
// are processed one transaction each; a failing user does not stop the run.
func (s *Service) ExpireBatches(ctx context.Context, now time.Time) (ExpiryReport, error) {
	var report ExpiryReport

	userIDs, err := s.repo.UsersWithExpiredBatches(ctx, now, expiryScanLimit)
	if err != nil {
		return report, err
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		batches, credits, err := s.expireUser(ctx, userID, now)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to expire credit batches")
			continue
		}
		if batches == 0 {
			continue
		}
		report.Users++
		report.Batches += batches
		report.Credits += credits
		s.NotifyBalance(ctx, userID)
	}

	return report, nil
}

func (s *Service) expireUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.repo.BeginTx(ctx2)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if err := s.repo.LockUser(ctx2, tx, userID); err != nil {
		return 0, 0, err
	}

	history, err := s.repo.History(ctx2, tx, userID)
	if err != nil {
		return 0, 0, err
	}

	debits := PlanExpirations(ReplayBatches(history, now))
	balance := latestOf(history)
	credits := 0
	for _, d := range debits {
		balance -= d.Amount
		row := Transaction{
			UserID:     userID,
			Amount:     -d.Amount,
			Type:       TxTypeExpiration,
			SourceType: d.Source,
			ExpiresAt:  d.ExpiresAt,
			Balance:    balance,
		}
		if err := s.repo.Insert(ctx2, tx, &row); err != nil {
			return 0, 0, err
		}
		credits += d.Amount
		metrics.CreditsExpiredTotal.WithLabelValues(string(d.Source)).Add(float64(d.Amount))
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return len(debits), credits, nil
}

// NotifyBalance pushes the current balance to the realtime notifier, if any.
func (s *Service) NotifyBalance(ctx context.Context, userID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	b, err := s.GetBreakdown(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to load balance for notification")
		return
	}
	s.notifier.BalanceChanged(ctx, userID, b.Balance, b.Available)
}

func latestOf(history []Transaction) int {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1].Balance
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
