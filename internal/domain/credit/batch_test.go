package credit

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func grant(amount int, source SourceType, exp *time.Time) Transaction {
	return Transaction{Amount: amount, Type: TxTypeBonus, SourceType: source, ExpiresAt: exp}
}

func usage(amount int, source SourceType, exp *time.Time) Transaction {
	return Transaction{Amount: -amount, Type: TxTypeUsage, SourceType: source, ExpiresAt: exp}
}

func TestReplayBatchesOrdersSoonestExpiryFirst(t *testing.T) {
	rows := []Transaction{
		grant(100, SourcePurchase, nil),
		grant(20, SourceSubscription, at(72*time.Hour)),
		grant(10, SourceFree, at(24*time.Hour)),
		grant(5, SourceEvent, nil),
	}

	batches := ReplayBatches(rows, now)
	require.Len(t, batches, 4)

	assert.Equal(t, SourceFree, batches[0].Source)
	assert.Equal(t, SourceSubscription, batches[1].Source)
	assert.Equal(t, SourceEvent, batches[2].Source, "non-expiring batches follow source priority")
	assert.Equal(t, SourcePurchase, batches[3].Source)
}

func TestReplayBatchesSumsRowsPerKey(t *testing.T) {
	exp := at(48 * time.Hour)
	sameInstant := exp.In(time.FixedZone("UTC+5", 5*3600))
	rows := []Transaction{
		grant(10, SourceFree, exp),
		usage(4, SourceFree, &sameInstant),
		grant(3, SourceFree, nil),
	}

	batches := ReplayBatches(rows, now)
	require.Len(t, batches, 2)
	assert.Equal(t, 6, batches[0].Remaining)
	assert.Nil(t, batches[1].ExpiresAt)
	assert.Equal(t, 3, batches[1].Remaining)
}

func TestReplayBatchesDropsDepletedBatches(t *testing.T) {
	exp := at(time.Hour)
	rows := []Transaction{grant(5, SourceFree, exp), usage(5, SourceFree, exp)}
	assert.Empty(t, ReplayBatches(rows, now))
}

func TestEqualExpiryBreaksTieBySource(t *testing.T) {
	exp := at(time.Hour)
	rows := []Transaction{
		grant(1, SourcePurchase, exp),
		grant(1, SourceSubscription, exp),
		grant(1, SourceFree, exp),
	}
	batches := ReplayBatches(rows, now)
	require.Len(t, batches, 3)
	assert.Equal(t, []SourceType{SourceFree, SourceSubscription, SourcePurchase},
		[]SourceType{batches[0].Source, batches[1].Source, batches[2].Source})
}

func TestBuildBreakdownExcludesExpired(t *testing.T) {
	rows := []Transaction{
		grant(10, SourceFree, at(-time.Hour)),
		grant(25, SourcePurchase, nil),
	}

	b := BuildBreakdown(rows, 35, now)
	assert.Equal(t, 35, b.Balance)
	assert.Equal(t, 25, b.Available)
	require.Len(t, b.Batches, 2)
	assert.True(t, b.Batches[0].Expired)
}

func TestExpiryBoundaryIsExclusive(t *testing.T) {
	rows := []Transaction{grant(10, SourceFree, at(0))}
	b := BuildBreakdown(rows, 10, now)
	assert.Equal(t, 0, b.Available, "a batch expiring exactly now is expired")
}

func TestPlanConsumptionSpansBatches(t *testing.T) {
	batches := ReplayBatches([]Transaction{
		grant(100, SourcePurchase, nil),
		grant(10, SourceFree, at(24*time.Hour)),
		grant(20, SourceSubscription, at(72*time.Hour)),
	}, now)

	debits, err := PlanConsumption(batches, 35)
	require.NoError(t, err)
	require.Len(t, debits, 3)
	assert.Equal(t, Debit{Source: SourceFree, ExpiresAt: batches[0].ExpiresAt, Amount: 10}, debits[0])
	assert.Equal(t, 20, debits[1].Amount)
	assert.Equal(t, SourcePurchase, debits[2].Source)
	assert.Equal(t, 5, debits[2].Amount)
}

func TestPlanConsumptionRejectsMoreThanAvailable(t *testing.T) {
	batches := ReplayBatches([]Transaction{
		grant(10, SourceFree, at(-time.Hour)),
		grant(5, SourcePurchase, nil),
	}, now)

	_, err := PlanConsumption(batches, 6)
	assert.ErrorIs(t, err, ErrInsufficientCredits, "expired credits must not be spendable")

	debits, err := PlanConsumption(batches, 5)
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.Equal(t, SourcePurchase, debits[0].Source)
}

func TestPlanConsumptionRejectsNonPositive(t *testing.T) {
	_, err := PlanConsumption(nil, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPlanExpirations(t *testing.T) {
	batches := ReplayBatches([]Transaction{
		grant(10, SourceFree, at(-2*time.Hour)),
		usage(3, SourceFree, at(-2*time.Hour)),
		grant(7, SourceEvent, at(time.Hour)),
		grant(9, SourcePurchase, nil),
	}, now)

	debits := PlanExpirations(batches)
	require.Len(t, debits, 1)
	assert.Equal(t, SourceFree, debits[0].Source)
	assert.Equal(t, 7, debits[0].Amount)
}

// Randomised check: consume succeeds iff amount <= available, and the plan
// drains batches strictly in consumption order.
func TestPlanConsumptionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sources := []SourceType{SourceFree, SourceEvent, SourceSubscription, SourcePurchase}

	for iter := 0; iter < 500; iter++ {
		var rows []Transaction
		for i := 0; i < 1+rng.Intn(6); i++ {
			var exp *time.Time
			if rng.Intn(3) > 0 {
				exp = at(time.Duration(rng.Intn(96)-24) * time.Hour)
			}
			rows = append(rows, grant(1+rng.Intn(50), sources[rng.Intn(len(sources))], exp))
		}

		batches := ReplayBatches(rows, now)
		available := 0
		for _, b := range batches {
			if !b.Expired {
				available += b.Remaining
			}
		}

		amount := 1 + rng.Intn(available+20)
		debits, err := PlanConsumption(batches, amount)
		if amount > available {
			require.ErrorIs(t, err, ErrInsufficientCredits)
			continue
		}
		require.NoError(t, err)

		total := 0
		spendable := make([]Batch, 0, len(batches))
		for _, b := range batches {
			if !b.Expired {
				spendable = append(spendable, b)
			}
		}
		for i, d := range debits {
			total += d.Amount
			require.Equal(t, spendable[i].Source, d.Source)
			if i < len(debits)-1 {
				require.Equal(t, spendable[i].Remaining, d.Amount, "every batch but the last must be fully drained")
			}
		}
		require.Equal(t, amount, total)
	}
}

// Balance after any grant equals balance before plus the grant.
func TestGrantBalanceProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	balance := 0
	var rows []Transaction
	for i := 0; i < 200; i++ {
		g := rng.Intn(1000)
		rows = append(rows, Transaction{Amount: g, Type: TxTypePurchase, SourceType: SourcePurchase, Balance: balance + g})
		require.Equal(t, balance+g, latestOf(rows))
		balance += g
	}
}
