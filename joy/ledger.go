/*
ledger.go - Append-only transaction log and balance reconstruction

PURPOSE:
  The ledger is the sole source of truth for balances. Every award and
  spend is a transaction append; the balance row is always recomputed as
  a fold over the full history, never patched incrementally.

WHY FULL REBUILD INSTEAD OF INCREMENTAL UPDATE?
  - The cache can never drift from the log, even under interleaved or
    partial writes
  - Tier level is re-derived from lifetime points on every rebuild, so it
    is exact after any jump, however large
  - "Why is balance X?" is always answerable from the transaction history

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No update, no delete on transactions. Ever.
  2. TotalPoints    == sum(PointsAwarded) - sum(PointsSpent)
  3. LifetimePoints == sum(PointsAwarded)  (monotonic)
  4. TierLevel      == TierFor(LifetimePoints)

SEE ALSO:
  - store.go: Persistence contract
  - engine.go: Calls Rebuild after every append
*/
package joy

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// LEDGER - Thin domain wrapper over a Store
// =============================================================================

// Ledger wraps a Store with the fold and ordering rules of the points
// domain. It holds no state of its own and is cheap to construct, which
// lets the engine rebuild one inside a store transaction.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Append writes a transaction to the log and returns the stored copy
// (with store-assigned id/timestamp when the caller left them empty).
func (l *Ledger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	return l.store.InsertTransaction(ctx, tx)
}

// History returns a user's transactions, newest first, capped at limit.
// A non-positive limit returns the default page of 50.
func (l *Ledger) History(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	txs, err := l.store.TransactionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Rebuild folds the full transaction history for a user into a Balance.
// This is the authoritative update path for the balance cache: earn sums
// into both totals, spend subtracts from the spendable total only, and
// the tier is re-derived from lifetime points.
func (l *Ledger) Rebuild(ctx context.Context, userID UserID, asOf time.Time) (Balance, error) {
	txs, err := l.store.TransactionsByUser(ctx, userID)
	if err != nil {
		return Balance{}, err
	}

	var earned, spent Points
	for _, tx := range txs {
		earned += tx.PointsAwarded
		spent += tx.PointsSpent
	}

	tier := TierFor(earned)
	return Balance{
		UserID:         userID,
		TotalPoints:    earned - spent,
		LifetimePoints: earned,
		TierLevel:      tier,
		TierBenefits:   TierBenefits(tier),
		LastUpdated:    asOf,
	}, nil
}
