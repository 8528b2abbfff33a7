/*
store.go - Persistence interfaces for the ledger and related data

PURPOSE:
  Defines the contract between the engine and the durable store. Any
  relational, document, or key-value backend can implement it; this repo
  ships SQLite (store/sqlite) and in-memory (joy/store) implementations.

APPEND-ONLY CONTRACT:
  The transaction log is append-only. The interface exposes
  InsertTransaction and queries; there is NO update or delete on
  transactions. The balance table is a derived cache and is the only
  row the engine ever overwrites (UpsertBalance).

ATOMICITY:
  TxStore.WithTx scopes a read-check-append-recompute sequence to a single
  store transaction. SpendPoints requires this (balance check and append
  must be serializable per user, or a race permits overspending);
  AwardPoints uses it so the tier-upgrade bonus lands in the same unit of
  work as the triggering award.

ID ASSIGNMENT:
  InsertTransaction assigns a unique id and a creation timestamp when the
  caller left them empty, and returns the stored transaction.

SEE ALSO:
  - joy/store/memory.go: In-memory implementation for tests
  - store/sqlite/sqlite.go: Durable implementation
  - ledger.go: Balance fold over these queries
*/
package joy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Transaction log + balance cache
// =============================================================================

// Store persists transactions (append-only) and the derived balance cache.
type Store interface {
	// InsertTransaction appends a transaction, assigning ID/CreatedAt if
	// absent. Fails with ErrDuplicateIdempotencyKey when the transaction
	// carries a key that already exists.
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// TransactionsByUser returns the full history for a user.
	// Order is unspecified; callers sort when order matters.
	TransactionsByUser(ctx context.Context, userID UserID) ([]Transaction, error)

	// TransactionsInRange returns all transactions (across users) created
	// in [from, to]. Used by analytics.
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]Transaction, error)

	// GetBalance returns the cached balance, or ErrBalanceNotFound.
	GetBalance(ctx context.Context, userID UserID) (Balance, error)

	// UpsertBalance overwrites the balance cache row for a user.
	UpsertBalance(ctx context.Context, b Balance) error
}

// TxStore extends Store with transaction scoping.
type TxStore interface {
	Store

	// WithTx executes fn within a store transaction. The Store passed to
	// fn reads its own uncommitted writes. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AFFILIATE STORE - Click/conversion attribution records
// =============================================================================

// ConversionUpdate is the one-shot mutation applied when a pending
// tracking record converts.
type ConversionUpdate struct {
	ConvertedAt      time.Time
	CommissionAmount decimal.Decimal
	JoyPointsAwarded Points
}

// AffiliateStore persists affiliate tracking records. A record is written
// once at click time and mutated exactly once on conversion; `paid` is a
// terminal state reached externally.
type AffiliateStore interface {
	// InsertAffiliateTracking stores a new pending record.
	InsertAffiliateTracking(ctx context.Context, rec AffiliateTracking) (AffiliateTracking, error)

	// GetAffiliateTracking returns a record by tracking id, or
	// ErrUnknownTrackingID.
	GetAffiliateTracking(ctx context.Context, trackingID string) (AffiliateTracking, error)

	// UpdateAffiliateTracking applies the conversion update to a PENDING
	// record. A conditional write: when no pending record matches the id
	// (unknown, or finalized by a concurrent conversion) it fails with
	// ErrUnknownTrackingID and mutates nothing.
	UpdateAffiliateTracking(ctx context.Context, trackingID string, update ConversionUpdate) error
}
