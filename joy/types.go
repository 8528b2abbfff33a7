/*
Package joy provides the core Joy Points engine.

PURPOSE:
  This package contains the domain types and algorithms for the Joy Points
  reward system: an append-only transaction ledger, a derived balance
  projection, tier progression, point valuation, redemptions, and affiliate
  attribution.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: An integer quantity of Joy Points (never fractional)
  - Transaction: An immutable ledger entry recording an earn or a spend
  - Balance: The derived per-user projection of the transaction history
  - Metadata: Open-ended key/value payload attached to transactions

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never updated or deleted
  2. Derivation: Balance is always a fold over the transaction history
  3. Integer points: Multipliers and rates go through decimal.Decimal and
     are floored before persistence - fractional points never hit the ledger
  4. Auditability: Every transaction carries action type, reference, metadata

USAGE:
  tx := joy.Transaction{
      UserID:        "user-123",
      ActionType:    joy.ActionStopSubmission,
      PointsAwarded: 25,
      Kind:          joy.KindEarn,
  }

SEE ALSO:
  - valuation.go: Action to point-value resolution
  - tier.go: Tier thresholds, multipliers, benefits
  - ledger.go: Balance reconstruction from transactions
  - engine.go: Award/spend orchestration
*/
package joy

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POINTS - Integer reward currency
// =============================================================================

// Points is a quantity of Joy Points. Always a whole number; any fractional
// computation (tier multipliers, booking percentages) is floored before a
// Points value is produced.
type Points int64

// PointsFromDecimal floors a decimal quantity to whole points.
// Negative results clamp to zero: the ledger never records negative awards.
func PointsFromDecimal(d decimal.Decimal) Points {
	p := Points(d.Floor().IntPart())
	if p < 0 {
		return 0
	}
	return p
}

// Decimal converts points to a decimal for multiplier arithmetic.
func (p Points) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(p))
}

// MustParseDecimal parses a decimal constant, returning zero on failure.
// Used for rate/multiplier tables where the inputs are literals.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string
type ActionType string

// =============================================================================
// METADATA - Free-form payload carried on transactions
// =============================================================================

// Metadata is the open-ended key/value payload attached to a transaction.
// Well-known keys read by the engine:
//
//	"amount"          monetary amount for proportional actions
//	"reference_id"    id of the entity that triggered the transaction
//	"reference_type"  kind of that entity (e.g. "stop", "redemption")
//	"idempotency_key" optional retry-safety key
type Metadata map[string]any

const (
	MetaAmount         = "amount"
	MetaReferenceID    = "reference_id"
	MetaReferenceType  = "reference_type"
	MetaIdempotencyKey = "idempotency_key"
)

// Amount extracts the monetary amount for proportional valuations.
// Missing or unparseable amounts resolve to zero (soft-fail, like an
// unknown action type).
func (m Metadata) Amount() decimal.Decimal {
	v, ok := m[MetaAmount]
	if !ok {
		return decimal.Zero
	}
	switch a := v.(type) {
	case decimal.Decimal:
		return a
	case float64:
		return decimal.NewFromFloat(a)
	case int:
		return decimal.NewFromInt(int64(a))
	case int64:
		return decimal.NewFromInt(a)
	case json.Number:
		d, err := decimal.NewFromString(a.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// String extracts a string-valued key, or "" when absent.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionKind string

const (
	KindEarn  TransactionKind = "earn"
	KindSpend TransactionKind = "spend"
)

// Transaction records a single balance-affecting event. Once appended to the
// ledger it is never updated or deleted; corrections would be new entries.
type Transaction struct {
	ID         TransactionID
	UserID     UserID
	ActionType ActionType

	// Exactly one of these is non-zero depending on Kind.
	PointsAwarded Points
	PointsSpent   Points

	Kind TransactionKind

	// Back-reference to the triggering entity. Lookup aid only, not an
	// ownership relation.
	ReferenceID   string
	ReferenceType string

	// IdempotencyKey, when set, makes retried appends rejectable.
	IdempotencyKey string

	Metadata  Metadata
	CreatedAt time.Time
}

// Net returns the signed effect of the transaction on the spendable balance.
func (tx Transaction) Net() Points {
	return tx.PointsAwarded - tx.PointsSpent
}

// =============================================================================
// BALANCE - Derived projection, one per user
// =============================================================================

// Balance is the materialized fold of a user's transaction history.
// It is a cache, not a source of truth: every field must be reconstructible
// from the ledger alone (see Ledger.Rebuild).
//
// Invariants:
//   - TotalPoints    == sum(PointsAwarded) - sum(PointsSpent)
//   - LifetimePoints == sum(PointsAwarded), monotonically non-decreasing
//   - TierLevel      == TierFor(LifetimePoints)
type Balance struct {
	UserID         UserID
	TotalPoints    Points
	LifetimePoints Points
	TierLevel      TierName
	TierBenefits   []string
	LastUpdated    time.Time
}

// NewBalance returns the initial balance for a user who has no transactions:
// zero points at the entry tier.
func NewBalance(userID UserID, now time.Time) Balance {
	return Balance{
		UserID:         userID,
		TotalPoints:    0,
		LifetimePoints: 0,
		TierLevel:      TierExplorer,
		TierBenefits:   TierBenefits(TierExplorer),
		LastUpdated:    now,
	}
}
