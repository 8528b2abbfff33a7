/*
errors.go - Centralized error types for the Joy Points engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; structured variants carry the
  context needed for a useful API response.

ERROR CATEGORIES:
  1. Spend errors      - Insufficient balance, invalid redemption
  2. Affiliate errors  - Unknown or already-finalized tracking records
  3. Store errors      - Persistence failures, duplicate idempotency keys

SOFT FAILURES:
  An unknown action type is NOT an error: valuation falls back to a baseline
  value (see valuation.go). The reward system stays permissive on earn and
  strict on spend.

SEE ALSO:
  - engine.go: Produces spend errors
  - affiliate.go: Produces tracking errors
  - store.go: Store contract referencing the store errors
*/
package joy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientPoints is returned when a spend exceeds the user's
	// spendable balance. No mutation occurs.
	ErrInsufficientPoints = errors.New("insufficient joy points")

	// ErrInvalidRedemption is returned for an unknown redemption id, an
	// unavailable option, or a price mismatch. No mutation occurs.
	ErrInvalidRedemption = errors.New("invalid redemption option")

	// ErrUnknownTrackingID is returned when a conversion targets a
	// nonexistent or already-finalized affiliate tracking record.
	ErrUnknownTrackingID = errors.New("unknown affiliate tracking id")

	// ErrBalanceNotFound is returned by stores when no balance row exists
	// for a user. The engine treats this as "new user at the entry tier".
	ErrBalanceNotFound = errors.New("balance not found")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrStoreUnavailable is returned when the durable store fails an
	// operation. The engine never retries internally and never applies a
	// partial update.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmptyUserID is returned when an operation is invoked without a
	// user identifier.
	ErrEmptyUserID = errors.New("empty user id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError provides details about a balance shortage.
type InsufficientPointsError struct {
	UserID    UserID
	Available Points
	Requested Points
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient joy points: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// InvalidRedemptionError explains why a redemption was rejected.
type InvalidRedemptionError struct {
	RedemptionID string
	Reason       string // "not_found", "unavailable", "price_mismatch"
	Expected     Points // catalog price, for price_mismatch
	Requested    Points
}

func (e *InvalidRedemptionError) Error() string {
	if e.Reason == "price_mismatch" {
		return fmt.Sprintf("invalid redemption %q: price_mismatch (catalog %d, requested %d)",
			e.RedemptionID, e.Expected, e.Requested)
	}
	return fmt.Sprintf("invalid redemption %q: %s", e.RedemptionID, e.Reason)
}

func (e *InvalidRedemptionError) Unwrap() error {
	return ErrInvalidRedemption
}

// TrackingError explains why a conversion could not be recorded.
type TrackingError struct {
	TrackingID string
	Reason     string // "unknown", "already_finalized"
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("affiliate tracking %q: %s", e.TrackingID, e.Reason)
}

func (e *TrackingError) Unwrap() error {
	return ErrUnknownTrackingID
}

// CommissionError reports an invalid commission amount on conversion.
type CommissionError struct {
	TrackingID string
	Amount     decimal.Decimal
}

func (e *CommissionError) Error() string {
	return fmt.Sprintf("affiliate tracking %q: negative commission %s", e.TrackingID, e.Amount)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInvalidRedemption) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrEmptyUserID)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownTrackingID) ||
		errors.Is(err, ErrBalanceNotFound)
}
