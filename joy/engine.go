/*
engine.go - Points engine: the single entry point for balance changes

PURPOSE:
  Orchestrates awards and spends against the ledger. Every mutating path
  goes through here and through a single store transaction: append to the
  log, rebuild the balance from the full history, upsert the cache.

AWARD FLOW:
  1. Resolve base value (valuation.go)
  2. Apply the user's CURRENT tier multiplier, floor to integer
  3. Append an earn transaction
  4. Rebuild balance from the full history
  5. If the derived tier differs from the previously stored tier, append
     a tier_upgrade bonus transaction - once, never recursively

TIER-UPGRADE BONUS:
  The bonus runs through the same award path with an explicit depth guard
  (maxAwardDepth = 1): a bonus may never trigger another bonus, so the
  recursion is structurally bounded regardless of the bonus value. The
  tier LEVEL itself never lags - Rebuild derives it from lifetime points,
  so a multi-threshold jump lands on the right tier in one call; only the
  bonus transaction is capped at one per external award.

SPEND FLOW:
  Validated against the catalog (exists, available, exact price), then
  balance-check + append + rebuild inside one store transaction. The check
  and the append are serializable per user; a concurrent spend cannot
  overspend. Spends never touch the tier (tier follows lifetime EARNED
  points only).

CONCURRENCY:
  The engine holds no locks and no in-process state beyond its
  configuration. Safety under concurrent invocation for the same user
  comes entirely from TxStore.WithTx.

SEE ALSO:
  - ledger.go: The fold
  - catalog.go: Redemption validation source
  - store.go: Atomicity contract
*/
package joy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAwardDepth bounds the tier-upgrade bonus chain. Depth 0 is the
// external award; depth 1 is the bonus. The bonus may not recurse.
const maxAwardDepth = 1

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the single entry point for all balance-affecting operations.
// Construct with NewEngine; the zero value is not usable.
type Engine struct {
	store     TxStore
	valuation *ValuationTable
	catalog   *Catalog
	logger    *zap.Logger
	now       func() time.Time
	newID     func() TransactionID
}

type EngineOption func(*Engine)

// WithLogger attaches a structured logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithValuationTable overrides the standard valuation table.
func WithValuationTable(t *ValuationTable) EngineOption {
	return func(e *Engine) { e.valuation = t }
}

// WithCatalog overrides the standard redemption catalog.
func WithCatalog(c *Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// NewEngine constructs an engine over the given store. The store is the
// only required collaborator; valuation, catalog, clock, and logger have
// standard defaults.
func NewEngine(store TxStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		valuation: NewValuationTable(),
		catalog:   NewCatalog(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() TransactionID { return TransactionID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Valuation exposes the engine's valuation table (read-only use).
func (e *Engine) Valuation() *ValuationTable { return e.valuation }

// Catalog exposes the engine's redemption catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// =============================================================================
// AWARD
// =============================================================================

// AwardPoints awards points for an action. The base value comes from the
// valuation table (unknown actions soft-fail to a baseline), the user's
// current tier multiplier is applied and floored, and the resulting earn
// transaction is appended. The balance - including a possible tier
// transition and its bonus transaction - is settled in the same store
// transaction before AwardPoints returns.
func (e *Engine) AwardPoints(ctx context.Context, userID UserID, actionType ActionType, meta Metadata) (Transaction, error) {
	if userID == "" {
		return Transaction{}, ErrEmptyUserID
	}

	var out Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = e.award(ctx, s, userID, actionType, meta, 0)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// award is the depth-guarded award path shared by external awards and the
// tier-upgrade bonus. It runs inside an open store transaction.
func (e *Engine) award(ctx context.Context, s Store, userID UserID, actionType ActionType, meta Metadata, depth int) (Transaction, error) {
	if !e.valuation.Known(actionType) {
		e.logger.Debug("unknown action type, awarding baseline",
			zap.String("user_id", string(userID)),
			zap.String("action_type", string(actionType)))
	}
	base := e.valuation.Resolve(actionType, meta)

	// Current tier decides the multiplier. A user with no balance row is
	// a new user at the entry tier; the row is created by the rebuild.
	prev, err := s.GetBalance(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Transaction{}, err
		}
		prev = NewBalance(userID, e.now())
	}

	tx := Transaction{
		ID:             e.newID(),
		UserID:         userID,
		ActionType:     actionType,
		PointsAwarded:  ApplyMultiplier(base, prev.TierLevel),
		Kind:           KindEarn,
		ReferenceID:    meta.String(MetaReferenceID),
		ReferenceType:  meta.String(MetaReferenceType),
		IdempotencyKey: meta.String(MetaIdempotencyKey),
		Metadata:       meta,
		CreatedAt:      e.now(),
	}

	inserted, err := NewLedger(s).Append(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}

	next, err := e.settleBalance(ctx, s, userID)
	if err != nil {
		return Transaction{}, err
	}

	if next.TierLevel != prev.TierLevel && depth < maxAwardDepth {
		e.logger.Info("tier upgrade",
			zap.String("user_id", string(userID)),
			zap.String("old_tier", string(prev.TierLevel)),
			zap.String("new_tier", string(next.TierLevel)),
			zap.Int64("lifetime_points", int64(next.LifetimePoints)))

		bonusMeta := Metadata{
			"old_tier": string(prev.TierLevel),
			"new_tier": string(next.TierLevel),
			"bonus":    true,
		}
		if _, err := e.award(ctx, s, userID, ActionTierUpgrade, bonusMeta, depth+1); err != nil {
			return Transaction{}, err
		}
	}

	return inserted, nil
}

// settleBalance rebuilds the balance from the ledger and writes the cache.
func (e *Engine) settleBalance(ctx context.Context, s Store, userID UserID) (Balance, error) {
	b, err := NewLedger(s).Rebuild(ctx, userID, e.now())
	if err != nil {
		return Balance{}, err
	}
	if err := s.UpsertBalance(ctx, b); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// =============================================================================
// SPEND
// =============================================================================

// SpendPoints redeems pointsToSpend against a catalog option. The option
// must exist, be available, and cost exactly pointsToSpend; the user must
// hold at least that many spendable points. Balance check, append, and
// cache update are one store transaction - a concurrent spend on the same
// user cannot overspend.
func (e *Engine) SpendPoints(ctx context.Context, userID UserID, redemptionID string, pointsToSpend Points) (Transaction, error) {
	if userID == "" {
		return Transaction{}, ErrEmptyUserID
	}

	option, err := e.catalog.Option(redemptionID)
	if err != nil {
		return Transaction{}, err
	}
	if !option.Available {
		return Transaction{}, &InvalidRedemptionError{RedemptionID: redemptionID, Reason: "unavailable"}
	}
	if option.PointsRequired != pointsToSpend {
		return Transaction{}, &InvalidRedemptionError{
			RedemptionID: redemptionID,
			Reason:       "price_mismatch",
			Expected:     option.PointsRequired,
			Requested:    pointsToSpend,
		}
	}

	var out Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		ledger := NewLedger(s)

		// Authoritative check: fold the log, not the cache.
		current, err := ledger.Rebuild(ctx, userID, e.now())
		if err != nil {
			return err
		}
		if current.TotalPoints < pointsToSpend {
			return &InsufficientPointsError{
				UserID:    userID,
				Available: current.TotalPoints,
				Requested: pointsToSpend,
			}
		}

		tx := Transaction{
			ID:            e.newID(),
			UserID:        userID,
			ActionType:    ActionRedemption,
			PointsSpent:   pointsToSpend,
			Kind:          KindSpend,
			ReferenceID:   option.ID,
			ReferenceType: "redemption",
			Metadata: Metadata{
				"redemption_id":   option.ID,
				"redemption_name": option.Name,
			},
			CreatedAt: e.now(),
		}

		out, err = ledger.Append(ctx, tx)
		if err != nil {
			return err
		}

		// No tier check on spend: tier follows lifetime earned points.
		_, err = e.settleBalance(ctx, s, userID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	e.logger.Info("points spent",
		zap.String("user_id", string(userID)),
		zap.String("redemption_id", redemptionID),
		zap.Int64("points", int64(pointsToSpend)))
	return out, nil
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// GetBalance returns the cached balance. A user with no history gets a
// zero balance at the entry tier; the read path persists nothing.
func (e *Engine) GetBalance(ctx context.Context, userID UserID) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrEmptyUserID
	}
	b, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return NewBalance(userID, e.now()), nil
		}
		return Balance{}, err
	}
	return b, nil
}

// GetTransactionHistory returns the user's transactions, newest first.
func (e *Engine) GetTransactionHistory(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	return NewLedger(e.store).History(ctx, userID, limit)
}

// ListAvailableRedemptions returns the catalog entries the user can afford
// at their current balance and tier.
func (e *Engine) ListAvailableRedemptions(ctx context.Context, userID UserID) ([]RedemptionOption, error) {
	b, err := e.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.catalog.AvailableFor(b), nil
}
