package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathandjoy/joy-engine/joy"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// TRANSACTION LEDGER
// =============================================================================

func TestInsertTransaction_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := joy.Transaction{
		UserID:        "user-1",
		ActionType:    joy.ActionStopSubmission,
		PointsAwarded: 25,
		Kind:          joy.KindEarn,
		ReferenceID:   "stop-42",
		ReferenceType: "stop",
		Metadata:      joy.Metadata{"city": "Austin"},
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	stored, err := store.InsertTransaction(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID, "store assigns an id")

	txs, err := store.TransactionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)

	got := txs[0]
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, joy.ActionStopSubmission, got.ActionType)
	assert.Equal(t, joy.Points(25), got.PointsAwarded)
	assert.Equal(t, joy.KindEarn, got.Kind)
	assert.Equal(t, "stop-42", got.ReferenceID)
	assert.Equal(t, "stop", got.ReferenceType)
	assert.Equal(t, "Austin", got.Metadata.String("city"))
	assert.True(t, got.CreatedAt.Equal(in.CreatedAt))
}

func TestInsertTransaction_DuplicateIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := joy.Transaction{
		UserID:         "user-2",
		ActionType:     joy.ActionDailyLogin,
		PointsAwarded:  5,
		Kind:           joy.KindEarn,
		IdempotencyKey: "req-1",
	}

	_, err := store.InsertTransaction(ctx, tx)
	require.NoError(t, err)

	_, err = store.InsertTransaction(ctx, tx)
	assert.ErrorIs(t, err, joy.ErrDuplicateIdempotencyKey)

	txs, err := store.TransactionsByUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestInsertTransaction_EmptyIdempotencyKeysDoNotCollide(t *testing.T) {
	// Keyless transactions must never trip the UNIQUE constraint.
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.InsertTransaction(ctx, joy.Transaction{
			UserID:        "user-3",
			ActionType:    joy.ActionDailyLogin,
			PointsAwarded: 5,
			Kind:          joy.KindEarn,
		})
		require.NoError(t, err)
	}

	txs, err := store.TransactionsByUser(ctx, "user-3")
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestTransactionsInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{
		base.Add(-time.Hour), // before range
		base.Add(time.Hour),
		base.Add(2 * time.Hour),
		base.Add(48 * time.Hour), // after range
	} {
		_, err := store.InsertTransaction(ctx, joy.Transaction{
			UserID:        joy.UserID("user-4"),
			ActionType:    joy.ActionDailyLogin,
			PointsAwarded: joy.Points(i + 1),
			Kind:          joy.KindEarn,
			CreatedAt:     at,
		})
		require.NoError(t, err)
	}

	txs, err := store.TransactionsInRange(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, joy.Points(2), txs[0].PointsAwarded)
	assert.Equal(t, joy.Points(3), txs[1].PointsAwarded)
}

func TestTransactionsInRange_SubSecondBoundary(t *testing.T) {
	// GIVEN: Transactions with fractional timestamps inside the boundary
	//        seconds of a range, plus one exactly on the upper bound
	// WHEN: Querying with whole-second bounds (what the analytics API sends)
	// THEN: All of them are returned; stored-string comparison must agree
	//       with temporal order even when fractional seconds are present

	store := newTestStore(t)
	ctx := context.Background()
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{
		from.Add(500 * time.Millisecond), // fractional, inside the first second
		from.Add(30 * time.Minute),
		to, // exactly on the inclusive upper bound
	} {
		_, err := store.InsertTransaction(ctx, joy.Transaction{
			UserID:        "user-range",
			ActionType:    joy.ActionDailyLogin,
			PointsAwarded: joy.Points(i + 1),
			Kind:          joy.KindEarn,
			CreatedAt:     at,
		})
		require.NoError(t, err)
	}

	txs, err := store.TransactionsInRange(ctx, from, to)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestTransactionsByUser_MixedPrecisionOrdering(t *testing.T) {
	// Whole-second and fractional timestamps in the same second must come
	// back in temporal order, not string-format order.
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		id string
		at time.Time
	}{
		{"tx-whole", base},
		{"tx-frac", base.Add(250 * time.Millisecond)},
		{"tx-next", base.Add(time.Second)},
	} {
		_, err := store.InsertTransaction(ctx, joy.Transaction{
			ID:            joy.TransactionID(tc.id),
			UserID:        "user-order",
			ActionType:    joy.ActionDailyLogin,
			PointsAwarded: 5,
			Kind:          joy.KindEarn,
			CreatedAt:     tc.at,
		})
		require.NoError(t, err)
	}

	txs, err := store.TransactionsByUser(ctx, "user-order")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, joy.TransactionID("tx-whole"), txs[0].ID)
	assert.Equal(t, joy.TransactionID("tx-frac"), txs[1].ID)
	assert.Equal(t, joy.TransactionID("tx-next"), txs[2].ID)
}

func TestTransactionsByUser_CorruptMetadataSurfacesError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO joy_points_transactions
		(id, user_id, action_type, points_awarded, points_spent, tx_kind, metadata_json, created_at)
		VALUES ('tx-corrupt', 'user-bad', 'daily_login', 5, 0, 'earn', '{not json', ?)
	`, time.Now().UTC().Format(timeLayout))
	require.NoError(t, err)

	_, err = store.TransactionsByUser(ctx, "user-bad")
	assert.ErrorIs(t, err, joy.ErrStoreUnavailable)
}

// =============================================================================
// BALANCE CACHE
// =============================================================================

func TestBalance_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetBalance(ctx, "user-5")
	assert.ErrorIs(t, err, joy.ErrBalanceNotFound)

	b := joy.Balance{
		UserID:         "user-5",
		TotalPoints:    340,
		LifetimePoints: 340,
		TierLevel:      joy.TierJoySeeker,
		TierBenefits:   joy.TierBenefits(joy.TierJoySeeker),
		LastUpdated:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertBalance(ctx, b))

	got, err := store.GetBalance(ctx, "user-5")
	require.NoError(t, err)
	assert.Equal(t, joy.Points(340), got.TotalPoints)
	assert.Equal(t, joy.TierJoySeeker, got.TierLevel)
	assert.Equal(t, b.TierBenefits, got.TierBenefits)

	// Second upsert overwrites.
	b.TotalPoints = 0
	require.NoError(t, store.UpsertBalance(ctx, b))

	got, err = store.GetBalance(ctx, "user-5")
	require.NoError(t, err)
	assert.Equal(t, joy.Points(0), got.TotalPoints)
	assert.Equal(t, joy.Points(340), got.LifetimePoints)
}

func TestGetBalance_CorruptBenefitsSurfacesError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO joy_points_balances
		(user_id, total_points, lifetime_points, tier_level, tier_benefits_json, last_updated)
		VALUES ('user-bad-bal', 10, 10, 'Explorer', 'not an array', ?)
	`, time.Now().UTC().Format(timeLayout))
	require.NoError(t, err)

	_, err = store.GetBalance(ctx, "user-bad-bal")
	assert.ErrorIs(t, err, joy.ErrStoreUnavailable)
}

// =============================================================================
// WITHTX - Atomicity
// =============================================================================

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s joy.Store) error {
		_, err := s.InsertTransaction(ctx, joy.Transaction{
			UserID:        "user-6",
			ActionType:    joy.ActionOnboardingComplete,
			PointsAwarded: 50,
			Kind:          joy.KindEarn,
		})
		if err != nil {
			return err
		}
		return s.UpsertBalance(ctx, joy.Balance{
			UserID:         "user-6",
			TotalPoints:    50,
			LifetimePoints: 50,
			TierLevel:      joy.TierExplorer,
			TierBenefits:   joy.TierBenefits(joy.TierExplorer),
			LastUpdated:    time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	txs, err := store.TransactionsByUser(ctx, "user-6")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A unit of work that appends and then fails
	// WHEN: WithTx returns the error
	// THEN: Nothing is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s joy.Store) error {
		if _, err := s.InsertTransaction(ctx, joy.Transaction{
			UserID:        "user-7",
			ActionType:    joy.ActionOnboardingComplete,
			PointsAwarded: 50,
			Kind:          joy.KindEarn,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := store.TransactionsByUser(ctx, "user-7")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWithTx_ReadsOwnWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s joy.Store) error {
		if _, err := s.InsertTransaction(ctx, joy.Transaction{
			UserID:        "user-8",
			ActionType:    joy.ActionStopSubmission,
			PointsAwarded: 25,
			Kind:          joy.KindEarn,
		}); err != nil {
			return err
		}

		txs, err := s.TransactionsByUser(ctx, "user-8")
		if err != nil {
			return err
		}
		assert.Len(t, txs, 1, "uncommitted append is visible inside the transaction")
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// AFFILIATE TRACKING
// =============================================================================

func TestAffiliateTracking_InsertGetUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clickedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec, err := store.InsertAffiliateTracking(ctx, joy.AffiliateTracking{
		UserID:           "user-9",
		Provider:         "booking.com",
		OriginalURL:      "https://booking.com/h/1",
		AffiliateURL:     "https://booking.com/h/1?aid=pnj",
		ClickedAt:        clickedAt,
		CommissionStatus: joy.CommissionPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.TrackingID)

	got, err := store.GetAffiliateTracking(ctx, rec.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, joy.CommissionPending, got.CommissionStatus)
	assert.Nil(t, got.ConvertedAt)
	assert.True(t, got.ClickedAt.Equal(clickedAt))

	convertedAt := clickedAt.Add(2 * time.Hour)
	err = store.UpdateAffiliateTracking(ctx, rec.TrackingID, joy.ConversionUpdate{
		ConvertedAt:      convertedAt,
		CommissionAmount: decimal.RequireFromString("12.50"),
		JoyPointsAwarded: 62,
	})
	require.NoError(t, err)

	got, err = store.GetAffiliateTracking(ctx, rec.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, joy.CommissionConfirmed, got.CommissionStatus)
	require.NotNil(t, got.ConvertedAt)
	assert.True(t, got.ConvertedAt.Equal(convertedAt))
	assert.True(t, got.CommissionAmount.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, joy.Points(62), got.JoyPointsAwarded)
}

func TestUpdateAffiliateTracking_ConditionalOnPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.InsertAffiliateTracking(ctx, joy.AffiliateTracking{
		UserID:           "user-10",
		Provider:         "expedia",
		ClickedAt:        time.Now().UTC(),
		CommissionStatus: joy.CommissionPending,
	})
	require.NoError(t, err)

	update := joy.ConversionUpdate{
		ConvertedAt:      time.Now().UTC(),
		CommissionAmount: decimal.NewFromInt(10),
		JoyPointsAwarded: 50,
	}
	require.NoError(t, store.UpdateAffiliateTracking(ctx, rec.TrackingID, update))

	// Already confirmed: zero rows affected.
	err = store.UpdateAffiliateTracking(ctx, rec.TrackingID, update)
	assert.ErrorIs(t, err, joy.ErrUnknownTrackingID)

	// Unknown id: same surface.
	err = store.UpdateAffiliateTracking(ctx, "pnj_0_missing", update)
	assert.ErrorIs(t, err, joy.ErrUnknownTrackingID)
}

func TestGetAffiliateTracking_Unknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAffiliateTracking(context.Background(), "pnj_0_missing")
	assert.ErrorIs(t, err, joy.ErrUnknownTrackingID)
}

// =============================================================================
// END-TO-END THROUGH THE ENGINE
// =============================================================================

func TestEngine_OverSQLite(t *testing.T) {
	// The engine's award/spend cycle against the durable store, not the
	// memory double.

	store := newTestStore(t)
	engine := joy.NewEngine(store)
	ctx := context.Background()

	_, err := engine.AwardPoints(ctx, "user-11", joy.ActionReferralFirstBooking, joy.Metadata{})
	require.NoError(t, err)
	_, err = engine.AwardPoints(ctx, "user-11", joy.ActionReferralSignup, joy.Metadata{})
	require.NoError(t, err)

	b, err := engine.GetBalance(ctx, "user-11")
	require.NoError(t, err)
	// 250 (Explorer) + tier bonus 5 + floor(100*1.05)=105 at Joy Seeker.
	assert.Equal(t, joy.TierJoySeeker, b.TierLevel)
	assert.Equal(t, joy.Points(360), b.TotalPoints)

	_, err = engine.SpendPoints(ctx, "user-11", "rv_supplies_discount", 300)
	require.NoError(t, err)

	b, err = engine.GetBalance(ctx, "user-11")
	require.NoError(t, err)
	assert.Equal(t, b.LifetimePoints-300, b.TotalPoints)
	assert.Equal(t, joy.TierJoySeeker, b.TierLevel)
}
