package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathandjoy/joy-engine/joy"
)

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

func TestSnapshotRestore_CoversAllState(t *testing.T) {
	// GIVEN: A store with a transaction, a balance, and an affiliate record
	// WHEN: State is mutated after a snapshot and then restored
	// THEN: Every map rolls back, affiliates included

	m := NewMemory()
	ctx := context.Background()

	_, err := m.InsertTransaction(ctx, joy.Transaction{
		UserID:         "user-1",
		ActionType:     joy.ActionDailyLogin,
		PointsAwarded:  5,
		Kind:           joy.KindEarn,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.NoError(t, m.UpsertBalance(ctx, joy.Balance{UserID: "user-1", TotalPoints: 5, LifetimePoints: 5, TierLevel: joy.TierExplorer}))
	rec, err := m.InsertAffiliateTracking(ctx, joy.AffiliateTracking{
		UserID:           "user-1",
		Provider:         "booking.com",
		ClickedAt:        time.Now().UTC(),
		CommissionStatus: joy.CommissionPending,
	})
	require.NoError(t, err)

	snap := m.snapshot()

	// Mutate everything.
	_, err = m.insertLocked(joy.Transaction{UserID: "user-1", ActionType: joy.ActionSocialShare, PointsAwarded: 10, Kind: joy.KindEarn, IdempotencyKey: "key-2"})
	require.NoError(t, err)
	m.upsertBalanceLocked(joy.Balance{UserID: "user-1", TotalPoints: 15, LifetimePoints: 15, TierLevel: joy.TierExplorer})
	require.NoError(t, m.UpdateAffiliateTracking(ctx, rec.TrackingID, joy.ConversionUpdate{
		ConvertedAt:      time.Now().UTC(),
		CommissionAmount: decimal.NewFromInt(10),
		JoyPointsAwarded: 50,
	}))

	m.restore(snap)

	txs, err := m.TransactionsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.False(t, m.idempotency["key-2"], "idempotency entry rolls back")

	b, err := m.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, joy.Points(5), b.TotalPoints)

	got, err := m.GetAffiliateTracking(ctx, rec.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, joy.CommissionPending, got.CommissionStatus, "affiliate state rolls back")
	assert.Nil(t, got.ConvertedAt)
}
