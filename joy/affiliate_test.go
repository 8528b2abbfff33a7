package joy_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathandjoy/joy-engine/joy"
	"github.com/pathandjoy/joy-engine/joy/store"
)

// =============================================================================
// AFFILIATE TRACKER TESTS
// =============================================================================

func newTestTracker(t *testing.T) (*joy.Tracker, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return joy.NewTracker(mem, joy.WithTrackerClock(newTestClock().Now)), mem
}

func TestNewTrackingID_Format(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := joy.NewTrackingID(at)

	parts := strings.Split(id, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "pnj", parts[0])
	assert.Equal(t, "1748779200000", parts[1], "millisecond timestamp component")
	assert.Len(t, parts[2], 9, "random component")

	assert.NotEqual(t, id, joy.NewTrackingID(at), "same instant, distinct ids")
}

func TestTrackClick(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.TrackClick(ctx, "user-1", "booking.com",
		"https://booking.com/hotel/x", "https://booking.com/hotel/x?aid=pnj")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rec.TrackingID, "pnj_"))
	assert.Equal(t, joy.CommissionPending, rec.CommissionStatus)
	assert.Nil(t, rec.ConvertedAt)
	assert.False(t, rec.ClickedAt.IsZero())
}

func TestTrackClick_Validation(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.TrackClick(ctx, "", "booking.com", "", "")
	assert.ErrorIs(t, err, joy.ErrEmptyUserID)

	_, err = tracker.TrackClick(ctx, "user-1", "", "", "")
	assert.Error(t, err)
}

func TestRecordConversion_HappyPath(t *testing.T) {
	// GIVEN: A pending click record
	// WHEN: The conversion is reported with a commission and a point value
	// THEN: The record is confirmed exactly once, stamped with both

	tracker, mem := newTestTracker(t)
	ctx := context.Background()

	click, err := tracker.TrackClick(ctx, "user-2", "expedia", "", "")
	require.NoError(t, err)

	rec, err := tracker.RecordConversion(ctx, click.TrackingID, decimal.RequireFromString("12.50"), 62)
	require.NoError(t, err)

	assert.Equal(t, joy.CommissionConfirmed, rec.CommissionStatus)
	require.NotNil(t, rec.ConvertedAt)
	assert.True(t, rec.CommissionAmount.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, joy.Points(62), rec.JoyPointsAwarded)

	// The stored record matches what was returned.
	stored, err := mem.GetAffiliateTracking(ctx, click.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, joy.CommissionConfirmed, stored.CommissionStatus)
}

func TestRecordConversion_UnknownTrackingID(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.RecordConversion(context.Background(), "pnj_0_nonexist", decimal.NewFromInt(1), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, joy.ErrUnknownTrackingID)
	assert.True(t, joy.IsNotFound(err))

	var te *joy.TrackingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "unknown", te.Reason)
}

func TestRecordConversion_DoubleConversionRejected(t *testing.T) {
	// GIVEN: A record already confirmed
	// WHEN: A second conversion arrives for the same tracking id
	// THEN: It is rejected, and the first conversion's values survive

	tracker, mem := newTestTracker(t)
	ctx := context.Background()

	click, err := tracker.TrackClick(ctx, "user-3", "booking.com", "", "")
	require.NoError(t, err)

	_, err = tracker.RecordConversion(ctx, click.TrackingID, decimal.NewFromInt(10), 50)
	require.NoError(t, err)

	_, err = tracker.RecordConversion(ctx, click.TrackingID, decimal.NewFromInt(99), 495)
	require.Error(t, err)

	var te *joy.TrackingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "already_finalized", te.Reason)

	stored, err := mem.GetAffiliateTracking(ctx, click.TrackingID)
	require.NoError(t, err)
	assert.True(t, stored.CommissionAmount.Equal(decimal.NewFromInt(10)), "first conversion wins")
	assert.Equal(t, joy.Points(50), stored.JoyPointsAwarded)
}

func TestRecordConversion_NegativeCommission(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.RecordConversion(context.Background(), "pnj_0_whatever", decimal.NewFromInt(-5), 10)
	require.Error(t, err)

	var ce *joy.CommissionError
	assert.ErrorAs(t, err, &ce)
}
