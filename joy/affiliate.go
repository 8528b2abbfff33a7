/*
affiliate.go - Affiliate attribution tracker

PURPOSE:
  Records click and conversion events that tie a user to an external
  booking provider. A record is created pending at click time, transitions
  to confirmed exactly once when a conversion is reported, and reaches
  paid externally (out of scope here).

TRACKING IDS:
  Generated at click time from a millisecond timestamp plus a random
  component, so ids are unique across concurrent clicks and sortable by
  time: pnj_<unix-millis>_<rand>.

DECOUPLING:
  The tracker never awards points. A conversion carries the point value
  priced by the attribution pipeline; the caller passes it to the points
  engine (ActionAffiliateConversion) after RecordConversion succeeds.

FAILURE MODE:
  A conversion against an unknown or already-confirmed tracking id is a
  no-op-with-error (TrackingError wrapping ErrUnknownTrackingID), logged,
  never a silent overwrite. The store-level update is conditional on
  status=pending, so a lost race surfaces the same way.

SEE ALSO:
  - store.go: AffiliateStore contract
  - engine.go: The award the caller triggers after conversion
*/
package joy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// AFFILIATE TRACKING RECORD
// =============================================================================

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionConfirmed CommissionStatus = "confirmed"
	CommissionPaid      CommissionStatus = "paid" // terminal, set externally
)

// AffiliateTracking links a user's click on a partner link to an eventual
// conversion and commission.
type AffiliateTracking struct {
	UserID       UserID
	Provider     string
	TrackingID   string
	OriginalURL  string
	AffiliateURL string
	ClickedAt    time.Time

	// Set on conversion.
	ConvertedAt      *time.Time
	CommissionAmount decimal.Decimal
	CommissionStatus CommissionStatus
	JoyPointsAwarded Points
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker records affiliate clicks and conversions.
type Tracker struct {
	store  AffiliateStore
	logger *zap.Logger
	now    func() time.Time
}

type TrackerOption func(*Tracker)

// WithTrackerLogger attaches a structured logger.
func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithTrackerClock overrides the time source (tests).
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store AffiliateStore, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTrackingID generates a fresh tracking id: a time-based component for
// ordering plus a random component for collision resistance.
func NewTrackingID(at time.Time) string {
	rand := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("pnj_%d_%s", at.UnixMilli(), rand)
}

// TrackClick creates a pending tracking record for a partner-link click.
func (t *Tracker) TrackClick(ctx context.Context, userID UserID, provider, originalURL, affiliateURL string) (AffiliateTracking, error) {
	if userID == "" {
		return AffiliateTracking{}, ErrEmptyUserID
	}
	if provider == "" {
		return AffiliateTracking{}, errors.New("empty affiliate provider")
	}

	now := t.now()
	rec := AffiliateTracking{
		UserID:           userID,
		Provider:         provider,
		TrackingID:       NewTrackingID(now),
		OriginalURL:      originalURL,
		AffiliateURL:     affiliateURL,
		ClickedAt:        now,
		CommissionStatus: CommissionPending,
	}

	stored, err := t.store.InsertAffiliateTracking(ctx, rec)
	if err != nil {
		return AffiliateTracking{}, err
	}

	t.logger.Debug("affiliate click tracked",
		zap.String("user_id", string(userID)),
		zap.String("provider", provider),
		zap.String("tracking_id", stored.TrackingID))
	return stored, nil
}

// RecordConversion transitions a pending record to confirmed, stamping the
// conversion time, commission, and the point value priced for this
// conversion. It does NOT award points: the caller feeds the returned
// record's JoyPointsAwarded to the points engine.
func (t *Tracker) RecordConversion(ctx context.Context, trackingID string, commission decimal.Decimal, joyPoints Points) (AffiliateTracking, error) {
	if commission.IsNegative() {
		return AffiliateTracking{}, &CommissionError{TrackingID: trackingID, Amount: commission}
	}

	rec, err := t.store.GetAffiliateTracking(ctx, trackingID)
	if err != nil {
		if errors.Is(err, ErrUnknownTrackingID) {
			t.logger.Warn("conversion for unknown tracking id",
				zap.String("tracking_id", trackingID))
			return AffiliateTracking{}, &TrackingError{TrackingID: trackingID, Reason: "unknown"}
		}
		return AffiliateTracking{}, err
	}
	if rec.CommissionStatus != CommissionPending {
		t.logger.Warn("conversion for finalized tracking id",
			zap.String("tracking_id", trackingID),
			zap.String("status", string(rec.CommissionStatus)))
		return AffiliateTracking{}, &TrackingError{TrackingID: trackingID, Reason: "already_finalized"}
	}

	convertedAt := t.now()
	update := ConversionUpdate{
		ConvertedAt:      convertedAt,
		CommissionAmount: commission,
		JoyPointsAwarded: joyPoints,
	}
	if err := t.store.UpdateAffiliateTracking(ctx, trackingID, update); err != nil {
		// Conditional write failed: a concurrent conversion won the race.
		if errors.Is(err, ErrUnknownTrackingID) {
			return AffiliateTracking{}, &TrackingError{TrackingID: trackingID, Reason: "already_finalized"}
		}
		return AffiliateTracking{}, err
	}

	rec.ConvertedAt = &convertedAt
	rec.CommissionAmount = commission
	rec.CommissionStatus = CommissionConfirmed
	rec.JoyPointsAwarded = joyPoints

	t.logger.Info("affiliate conversion recorded",
		zap.String("user_id", string(rec.UserID)),
		zap.String("tracking_id", trackingID),
		zap.String("commission", commission.String()),
		zap.Int64("joy_points", int64(joyPoints)))
	return rec, nil
}
