/*
valuation.go - Action valuation table

PURPOSE:
  Maps an action type to a non-negative point value. This is the single
  place where "what is a stop submission worth?" is answered.

TWO VALUATION SHAPES:
  Fixed:        A constant point value (stop_submission -> 25)
  Proportional: A rate applied to a monetary amount in the transaction
                metadata (hotel_booking -> floor(amount * 0.02))

  The shape is a closed tagged variant, not a value-or-function lookup:
  resolution is a switch over the kind, with no runtime type inspection.

SOFT FAILURE:
  Unknown action types resolve to a minimal baseline value (5 points)
  instead of erroring. The reward system favors always awarding something
  over rejecting an unrecognized but plausible action.

PURITY:
  Resolve has no side effects and no state beyond the table itself. Every
  listed action is testable by direct input/output assertion.

SEE ALSO:
  - engine.go: Applies the tier multiplier on top of the base value
  - tier.go: Multiplier table
*/
package joy

import "github.com/shopspring/decimal"

// =============================================================================
// ACTION TYPES
// =============================================================================

const (
	// User contributions
	ActionStopSubmission       ActionType = "stop_submission"
	ActionPhotoUpload          ActionType = "photo_upload"
	ActionReviewSubmission     ActionType = "review_submission"
	ActionLocationVerification ActionType = "location_verification"

	// Social engagement
	ActionReferralSignup       ActionType = "referral_signup"
	ActionReferralFirstBooking ActionType = "referral_first_booking"
	ActionSocialShare          ActionType = "social_share"

	// Bookings and purchases (proportional to amount)
	ActionHotelBooking      ActionType = "hotel_booking"
	ActionCampgroundBooking ActionType = "campground_booking"
	ActionTicketPurchase    ActionType = "ticket_purchase"

	// Sponsor interactions
	ActionSponsorVisit    ActionType = "sponsor_visit"
	ActionSponsorCheckin  ActionType = "sponsor_checkin"
	ActionSponsorPurchase ActionType = "sponsor_purchase"

	// App engagement
	ActionDailyLogin         ActionType = "daily_login"
	ActionOnboardingComplete ActionType = "onboarding_complete"
	ActionProfileComplete    ActionType = "profile_complete"
	ActionFirstTripPlan      ActionType = "first_trip_plan"

	// Rayne's Way (shade-safe routing)
	ActionRaynesWayRoute   ActionType = "raynes_way_route"
	ActionShadeReport      ActionType = "shade_report"
	ActionSunSafetyCheckin ActionType = "sun_safety_checkin"

	// System actions
	ActionTierUpgrade         ActionType = "tier_upgrade"
	ActionRedemption          ActionType = "redemption"
	ActionAffiliateConversion ActionType = "affiliate_conversion"
)

// =============================================================================
// VALUATION - Tagged variant: fixed value or proportional rate
// =============================================================================

type ValuationKind int

const (
	ValuationFixed ValuationKind = iota
	ValuationProportional
)

// Valuation is a closed variant: either a fixed point value or a rate
// applied to the metadata amount.
type Valuation struct {
	Kind  ValuationKind
	Fixed Points
	Rate  decimal.Decimal
}

func FixedValue(points Points) Valuation {
	return Valuation{Kind: ValuationFixed, Fixed: points}
}

func ProportionalValue(rate string) Valuation {
	return Valuation{Kind: ValuationProportional, Rate: MustParseDecimal(rate)}
}

// DefaultActionValue is the baseline awarded for unrecognized action types.
const DefaultActionValue Points = 5

// =============================================================================
// VALUATION TABLE
// =============================================================================

// ValuationTable resolves action types to base point values, before the
// tier multiplier is applied.
type ValuationTable struct {
	entries map[ActionType]Valuation
}

// NewValuationTable returns the standard table.
func NewValuationTable() *ValuationTable {
	return &ValuationTable{entries: map[ActionType]Valuation{
		ActionStopSubmission:       FixedValue(25),
		ActionPhotoUpload:          FixedValue(15),
		ActionReviewSubmission:     FixedValue(20),
		ActionLocationVerification: FixedValue(30),

		ActionReferralSignup:       FixedValue(100),
		ActionReferralFirstBooking: FixedValue(250),
		ActionSocialShare:          FixedValue(10),

		ActionHotelBooking:      ProportionalValue("0.02"),
		ActionCampgroundBooking: ProportionalValue("0.03"),
		ActionTicketPurchase:    ProportionalValue("0.025"),

		ActionSponsorVisit:    FixedValue(10),
		ActionSponsorCheckin:  FixedValue(25),
		ActionSponsorPurchase: ProportionalValue("0.01"),

		ActionDailyLogin:         FixedValue(5),
		ActionOnboardingComplete: FixedValue(50),
		ActionProfileComplete:    FixedValue(30),
		ActionFirstTripPlan:      FixedValue(40),

		ActionRaynesWayRoute:   FixedValue(20),
		ActionShadeReport:      FixedValue(15),
		ActionSunSafetyCheckin: FixedValue(10),

		// The tier-upgrade bonus is nominal: small enough that a single
		// bonus cannot cross a tier threshold (smallest gap is 250).
		ActionTierUpgrade: FixedValue(5),

		// Affiliate conversions arrive pre-priced by the attribution
		// pipeline; the metadata amount IS the point value.
		ActionAffiliateConversion: ProportionalValue("1.0"),
	}}
}

// NewValuationTableWith builds a table from an explicit entry map
// (tests, sponsor-specific deployments).
func NewValuationTableWith(entries map[ActionType]Valuation) *ValuationTable {
	copied := make(map[ActionType]Valuation, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &ValuationTable{entries: copied}
}

// Resolve returns the base point value for an action. Pure: identical
// inputs always yield identical output.
//
// Unknown actions resolve to DefaultActionValue, never an error.
func (t *ValuationTable) Resolve(action ActionType, meta Metadata) Points {
	v, ok := t.entries[action]
	if !ok {
		return DefaultActionValue
	}
	switch v.Kind {
	case ValuationProportional:
		return PointsFromDecimal(meta.Amount().Mul(v.Rate))
	default:
		return v.Fixed
	}
}

// Known reports whether an action type has an explicit valuation.
func (t *ValuationTable) Known(action ActionType) bool {
	_, ok := t.entries[action]
	return ok
}
