/*
tier.go - Tier model: thresholds, multipliers, benefits

PURPOSE:
  Pure functions mapping lifetime points to a tier, and a tier to its
  earn multiplier and benefits list. Tier is derived ONLY from lifetime
  earned points, which are monotonic - spending can never demote a tier.

THE LADDER:
  Explorer          0  x1.00
  Joy Seeker      250  x1.05
  Joy Traveler   1000  x1.10
  Joy Adventurer 2500  x1.15
  Joy Champion   5000  x1.25
  Joy Ambassador 10000 x1.50

MULTIPLIER SEMANTICS:
  The multiplier applies to AWARDED points only, before ledger insertion,
  and the result is floored: awarding 25 base points at Joy Traveler
  persists floor(25 * 1.10) = 27.

BENEFITS:
  Each tier has a fixed benefits list. Higher tiers are supersets by
  configuration convention, not enforced programmatically.

SEE ALSO:
  - engine.go: Applies the multiplier and detects tier transitions
  - ledger.go: Derives TierLevel on every balance rebuild
*/
package joy

import "github.com/shopspring/decimal"

// =============================================================================
// TIER NAMES
// =============================================================================

type TierName string

const (
	TierExplorer      TierName = "Explorer"
	TierJoySeeker     TierName = "Joy Seeker"
	TierJoyTraveler   TierName = "Joy Traveler"
	TierJoyAdventurer TierName = "Joy Adventurer"
	TierJoyChampion   TierName = "Joy Champion"
	TierJoyAmbassador TierName = "Joy Ambassador"
)

// =============================================================================
// TIER TABLE - Ordered, ascending thresholds
// =============================================================================

// Tier bundles a tier's threshold, earn multiplier, and benefits.
type Tier struct {
	Name       TierName
	Threshold  Points
	Multiplier decimal.Decimal
	Benefits   []string
}

// tiers is ordered by ascending threshold. TierFor relies on the order.
var tiers = []Tier{
	{
		Name:       TierExplorer,
		Threshold:  0,
		Multiplier: MustParseDecimal("1.0"),
		Benefits:   []string{"Basic Joy Assistant", "Standard Support"},
	},
	{
		Name:       TierJoySeeker,
		Threshold:  250,
		Multiplier: MustParseDecimal("1.05"),
		Benefits:   []string{"Enhanced Joy Assistant", "Priority Support", "5% Bonus Points"},
	},
	{
		Name:       TierJoyTraveler,
		Threshold:  1000,
		Multiplier: MustParseDecimal("1.10"),
		Benefits:   []string{"Advanced Joy Assistant", "Premium Support", "10% Bonus Points", "Early Feature Access"},
	},
	{
		Name:       TierJoyAdventurer,
		Threshold:  2500,
		Multiplier: MustParseDecimal("1.15"),
		Benefits:   []string{"Expert Joy Assistant", "VIP Support", "15% Bonus Points", "Exclusive Content", "Partner Perks"},
	},
	{
		Name:       TierJoyChampion,
		Threshold:  5000,
		Multiplier: MustParseDecimal("1.25"),
		Benefits:   []string{"Master Joy Assistant", "Concierge Support", "25% Bonus Points", "Premium Features", "VIP Partner Access"},
	},
	{
		Name:       TierJoyAmbassador,
		Threshold:  10000,
		Multiplier: MustParseDecimal("1.50"),
		Benefits:   []string{"Ultimate Joy Assistant", "Personal Concierge", "50% Bonus Points", "All Features", "Ambassador Perks", "Revenue Share"},
	},
}

// Tiers returns the ordered tier ladder (copy, callers may not mutate).
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// =============================================================================
// LOOKUPS - All pure
// =============================================================================

// TierFor returns the highest tier whose threshold is <= lifetimePoints.
func TierFor(lifetimePoints Points) TierName {
	current := tiers[0].Name
	for _, t := range tiers {
		if lifetimePoints >= t.Threshold {
			current = t.Name
		}
	}
	return current
}

// TierMultiplier returns the earn multiplier for a tier.
// Unknown tier names fall back to the entry-tier multiplier.
func TierMultiplier(name TierName) decimal.Decimal {
	for _, t := range tiers {
		if t.Name == name {
			return t.Multiplier
		}
	}
	return tiers[0].Multiplier
}

// TierBenefits returns the benefits list for a tier (copy).
// Unknown tier names fall back to the entry-tier benefits.
func TierBenefits(name TierName) []string {
	for _, t := range tiers {
		if t.Name == name {
			return append([]string(nil), t.Benefits...)
		}
	}
	return append([]string(nil), tiers[0].Benefits...)
}

// ApplyMultiplier applies a tier's earn multiplier to a base award and
// floors the result. This is the only path from base value to persisted
// PointsAwarded.
func ApplyMultiplier(base Points, tier TierName) Points {
	return PointsFromDecimal(base.Decimal().Mul(TierMultiplier(tier)))
}

// =============================================================================
// TIER PROGRESS - Display helper for the rewards screen
// =============================================================================

// TierProgress reports where a user sits on the ladder.
type TierProgress struct {
	Lifetime     Points
	Current      TierName
	Next         TierName // "" when already at the top tier
	PointsToNext Points   // 0 when at the top tier
}

// ProgressFor computes progress toward the next tier from lifetime points.
func ProgressFor(lifetimePoints Points) TierProgress {
	p := TierProgress{
		Lifetime: lifetimePoints,
		Current:  TierFor(lifetimePoints),
	}
	for _, t := range tiers {
		if t.Threshold > lifetimePoints {
			p.Next = t.Name
			p.PointsToNext = t.Threshold - lifetimePoints
			break
		}
	}
	return p
}
