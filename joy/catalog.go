/*
catalog.go - Redemption catalog

PURPOSE:
  The static list of rewards points can buy, and the pure filters over it.
  Catalog entries are configuration data: no lifecycle, no mutation.

GATING:
  Two independent gates:
  - Affordability: PointsRequired <= balance.TotalPoints
  - Tier exclusivity: options with a non-empty Tiers list are visible only
    to those tiers (e.g. the VIP concierge for Champions and Ambassadors)

SEE ALSO:
  - engine.go: SpendPoints validates against Option()
*/
package joy

import "github.com/shopspring/decimal"

// =============================================================================
// REDEMPTION OPTION
// =============================================================================

// RedemptionOption is a static catalog entry.
type RedemptionOption struct {
	ID             string
	Name           string
	Description    string
	PointsRequired Points
	Category       string
	ValueUSD       decimal.Decimal
	SponsorID      string
	Available      bool
	Terms          string

	// Tiers restricts visibility to the listed tiers. Empty = all tiers.
	Tiers []TierName
}

// visibleTo reports whether the option is offered to a tier at all.
func (o RedemptionOption) visibleTo(tier TierName) bool {
	if len(o.Tiers) == 0 {
		return true
	}
	for _, t := range o.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog holds the redemption options. Stateless beyond the option list.
type Catalog struct {
	options []RedemptionOption
}

// NewCatalog returns the standard catalog.
func NewCatalog() *Catalog {
	return &Catalog{options: []RedemptionOption{
		{
			ID:             "gas_discount_5",
			Name:           "$5 Gas Card",
			Description:    "Digital gas card for major stations",
			PointsRequired: 500,
			Category:       "travel",
			ValueUSD:       decimal.NewFromInt(5),
			Available:      true,
			Terms:          "Valid at participating stations. Expires in 90 days.",
		},
		{
			ID:             "campground_night",
			Name:           "Free Campground Night",
			Description:    "One night at participating Joy-Verified campgrounds",
			PointsRequired: 750,
			Category:       "accommodation",
			ValueUSD:       decimal.NewFromInt(35),
			Available:      true,
			Terms:          "Subject to availability. Blackout dates may apply.",
		},
		{
			ID:             "family_meal_voucher",
			Name:           "Family Meal Voucher",
			Description:    "Meal for family of 4 at Joy-Verified restaurants",
			PointsRequired: 400,
			Category:       "dining",
			ValueUSD:       decimal.NewFromInt(25),
			Available:      true,
			Terms:          "Valid at participating Joy-Verified locations only.",
		},
		{
			ID:             "stadium_upgrade",
			Name:           "Stadium Seat Upgrade",
			Description:    "Upgrade to shaded premium seating",
			PointsRequired: 600,
			Category:       "entertainment",
			ValueUSD:       decimal.NewFromInt(30),
			Available:      true,
			Terms:          "Subject to availability and participating venues.",
		},
		{
			ID:             "rv_supplies_discount",
			Name:           "20% RV Supplies Discount",
			Description:    "Discount on RV supplies and accessories",
			PointsRequired: 300,
			Category:       "travel",
			ValueUSD:       decimal.NewFromInt(20),
			Available:      true,
			Terms:          "Valid at participating retailers. Maximum $100 discount.",
		},
		{
			ID:             "vip_concierge",
			Name:           "VIP Travel Concierge",
			Description:    "Personal trip planning service",
			PointsRequired: 2000,
			Category:       "service",
			ValueUSD:       decimal.NewFromInt(100),
			Available:      true,
			Terms:          "Available to Joy Champions and Ambassadors only.",
			Tiers:          []TierName{TierJoyChampion, TierJoyAmbassador},
		},
	}}
}

// NewCatalogWithOptions builds a catalog from an explicit option list
// (tests, sponsor-specific deployments).
func NewCatalogWithOptions(options []RedemptionOption) *Catalog {
	return &Catalog{options: options}
}

// Option returns a catalog entry by id.
func (c *Catalog) Option(id string) (RedemptionOption, error) {
	for _, o := range c.options {
		if o.ID == id {
			return o, nil
		}
	}
	return RedemptionOption{}, &InvalidRedemptionError{RedemptionID: id, Reason: "not_found"}
}

// Options returns every entry visible to a tier, regardless of balance.
// Used by the rewards screen to show what a user could save toward.
func (c *Catalog) Options(tier TierName) []RedemptionOption {
	var out []RedemptionOption
	for _, o := range c.options {
		if o.visibleTo(tier) {
			out = append(out, o)
		}
	}
	return out
}

// AvailableFor filters to the options the balance can afford right now:
// available, affordable, and visible to the balance's tier. Pure.
func (c *Catalog) AvailableFor(b Balance) []RedemptionOption {
	var out []RedemptionOption
	for _, o := range c.options {
		if !o.Available || !o.visibleTo(b.TierLevel) {
			continue
		}
		if o.PointsRequired <= b.TotalPoints {
			out = append(out, o)
		}
	}
	return out
}
