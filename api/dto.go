/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/pathandjoy/joy-engine/joy"
)

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO represents a user's balance, tier, and ladder progress.
type BalanceDTO struct {
	UserID         string   `json:"user_id"`
	TotalPoints    int64    `json:"total_points"`
	LifetimePoints int64    `json:"lifetime_points"`
	TierLevel      string   `json:"tier_level"`
	TierBenefits   []string `json:"tier_benefits"`
	NextTier       string   `json:"next_tier,omitempty"`
	PointsToNext   int64    `json:"points_to_next,omitempty"`
	LastUpdated    string   `json:"last_updated"`
}

func toBalanceDTO(b joy.Balance) BalanceDTO {
	progress := joy.ProgressFor(b.LifetimePoints)
	return BalanceDTO{
		UserID:         string(b.UserID),
		TotalPoints:    int64(b.TotalPoints),
		LifetimePoints: int64(b.LifetimePoints),
		TierLevel:      string(b.TierLevel),
		TierBenefits:   b.TierBenefits,
		NextTier:       string(progress.Next),
		PointsToNext:   int64(progress.PointsToNext),
		LastUpdated:    b.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a ledger entry.
type TransactionDTO struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	ActionType    string         `json:"action_type"`
	PointsAwarded int64          `json:"points_awarded"`
	PointsSpent   int64          `json:"points_spent"`
	Kind          string         `json:"kind"`
	ReferenceID   string         `json:"reference_id,omitempty"`
	ReferenceType string         `json:"reference_type,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

func toTransactionDTO(tx joy.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            string(tx.ID),
		UserID:        string(tx.UserID),
		ActionType:    string(tx.ActionType),
		PointsAwarded: int64(tx.PointsAwarded),
		PointsSpent:   int64(tx.PointsSpent),
		Kind:          string(tx.Kind),
		ReferenceID:   tx.ReferenceID,
		ReferenceType: tx.ReferenceType,
		Metadata:      tx.Metadata,
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// AwardRequest is the request to award points for an action.
type AwardRequest struct {
	UserID     string         `json:"user_id"`
	ActionType string         `json:"action_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SpendRequest is the request to redeem points.
type SpendRequest struct {
	UserID       string `json:"user_id"`
	RedemptionID string `json:"redemption_id"`
	Points       int64  `json:"points"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// RedemptionOptionDTO represents a catalog entry.
type RedemptionOptionDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PointsRequired int64    `json:"points_required"`
	Category       string   `json:"category"`
	ValueUSD       string   `json:"value_usd"`
	SponsorID      string   `json:"sponsor_id,omitempty"`
	Available      bool     `json:"available"`
	Terms          string   `json:"terms"`
	Tiers          []string `json:"tiers,omitempty"`
}

func toRedemptionOptionDTO(o joy.RedemptionOption) RedemptionOptionDTO {
	tiers := make([]string, len(o.Tiers))
	for i, t := range o.Tiers {
		tiers[i] = string(t)
	}
	return RedemptionOptionDTO{
		ID:             o.ID,
		Name:           o.Name,
		Description:    o.Description,
		PointsRequired: int64(o.PointsRequired),
		Category:       o.Category,
		ValueUSD:       o.ValueUSD.String(),
		SponsorID:      o.SponsorID,
		Available:      o.Available,
		Terms:          o.Terms,
		Tiers:          tiers,
	}
}

// =============================================================================
// AFFILIATE TRACKING
// =============================================================================

// TrackClickRequest records a partner-link click.
type TrackClickRequest struct {
	UserID       string `json:"user_id"`
	Provider     string `json:"provider"`
	OriginalURL  string `json:"original_url"`
	AffiliateURL string `json:"affiliate_url"`
}

// ConversionRequest records a conversion on a tracked click.
type ConversionRequest struct {
	TrackingID       string `json:"tracking_id"`
	CommissionAmount string `json:"commission_amount"`
	JoyPoints        int64  `json:"joy_points"`
}

// AffiliateTrackingDTO represents an attribution record.
type AffiliateTrackingDTO struct {
	TrackingID       string `json:"tracking_id"`
	UserID           string `json:"user_id"`
	Provider         string `json:"provider"`
	OriginalURL      string `json:"original_url,omitempty"`
	AffiliateURL     string `json:"affiliate_url,omitempty"`
	ClickedAt        string `json:"clicked_at"`
	ConvertedAt      string `json:"converted_at,omitempty"`
	CommissionAmount string `json:"commission_amount,omitempty"`
	CommissionStatus string `json:"commission_status"`
	JoyPointsAwarded int64  `json:"joy_points_awarded,omitempty"`
}

func toAffiliateTrackingDTO(rec joy.AffiliateTracking) AffiliateTrackingDTO {
	dto := AffiliateTrackingDTO{
		TrackingID:       rec.TrackingID,
		UserID:           string(rec.UserID),
		Provider:         rec.Provider,
		OriginalURL:      rec.OriginalURL,
		AffiliateURL:     rec.AffiliateURL,
		ClickedAt:        rec.ClickedAt.UTC().Format(time.RFC3339),
		CommissionStatus: string(rec.CommissionStatus),
		JoyPointsAwarded: int64(rec.JoyPointsAwarded),
	}
	if rec.ConvertedAt != nil {
		dto.ConvertedAt = rec.ConvertedAt.UTC().Format(time.RFC3339)
		dto.CommissionAmount = rec.CommissionAmount.String()
	}
	return dto
}

// ConversionResponse bundles the confirmed record with the resulting award.
type ConversionResponse struct {
	Tracking AffiliateTrackingDTO `json:"tracking"`
	Award    TransactionDTO       `json:"award"`
}

// =============================================================================
// ANALYTICS
// =============================================================================

// ActionStatDTO aggregates one action type over a range.
type ActionStatDTO struct {
	ActionType    string `json:"action_type"`
	Count         int    `json:"count"`
	PointsAwarded int64  `json:"points_awarded"`
}

// AnalyticsDTO is the admin-dashboard summary.
type AnalyticsDTO struct {
	Start            string          `json:"start"`
	End              string          `json:"end"`
	TotalAwarded     int64           `json:"total_points_awarded"`
	TotalSpent       int64           `json:"total_points_spent"`
	Net              int64           `json:"net_points"`
	TransactionCount int             `json:"transaction_count"`
	TopActions       []ActionStatDTO `json:"top_actions"`
}

func toAnalyticsDTO(s joy.Summary) AnalyticsDTO {
	dto := AnalyticsDTO{
		Start:            s.From.UTC().Format(time.RFC3339),
		End:              s.To.UTC().Format(time.RFC3339),
		TotalAwarded:     int64(s.TotalAwarded),
		TotalSpent:       int64(s.TotalSpent),
		Net:              int64(s.Net),
		TransactionCount: s.TransactionCount,
	}
	for _, st := range s.TopActions {
		dto.TopActions = append(dto.TopActions, ActionStatDTO{
			ActionType:    string(st.Action),
			Count:         st.Count,
			PointsAwarded: int64(st.PointsAwarded),
		})
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
