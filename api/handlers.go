/*
handlers.go - HTTP API handlers for the Joy Points engine

PURPOSE:
  Exposes the points engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET  /api/users/{id}/balance       Balance, tier, ladder progress
    GET  /api/users/{id}/transactions  History (?limit=)
    GET  /api/users/{id}/redemptions   Affordable redemption options

  Points:
    POST /api/points/award             Award points for an action
    POST /api/points/spend             Redeem points

  Redemptions:
    GET  /api/redemptions              Full catalog (?tier=)

  Affiliate:
    POST /api/affiliate/clicks         Track a partner-link click
    POST /api/affiliate/conversions    Record a conversion + award points

  Analytics:
    GET  /api/analytics/points         Range summary (?start=&end=)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, tracker, analytics)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient points, invalid redemption
  - 404: Unknown tracking id
  - 409: Duplicate idempotency key
  - 500: Store failures, internal errors

IDEMPOTENCY:
  Award and spend accept an Idempotency-Key header; a replayed key is
  rejected with 409 and no mutation.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pathandjoy/joy-engine/joy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *joy.Engine
	Tracker   *joy.Tracker
	Analytics *joy.Analytics
	Logger    *zap.Logger
}

// NewHandler creates a new handler over the engine's collaborators.
func NewHandler(engine *joy.Engine, tracker *joy.Tracker, analytics *joy.Analytics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:    engine,
		Tracker:   tracker,
		Analytics: analytics,
		Logger:    logger,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// GetBalance returns the user's balance, tier, and ladder progress.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := joy.UserID(chi.URLParam(r, "id"))

	balance, err := h.Engine.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetTransactions returns the user's transaction history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := joy.UserID(chi.URLParam(r, "id"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	txs, err := h.Engine.GetTransactionHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListUserRedemptions returns the options the user can afford right now.
func (h *Handler) ListUserRedemptions(w http.ResponseWriter, r *http.Request) {
	userID := joy.UserID(chi.URLParam(r, "id"))

	options, err := h.Engine.ListAvailableRedemptions(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to list redemptions", err)
		return
	}

	dtos := make([]RedemptionOptionDTO, len(options))
	for i, o := range options {
		dtos[i] = toRedemptionOptionDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// AwardPoints awards points for a user action.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "action_type is required", nil)
		return
	}

	meta := joy.Metadata(req.Metadata)
	if meta == nil {
		meta = joy.Metadata{}
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		meta[joy.MetaIdempotencyKey] = key
	}

	tx, err := h.Engine.AwardPoints(r.Context(), joy.UserID(req.UserID), joy.ActionType(req.ActionType), meta)
	if err != nil {
		h.writeDomainError(w, "Failed to award points", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// SpendPoints redeems points against a catalog option.
func (h *Handler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Engine.SpendPoints(r.Context(), joy.UserID(req.UserID), req.RedemptionID, joy.Points(req.Points))
	if err != nil {
		h.writeDomainError(w, "Failed to spend points", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// REDEMPTION CATALOG HANDLERS
// =============================================================================

// ListRedemptions returns the full catalog visible to a tier
// (default: entry tier).
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	tier := joy.TierName(r.URL.Query().Get("tier"))
	if tier == "" {
		tier = joy.TierExplorer
	}

	options := h.Engine.Catalog().Options(tier)
	dtos := make([]RedemptionOptionDTO, len(options))
	for i, o := range options {
		dtos[i] = toRedemptionOptionDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AFFILIATE HANDLERS
// =============================================================================

// TrackClick records a partner-link click and returns the tracking record.
func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	var req TrackClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Tracker.TrackClick(r.Context(), joy.UserID(req.UserID), req.Provider, req.OriginalURL, req.AffiliateURL)
	if err != nil {
		h.writeDomainError(w, "Failed to track click", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAffiliateTrackingDTO(rec))
}

// RecordConversion confirms a conversion and awards the priced points.
// The tracker and the engine stay decoupled: the tracker records the
// conversion, then this handler feeds the point value to the engine.
func (h *Handler) RecordConversion(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	commission, err := decimal.NewFromString(req.CommissionAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commission_amount", err)
		return
	}

	rec, err := h.Tracker.RecordConversion(r.Context(), req.TrackingID, commission, joy.Points(req.JoyPoints))
	if err != nil {
		h.writeDomainError(w, "Failed to record conversion", err)
		return
	}

	award, err := h.Engine.AwardPoints(r.Context(), rec.UserID, joy.ActionAffiliateConversion, joy.Metadata{
		joy.MetaAmount:        req.JoyPoints,
		joy.MetaReferenceID:   rec.TrackingID,
		joy.MetaReferenceType: "affiliate_tracking",
		"provider":            rec.Provider,
	})
	if err != nil {
		// Conversion is recorded; the award failed. Surface the failure
		// rather than pretending the whole operation succeeded.
		h.Logger.Error("conversion recorded but award failed",
			zap.String("tracking_id", rec.TrackingID),
			zap.Error(err))
		h.writeDomainError(w, "Conversion recorded but award failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, ConversionResponse{
		Tracking: toAffiliateTrackingDTO(rec),
		Award:    toTransactionDTO(award),
	})
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetAnalytics returns the points summary for a date range.
// Defaults to the trailing 30 days.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start", err)
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end", err)
			return
		}
		end = t
	}

	summary, err := h.Analytics.Summarize(r.Context(), start, end)
	if err != nil {
		h.writeDomainError(w, "Failed to compute analytics", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyticsDTO(summary))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, joy.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, msg, err)
	case joy.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	case joy.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	default:
		h.Logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}
