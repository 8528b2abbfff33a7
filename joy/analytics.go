/*
analytics.go - Points analytics for the admin dashboard

PURPOSE:
  Aggregates ledger activity over a date range: totals, net flow, and the
  top actions by points awarded. Read-only; all numbers are derived from
  the same transaction log the balances fold over, so analytics and
  balances can never disagree.
*/
package joy

import (
	"context"
	"sort"
	"time"
)

// topActionLimit caps the action leaderboard in a summary.
const topActionLimit = 10

// =============================================================================
// ANALYTICS
// =============================================================================

// ActionStat aggregates one action type over a range.
type ActionStat struct {
	Action        ActionType
	Count         int
	PointsAwarded Points
}

// Summary is the aggregate view over [From, To].
type Summary struct {
	From, To         time.Time
	TotalAwarded     Points
	TotalSpent       Points
	Net              Points
	TransactionCount int
	TopActions       []ActionStat // by points awarded, descending
}

// Analytics computes summaries from a store.
type Analytics struct {
	store Store
}

func NewAnalytics(store Store) *Analytics {
	return &Analytics{store: store}
}

// Summarize folds all transactions created in [from, to].
func (a *Analytics) Summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	txs, err := a.store.TransactionsInRange(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{From: from, To: to, TransactionCount: len(txs)}
	byAction := make(map[ActionType]*ActionStat)
	for _, tx := range txs {
		s.TotalAwarded += tx.PointsAwarded
		s.TotalSpent += tx.PointsSpent

		st, ok := byAction[tx.ActionType]
		if !ok {
			st = &ActionStat{Action: tx.ActionType}
			byAction[tx.ActionType] = st
		}
		st.Count++
		st.PointsAwarded += tx.PointsAwarded
	}
	s.Net = s.TotalAwarded - s.TotalSpent

	for _, st := range byAction {
		s.TopActions = append(s.TopActions, *st)
	}
	sort.Slice(s.TopActions, func(i, j int) bool {
		if s.TopActions[i].PointsAwarded != s.TopActions[j].PointsAwarded {
			return s.TopActions[i].PointsAwarded > s.TopActions[j].PointsAwarded
		}
		return s.TopActions[i].Action < s.TopActions[j].Action
	})
	if len(s.TopActions) > topActionLimit {
		s.TopActions = s.TopActions[:topActionLimit]
	}

	return s, nil
}
