// Package store provides in-memory implementations of the joy storage
// interfaces, used by tests and dev mode.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pathandjoy/joy-engine/joy"
)

// =============================================================================
// MEMORY STORE - Implements joy.TxStore and joy.AffiliateStore
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[joy.UserID][]joy.Transaction
	idempotency  map[string]bool
	balances     map[joy.UserID]joy.Balance
	affiliates   map[string]joy.AffiliateTracking
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[joy.UserID][]joy.Transaction),
		idempotency:  make(map[string]bool),
		balances:     make(map[joy.UserID]joy.Balance),
		affiliates:   make(map[string]joy.AffiliateTracking),
	}
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (m *Memory) InsertTransaction(_ context.Context, tx joy.Transaction) (joy.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(tx)
}

func (m *Memory) insertLocked(tx joy.Transaction) (joy.Transaction, error) {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return joy.Transaction{}, joy.ErrDuplicateIdempotencyKey
	}
	if tx.ID == "" {
		tx.ID = joy.TransactionID(uuid.NewString())
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	txs := m.transactions[tx.UserID]

	// Keep per-user history ordered by creation time; binary search for
	// the insertion point.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, joy.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.UserID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return tx, nil
}

func (m *Memory) TransactionsByUser(_ context.Context, userID joy.UserID) ([]joy.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsByUserLocked(userID), nil
}

func (m *Memory) transactionsByUserLocked(userID joy.UserID) []joy.Transaction {
	result := make([]joy.Transaction, len(m.transactions[userID]))
	copy(result, m.transactions[userID])
	return result
}

func (m *Memory) TransactionsInRange(_ context.Context, from, to time.Time) ([]joy.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsInRangeLocked(from, to), nil
}

func (m *Memory) transactionsInRangeLocked(from, to time.Time) []joy.Transaction {
	var result []joy.Transaction
	for _, txs := range m.transactions {
		for _, tx := range txs {
			if !tx.CreatedAt.Before(from) && !tx.CreatedAt.After(to) {
				result = append(result, tx)
			}
		}
	}
	return result
}

// =============================================================================
// BALANCES (derived cache)
// =============================================================================

func (m *Memory) GetBalance(_ context.Context, userID joy.UserID) (joy.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(userID)
}

func (m *Memory) getBalanceLocked(userID joy.UserID) (joy.Balance, error) {
	b, ok := m.balances[userID]
	if !ok {
		return joy.Balance{}, joy.ErrBalanceNotFound
	}
	return b, nil
}

func (m *Memory) UpsertBalance(_ context.Context, b joy.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertBalanceLocked(b)
	return nil
}

func (m *Memory) upsertBalanceLocked(b joy.Balance) {
	m.balances[b.UserID] = b
}

// =============================================================================
// AFFILIATE TRACKING
// =============================================================================

func (m *Memory) InsertAffiliateTracking(_ context.Context, rec joy.AffiliateTracking) (joy.AffiliateTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.TrackingID == "" {
		rec.TrackingID = joy.NewTrackingID(time.Now())
	}
	m.affiliates[rec.TrackingID] = rec
	return rec, nil
}

func (m *Memory) GetAffiliateTracking(_ context.Context, trackingID string) (joy.AffiliateTracking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.affiliates[trackingID]
	if !ok {
		return joy.AffiliateTracking{}, joy.ErrUnknownTrackingID
	}
	return rec, nil
}

func (m *Memory) UpdateAffiliateTracking(_ context.Context, trackingID string, update joy.ConversionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.affiliates[trackingID]
	if !ok || rec.CommissionStatus != joy.CommissionPending {
		// Conditional write: only a pending record may convert.
		return joy.ErrUnknownTrackingID
	}

	at := update.ConvertedAt
	rec.ConvertedAt = &at
	rec.CommissionAmount = update.CommissionAmount
	rec.CommissionStatus = joy.CommissionConfirmed
	rec.JoyPointsAwarded = update.JoyPointsAwarded
	m.affiliates[trackingID] = rec
	return nil
}

// =============================================================================
// TRANSACTIONAL VIEW (joy.TxStore)
// =============================================================================

// WithTx executes fn holding the store lock, with snapshot + rollback on
// error. This gives the memory store the same serializable-per-call
// semantics the SQLite store gets from database transactions.
func (m *Memory) WithTx(_ context.Context, fn func(joy.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txMemoryView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[joy.UserID][]joy.Transaction
	idempotency  map[string]bool
	balances     map[joy.UserID]joy.Balance
	affiliates   map[string]joy.AffiliateTracking
}

func (m *Memory) snapshot() memorySnapshot {
	txsCopy := make(map[joy.UserID][]joy.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txsCopy[k] = append([]joy.Transaction{}, v...)
	}
	idempCopy := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idempCopy[k] = v
	}
	balCopy := make(map[joy.UserID]joy.Balance, len(m.balances))
	for k, v := range m.balances {
		balCopy[k] = v
	}
	affCopy := make(map[string]joy.AffiliateTracking, len(m.affiliates))
	for k, v := range m.affiliates {
		affCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, idempotency: idempCopy, balances: balCopy, affiliates: affCopy}
}

func (m *Memory) restore(s memorySnapshot) {
	m.transactions = s.transactions
	m.idempotency = s.idempotency
	m.balances = s.balances
	m.affiliates = s.affiliates
}

// txMemoryView routes Store calls to the parent's locked internals while
// WithTx holds the lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) InsertTransaction(_ context.Context, tx joy.Transaction) (joy.Transaction, error) {
	return tv.parent.insertLocked(tx)
}

func (tv *txMemoryView) TransactionsByUser(_ context.Context, userID joy.UserID) ([]joy.Transaction, error) {
	return tv.parent.transactionsByUserLocked(userID), nil
}

func (tv *txMemoryView) TransactionsInRange(_ context.Context, from, to time.Time) ([]joy.Transaction, error) {
	return tv.parent.transactionsInRangeLocked(from, to), nil
}

func (tv *txMemoryView) GetBalance(_ context.Context, userID joy.UserID) (joy.Balance, error) {
	return tv.parent.getBalanceLocked(userID)
}

func (tv *txMemoryView) UpsertBalance(_ context.Context, b joy.Balance) error {
	tv.parent.upsertBalanceLocked(b)
	return nil
}

// Interface checks
var (
	_ joy.TxStore        = (*Memory)(nil)
	_ joy.AffiliateStore = (*Memory)(nil)
)
