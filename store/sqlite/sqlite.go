/*
Package sqlite provides a SQLite-backed implementation of the joy storage
interfaces.

PURPOSE:
  Implements joy.TxStore and joy.AffiliateStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transaction table is append-only:
  - No UPDATE statements on joy_points_transactions
  - No DELETE statements on joy_points_transactions
  The balance table is a derived cache and is the only per-user row the
  engine overwrites. Affiliate records get exactly one conditional update
  (pending -> confirmed).

KEY TABLES:
  joy_points_transactions: Immutable ledger of all point movements
  joy_points_balances:     Cached fold of the ledger, one row per user
  affiliate_tracking:      Click/conversion attribution records

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. WithTx holds
  the write lock for the whole unit of work, which is what makes the
  engine's balance-check-then-append serializable per process; the
  database transaction makes it atomic on disk.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/joy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := joy.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - joy/store.go: Interface definitions
  - joy/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pathandjoy/joy-engine/joy"
)

// Store implements joy.TxStore and joy.AffiliateStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Joy Points transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS joy_points_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		points_spent INTEGER NOT NULL DEFAULT 0,
		tx_kind TEXT NOT NULL,
		reference_id TEXT,
		reference_type TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance fold per user (hot path)
	CREATE INDEX IF NOT EXISTS idx_joy_tx_user
		ON joy_points_transactions(user_id, created_at);
	-- Analytics range scans
	CREATE INDEX IF NOT EXISTS idx_joy_tx_created_at
		ON joy_points_transactions(created_at);
	-- Back-reference lookups (redemptions, affiliate conversions)
	CREATE INDEX IF NOT EXISTS idx_joy_tx_reference
		ON joy_points_transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Derived balance cache, one row per user
	CREATE TABLE IF NOT EXISTS joy_points_balances (
		user_id TEXT PRIMARY KEY,
		total_points INTEGER NOT NULL,
		lifetime_points INTEGER NOT NULL,
		tier_level TEXT NOT NULL,
		tier_benefits_json TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);

	-- Affiliate click/conversion attribution
	CREATE TABLE IF NOT EXISTS affiliate_tracking (
		tracking_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		original_url TEXT,
		affiliate_url TEXT,
		clicked_at TEXT NOT NULL,
		converted_at TEXT,
		commission_amount TEXT,
		commission_status TEXT NOT NULL,
		joy_points_awarded INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_affiliate_user
		ON affiliate_tracking(user_id);
	CREATE INDEX IF NOT EXISTS idx_affiliate_status
		ON affiliate_tracking(commission_status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeLayout is a fixed-width RFC3339 layout. RFC3339Nano trims trailing
// zeros, which breaks lexicographic comparison in the created_at indexes
// and range predicates ('Z' sorts after '.'); fixed-width fractional
// seconds keep string order equal to temporal order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the same helpers can
// run against the connection or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (joy.Store interface)
// =============================================================================

// InsertTransaction appends a transaction to the ledger.
func (s *Store) InsertTransaction(ctx context.Context, tx joy.Transaction) (joy.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertTransaction(ctx, s.db, tx)
}

func (s *Store) insertTransaction(ctx context.Context, db dbtx, tx joy.Transaction) (joy.Transaction, error) {
	if tx.ID == "" {
		tx.ID = joy.TransactionID(uuid.NewString())
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	metadataJSON, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO joy_points_transactions
		(id, user_id, action_type, points_awarded, points_spent, tx_kind,
		 reference_id, reference_type, idempotency_key, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.ActionType,
		int64(tx.PointsAwarded),
		int64(tx.PointsSpent),
		tx.Kind,
		nullString(tx.ReferenceID),
		nullString(tx.ReferenceType),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return joy.Transaction{}, joy.ErrDuplicateIdempotencyKey
		}
		return joy.Transaction{}, fmt.Errorf("%w: failed to append transaction: %v", joy.ErrStoreUnavailable, err)
	}

	return tx, nil
}

// TransactionsByUser returns the full history for a user, oldest first.
func (s *Store) TransactionsByUser(ctx context.Context, userID joy.UserID) ([]joy.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryTransactions(ctx, s.db, `
		SELECT id, user_id, action_type, points_awarded, points_spent, tx_kind,
		       reference_id, reference_type, idempotency_key, metadata_json, created_at
		FROM joy_points_transactions
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
}

// TransactionsInRange returns all transactions created in [from, to].
func (s *Store) TransactionsInRange(ctx context.Context, from, to time.Time) ([]joy.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryTransactions(ctx, s.db, `
		SELECT id, user_id, action_type, points_awarded, points_spent, tx_kind,
		       reference_id, reference_type, idempotency_key, metadata_json, created_at
		FROM joy_points_transactions
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`, from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]joy.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query transactions: %v", joy.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var transactions []joy.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (joy.Transaction, error) {
	var (
		tx             joy.Transaction
		awarded, spent int64
		referenceID    sql.NullString
		referenceType  sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.UserID, &tx.ActionType, &awarded, &spent, &tx.Kind,
		&referenceID, &referenceType, &idempotencyKey, &metadataJSON, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.PointsAwarded = joy.Points(awarded)
	tx.PointsSpent = joy.Points(spent)
	tx.ReferenceID = referenceID.String
	tx.ReferenceType = referenceType.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("%w: corrupt metadata on transaction %s: %v", joy.ErrStoreUnavailable, tx.ID, err)
		}
	}

	return tx, nil
}

// =============================================================================
// BALANCE STORE (derived cache)
// =============================================================================

// GetBalance returns the cached balance row for a user.
func (s *Store) GetBalance(ctx context.Context, userID joy.UserID) (joy.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getBalance(ctx, s.db, userID)
}

func getBalance(ctx context.Context, db dbtx, userID joy.UserID) (joy.Balance, error) {
	var (
		b            joy.Balance
		total        int64
		lifetime     int64
		benefitsJSON string
		lastUpdated  string
	)

	err := db.QueryRowContext(ctx, `
		SELECT user_id, total_points, lifetime_points, tier_level, tier_benefits_json, last_updated
		FROM joy_points_balances
		WHERE user_id = ?
	`, userID).Scan(&b.UserID, &total, &lifetime, &b.TierLevel, &benefitsJSON, &lastUpdated)
	if err == sql.ErrNoRows {
		return joy.Balance{}, joy.ErrBalanceNotFound
	}
	if err != nil {
		return joy.Balance{}, fmt.Errorf("%w: failed to query balance: %v", joy.ErrStoreUnavailable, err)
	}

	b.TotalPoints = joy.Points(total)
	b.LifetimePoints = joy.Points(lifetime)
	b.LastUpdated, _ = time.Parse(timeLayout, lastUpdated)
	if err := json.Unmarshal([]byte(benefitsJSON), &b.TierBenefits); err != nil {
		return joy.Balance{}, fmt.Errorf("%w: corrupt benefits on balance %s: %v", joy.ErrStoreUnavailable, userID, err)
	}

	return b, nil
}

// UpsertBalance overwrites the cache row for a user.
func (s *Store) UpsertBalance(ctx context.Context, b joy.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return upsertBalance(ctx, s.db, b)
}

func upsertBalance(ctx context.Context, db dbtx, b joy.Balance) error {
	benefitsJSON, _ := json.Marshal(b.TierBenefits)

	_, err := db.ExecContext(ctx, `
		INSERT INTO joy_points_balances
		(user_id, total_points, lifetime_points, tier_level, tier_benefits_json, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_points = excluded.total_points,
			lifetime_points = excluded.lifetime_points,
			tier_level = excluded.tier_level,
			tier_benefits_json = excluded.tier_benefits_json,
			last_updated = excluded.last_updated
	`,
		b.UserID,
		int64(b.TotalPoints),
		int64(b.LifetimePoints),
		b.TierLevel,
		string(benefitsJSON),
		b.LastUpdated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert balance: %v", joy.ErrStoreUnavailable, err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (joy.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The Store
// passed to fn reads its own uncommitted writes.
func (s *Store) WithTx(ctx context.Context, fn func(joy.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", joy.ErrStoreUnavailable, err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", joy.ErrStoreUnavailable, err)
	}
	return nil
}

// txStore routes Store calls through the open sql.Tx. No locking here:
// WithTx already holds the store lock.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx joy.Transaction) (joy.Transaction, error) {
	return ts.parent.insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) TransactionsByUser(ctx context.Context, userID joy.UserID) ([]joy.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT id, user_id, action_type, points_awarded, points_spent, tx_kind,
		       reference_id, reference_type, idempotency_key, metadata_json, created_at
		FROM joy_points_transactions
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
}

func (ts *txStore) TransactionsInRange(ctx context.Context, from, to time.Time) ([]joy.Transaction, error) {
	return queryTransactions(ctx, ts.tx, `
		SELECT id, user_id, action_type, points_awarded, points_spent, tx_kind,
		       reference_id, reference_type, idempotency_key, metadata_json, created_at
		FROM joy_points_transactions
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`, from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
}

func (ts *txStore) GetBalance(ctx context.Context, userID joy.UserID) (joy.Balance, error) {
	return getBalance(ctx, ts.tx, userID)
}

func (ts *txStore) UpsertBalance(ctx context.Context, b joy.Balance) error {
	return upsertBalance(ctx, ts.tx, b)
}

// =============================================================================
// AFFILIATE STORE (joy.AffiliateStore interface)
// =============================================================================

// InsertAffiliateTracking stores a new pending attribution record.
func (s *Store) InsertAffiliateTracking(ctx context.Context, rec joy.AffiliateTracking) (joy.AffiliateTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.TrackingID == "" {
		rec.TrackingID = joy.NewTrackingID(time.Now())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO affiliate_tracking
		(tracking_id, user_id, provider, original_url, affiliate_url,
		 clicked_at, converted_at, commission_amount, commission_status, joy_points_awarded)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?, 0)
	`,
		rec.TrackingID,
		rec.UserID,
		rec.Provider,
		rec.OriginalURL,
		rec.AffiliateURL,
		rec.ClickedAt.UTC().Format(timeLayout),
		rec.CommissionStatus,
	)
	if err != nil {
		return joy.AffiliateTracking{}, fmt.Errorf("%w: failed to insert affiliate tracking: %v", joy.ErrStoreUnavailable, err)
	}

	return rec, nil
}

// GetAffiliateTracking returns a record by tracking id.
func (s *Store) GetAffiliateTracking(ctx context.Context, trackingID string) (joy.AffiliateTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec        joy.AffiliateTracking
		clickedAt  string
		converted  sql.NullString
		commission sql.NullString
		points     int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT tracking_id, user_id, provider, original_url, affiliate_url,
		       clicked_at, converted_at, commission_amount, commission_status, joy_points_awarded
		FROM affiliate_tracking
		WHERE tracking_id = ?
	`, trackingID).Scan(
		&rec.TrackingID, &rec.UserID, &rec.Provider, &rec.OriginalURL, &rec.AffiliateURL,
		&clickedAt, &converted, &commission, &rec.CommissionStatus, &points,
	)
	if err == sql.ErrNoRows {
		return joy.AffiliateTracking{}, joy.ErrUnknownTrackingID
	}
	if err != nil {
		return joy.AffiliateTracking{}, fmt.Errorf("%w: failed to query affiliate tracking: %v", joy.ErrStoreUnavailable, err)
	}

	rec.ClickedAt, _ = time.Parse(timeLayout, clickedAt)
	if converted.Valid {
		t, _ := time.Parse(timeLayout, converted.String)
		rec.ConvertedAt = &t
	}
	if commission.Valid {
		rec.CommissionAmount, _ = decimal.NewFromString(commission.String)
	}
	rec.JoyPointsAwarded = joy.Points(points)

	return rec, nil
}

// UpdateAffiliateTracking applies the one-shot conversion update. The
// WHERE clause conditions on pending status, so a finalized or unknown
// record affects zero rows and the caller gets ErrUnknownTrackingID.
func (s *Store) UpdateAffiliateTracking(ctx context.Context, trackingID string, update joy.ConversionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE affiliate_tracking
		SET converted_at = ?,
		    commission_amount = ?,
		    commission_status = ?,
		    joy_points_awarded = ?
		WHERE tracking_id = ? AND commission_status = ?
	`,
		update.ConvertedAt.UTC().Format(timeLayout),
		update.CommissionAmount.String(),
		joy.CommissionConfirmed,
		int64(update.JoyPointsAwarded),
		trackingID,
		joy.CommissionPending,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update affiliate tracking: %v", joy.ErrStoreUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read update result: %v", joy.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return joy.ErrUnknownTrackingID
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Interface checks
var (
	_ joy.TxStore        = (*Store)(nil)
	_ joy.AffiliateStore = (*Store)(nil)
)
