/*
Package sqlite provides a SQLite-backed wallet store for the reference server.

PURPOSE:
  Persists what the wallet backend owns: the card catalog, each user's held
  cards, benefit usage per period and benefit ignore flags. The api package
  serves the wallet endpoints and the snapshot stream from it.

KEY TABLES:
  cards:            Catalog entries, definition kept as JSON
  holdings:         (user, card) with status and anniversary date
  benefit_usage:    (user, card, benefit, period) -> used, status
  benefit_ignores:  (user, card, benefit) -> is_ignored

WRITE SEMANTICS:
  Usage writes are last-write-wins per (user, card, benefit, period).
  Increment writes read and write inside one SQL transaction.
  Removing a card keeps the holding row (status = removed) and drops its
  usage, so re-adding starts clean.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging): readers don't
  block the single writer.

MIGRATION:
  Schema lives in migrations/ and is applied on New() with golang-migrate
  from the embedded files.

USAGE:
  store, err := sqlite.New("./data/wallet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - api/handlers.go: The HTTP surface over this store
  - generic/store/memory.go: In-memory committer for client-side tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the server-side wallet database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database from being split across connections.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close db as well; only the source is released here.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Debug("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// =============================================================================
// CARD CATALOG
// =============================================================================

// CardRecord is a stored catalog card with its JSON definition.
type CardRecord struct {
	ID         string
	Name       string
	Issuer     string
	ConfigJSON string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveCard inserts or replaces a catalog card, bumping its version.
func (s *Store) SaveCard(ctx context.Context, card CardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cards (id, name, issuer, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			issuer = excluded.issuer,
			config_json = excluded.config_json,
			version = cards.version + 1,
			updated_at = excluded.updated_at
	`
	now := timestamp()
	_, err := s.db.ExecContext(ctx, query, card.ID, card.Name, card.Issuer, card.ConfigJSON, now, now)
	return err
}

// GetCard returns a card or a NotFoundError.
func (s *Store) GetCard(ctx context.Context, id string) (*CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, issuer, config_json, version, created_at, updated_at FROM cards WHERE id = ?", id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "card", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCards returns every catalog card ordered by ID.
func (s *Store) ListCards(ctx context.Context) ([]CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, issuer, config_json, version, created_at, updated_at FROM cards ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []CardRecord
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (CardRecord, error) {
	var c CardRecord
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Issuer, &c.ConfigJSON, &c.Version, &createdAt, &updatedAt); err != nil {
		return CardRecord{}, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

// =============================================================================
// HOLDINGS
// =============================================================================

// AddHolding adds a card to a user's wallet. Re-adding a removed card
// reactivates it.
func (s *Store) AddHolding(ctx context.Context, userID generic.UserID, cardID generic.CardID, anniversary *generic.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holdings (user_id, card_id, status, anniversary_date, created_at, updated_at)
		VALUES (?, ?, 'active', ?, ?, ?)
		ON CONFLICT(user_id, card_id) DO UPDATE SET
			status = 'active',
			anniversary_date = excluded.anniversary_date,
			updated_at = excluded.updated_at
	`
	now := timestamp()
	_, err := s.db.ExecContext(ctx, query, userID, cardID, nullDate(anniversary), now, now)
	if err != nil {
		return fmt.Errorf("failed to add holding: %w", err)
	}
	return nil
}

// RemoveHolding marks a holding removed and drops its usage and ignores.
func (s *Store) RemoveHolding(ctx context.Context, userID generic.UserID, cardID generic.CardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE holdings SET status = 'removed', updated_at = ? WHERE user_id = ? AND card_id = ? AND status = 'active'",
		timestamp(), userID, cardID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}
	for _, table := range []string{"benefit_usage", "benefit_ignores"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND card_id = ?", userID, cardID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateAnniversary re-dates an active holding.
func (s *Store) UpdateAnniversary(ctx context.Context, userID generic.UserID, cardID generic.CardID, date generic.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE holdings SET anniversary_date = ?, updated_at = ? WHERE user_id = ? AND card_id = ? AND status = 'active'",
		date.String(), timestamp(), userID, cardID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}
	return nil
}

// ListHoldings returns a user's holdings with usage, ordered by card ID.
// Removed holdings are included only when includeRemoved is set.
func (s *Store) ListHoldings(ctx context.Context, userID generic.UserID, includeRemoved bool) ([]wallet.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadHoldings(ctx, userID, "", includeRemoved)
}

// GetHolding returns one active holding or a NotFoundError.
func (s *Store) GetHolding(ctx context.Context, userID generic.UserID, cardID generic.CardID) (wallet.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holdings, err := s.loadHoldings(ctx, userID, cardID, false)
	if err != nil {
		return wallet.Holding{}, err
	}
	if len(holdings) == 0 {
		return wallet.Holding{}, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}
	return holdings[0], nil
}

// ListUsers returns every user with at least one holding row.
func (s *Store) ListUsers(ctx context.Context) ([]generic.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM holdings ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []generic.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, generic.UserID(u))
	}
	return users, rows.Err()
}

func (s *Store) loadHoldings(ctx context.Context, userID generic.UserID, cardID generic.CardID, includeRemoved bool) ([]wallet.Holding, error) {
	query := "SELECT card_id, status, anniversary_date FROM holdings WHERE user_id = ?"
	args := []any{userID}
	if cardID != "" {
		query += " AND card_id = ?"
		args = append(args, cardID)
	}
	if !includeRemoved {
		query += " AND status = 'active'"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	byCard := make(map[generic.CardID]*wallet.Holding)
	for rows.Next() {
		var id, status string
		var anniv sql.NullString
		if err := rows.Scan(&id, &status, &anniv); err != nil {
			rows.Close()
			return nil, err
		}
		h := &wallet.Holding{
			CardID:   generic.CardID(id),
			Status:   status,
			Benefits: map[generic.BenefitIndex]wallet.BenefitUsage{},
		}
		if anniv.Valid {
			d, err := generic.ParseDate("anniversary_date", anniv.String)
			if err != nil {
				rows.Close()
				return nil, err
			}
			h.AnniversaryDate = &d
		}
		byCard[h.CardID] = h
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byCard) == 0 {
		return nil, nil
	}

	if err := s.loadUsage(ctx, userID, byCard); err != nil {
		return nil, err
	}
	if err := s.loadIgnores(ctx, userID, byCard); err != nil {
		return nil, err
	}

	out := make([]wallet.Holding, 0, len(byCard))
	for _, h := range byCard {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (s *Store) loadUsage(ctx context.Context, userID generic.UserID, byCard map[generic.CardID]*wallet.Holding) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT card_id, benefit_index, period_key, used, status FROM benefit_usage WHERE user_id = ?", userID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cardID, key, used, status string
		var idx int
		if err := rows.Scan(&cardID, &idx, &key, &used, &status); err != nil {
			return err
		}
		h, ok := byCard[generic.CardID(cardID)]
		if !ok {
			continue
		}
		u := h.Benefits[generic.BenefitIndex(idx)]
		if u.Periods == nil {
			u.Periods = map[generic.PeriodKey]wallet.UsageRecord{}
		}
		u.Periods[generic.PeriodKey(key)] = wallet.UsageRecord{
			Used:   parseMoney(used),
			Status: wallet.ParseUsageStatus(status),
		}
		h.Benefits[generic.BenefitIndex(idx)] = u
	}
	return rows.Err()
}

func (s *Store) loadIgnores(ctx context.Context, userID generic.UserID, byCard map[generic.CardID]*wallet.Holding) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT card_id, benefit_index FROM benefit_ignores WHERE user_id = ? AND is_ignored = 1", userID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cardID string
		var idx int
		if err := rows.Scan(&cardID, &idx); err != nil {
			return err
		}
		h, ok := byCard[generic.CardID(cardID)]
		if !ok {
			continue
		}
		u := h.Benefits[generic.BenefitIndex(idx)]
		u.IsIgnored = true
		h.Benefits[generic.BenefitIndex(idx)] = u
	}
	return rows.Err()
}

// =============================================================================
// USAGE
// =============================================================================

// UsageWrite is one update-benefit call as the server applies it.
type UsageWrite struct {
	Amount    generic.Money
	Increment bool
	// StatusOf derives the stored status from the resulting used amount.
	StatusOf func(used generic.Money) wallet.UsageStatus
}

// SaveUsage writes one period's usage and returns the stored record.
func (s *Store) SaveUsage(ctx context.Context, userID generic.UserID, key generic.UsageKey, w UsageWrite) (wallet.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wallet.UsageRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireActive(ctx, tx, userID, key.CardID); err != nil {
		return wallet.UsageRecord{}, err
	}

	used := w.Amount
	if w.Increment {
		var prev string
		err := tx.QueryRowContext(ctx,
			"SELECT used FROM benefit_usage WHERE user_id = ? AND card_id = ? AND benefit_index = ? AND period_key = ?",
			userID, key.CardID, int(key.BenefitIndex), key.PeriodKey).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return wallet.UsageRecord{}, err
		default:
			used = parseMoney(prev).Add(w.Amount)
		}
	}

	status := wallet.StatusFor(used, used)
	if w.StatusOf != nil {
		status = w.StatusOf(used)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO benefit_usage (user_id, card_id, benefit_index, period_key, used, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, card_id, benefit_index, period_key) DO UPDATE SET
			used = excluded.used,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, userID, key.CardID, int(key.BenefitIndex), key.PeriodKey, used.Value.String(), string(status), timestamp())
	if err != nil {
		return wallet.UsageRecord{}, fmt.Errorf("failed to save usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return wallet.UsageRecord{}, err
	}
	return wallet.UsageRecord{Used: used, Status: status}, nil
}

// SetIgnored sets a benefit's ignore flag.
func (s *Store) SetIgnored(ctx context.Context, userID generic.UserID, cardID generic.CardID, benefit generic.BenefitIndex, ignored bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireActive(ctx, tx, userID, cardID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO benefit_ignores (user_id, card_id, benefit_index, is_ignored, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, card_id, benefit_index) DO UPDATE SET
			is_ignored = excluded.is_ignored,
			updated_at = excluded.updated_at
	`, userID, cardID, int(benefit), ignored, timestamp())
	if err != nil {
		return fmt.Errorf("failed to set ignore: %w", err)
	}
	return tx.Commit()
}

func requireActive(ctx context.Context, tx *sql.Tx, userID generic.UserID, cardID generic.CardID) error {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT status FROM holdings WHERE user_id = ? AND card_id = ?", userID, cardID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && status != wallet.HoldingActive) {
		return &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all wallet data, and the catalog too when withCatalog is set
// (for tests and demo scenarios).
func (s *Store) Reset(ctx context.Context, withCatalog bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"benefit_usage", "benefit_ignores", "holdings"}
	if withCatalog {
		tables = append(tables, "cards")
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// ResetUser clears one user's wallet.
func (s *Store) ResetUser(ctx context.Context, userID generic.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"benefit_usage", "benefit_ignores", "holdings"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
			return err
		}
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseMoney(s string) generic.Money {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return generic.Zero
	}
	return generic.MoneyFromDecimal(d)
}
