// Package store remembers, across sessions, where each feed was scrolled to:
// its last in-view keys and the measured heights of its items. No item
// content is persisted; feeds are always fetched fresh.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/threadline/internal/feed"
)

// maxHeights bounds how many item heights are kept per feed.
const maxHeights = 200

// Store handles SQLite persistence. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Position is the saved scroll state of one feed.
type Position struct {
	InView  []string
	Heights map[string]float64
	SavedAt time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		feed_id TEXT PRIMARY KEY,
		in_view TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS heights (
		feed_id TEXT NOT NULL,
		item_key TEXT NOT NULL,
		height REAL NOT NULL,
		PRIMARY KEY (feed_id, item_key)
	);

	CREATE INDEX IF NOT EXISTS idx_positions_saved ON positions(saved_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// PositionOf extracts what is worth saving from a feed snapshot: the
// in-view keys and the heights of measured items, earliest first.
func PositionOf(f feed.Feed) Position {
	p := Position{Heights: make(map[string]float64)}
	for k := range f.InViewKeys {
		p.InView = append(p.InView, k)
	}
	sort.Strings(p.InView)
	for _, it := range f.Items {
		if len(p.Heights) >= maxHeights {
			break
		}
		if it.Measured() {
			p.Heights[it.Key] = it.Height
		}
	}
	return p
}

// SavePosition replaces the stored position of feedID.
func (s *Store) SavePosition(feedID string, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inView, err := json.Marshal(p.InView)
	if err != nil {
		return fmt.Errorf("marshal in-view keys: %w", err)
	}
	savedAt := p.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO positions (feed_id, in_view, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(feed_id) DO UPDATE SET in_view = excluded.in_view, saved_at = excluded.saved_at
	`, feedID, string(inView), savedAt.UTC()); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM heights WHERE feed_id = ?`, feedID); err != nil {
		return fmt.Errorf("clear heights: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO heights (feed_id, item_key, height) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for key, h := range p.Heights {
		if h <= 0 {
			continue
		}
		if _, err := stmt.Exec(feedID, key, h); err != nil {
			return fmt.Errorf("save height: %w", err)
		}
	}

	return tx.Commit()
}

// LoadPosition returns the stored position of feedID, if any.
func (s *Store) LoadPosition(feedID string) (Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		raw     string
		savedAt time.Time
	)
	err := s.db.QueryRow(`SELECT in_view, saved_at FROM positions WHERE feed_id = ?`, feedID).Scan(&raw, &savedAt)
	if err == sql.ErrNoRows {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("load position: %w", err)
	}

	p := Position{SavedAt: savedAt, Heights: make(map[string]float64)}
	if err := json.Unmarshal([]byte(raw), &p.InView); err != nil {
		return Position{}, false, fmt.Errorf("parse in-view keys: %w", err)
	}

	rows, err := s.db.Query(`SELECT item_key, height FROM heights WHERE feed_id = ?`, feedID)
	if err != nil {
		return Position{}, false, fmt.Errorf("load heights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			h   float64
		)
		if err := rows.Scan(&key, &h); err != nil {
			return Position{}, false, err
		}
		p.Heights[key] = h
	}
	return p, true, rows.Err()
}

// Prune drops positions saved before cutoff. It returns how many feeds
// were forgotten.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		DELETE FROM heights WHERE feed_id IN (SELECT feed_id FROM positions WHERE saved_at < ?)
	`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("prune heights: %w", err)
	}
	res, err := s.db.Exec(`DELETE FROM positions WHERE saved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune positions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
