// Package store caches resolved crop decisions in SQLite so repeated
// requests for the same image, size and hints skip metadata parsing.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/menta2k/image-regions/pkg/filter"
)

// ErrNotFound is returned when no decision is cached for a key.
var ErrNotFound = sql.ErrNoRows

// created_at is stored fixed-width so text comparison orders by time.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store wraps a SQLite database of cached decisions.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision db: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure decision db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS decisions (
    key TEXT PRIMARY KEY,
    decision TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_created_at ON decisions(created_at);
`)
	return err
}

// Get returns the cached result for key, or ErrNotFound.
func (s *Store) Get(key string) (filter.Result, error) {
	var raw string
	err := s.db.QueryRow(`SELECT decision FROM decisions WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return filter.Result{}, err
	}
	var res filter.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return filter.Result{}, fmt.Errorf("decode cached decision %s: %w", key, err)
	}
	return res, nil
}

// Put stores res under key, replacing any earlier entry.
func (s *Store) Put(key string, res filter.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO decisions (key, decision, created_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET decision = excluded.decision, created_at = excluded.created_at
`, key, string(raw), time.Now().UTC().Format(timeLayout))
	return err
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM decisions WHERE key = ?`, key)
	return err
}

// Purge removes entries created before t and returns how many were removed.
func (s *Store) Purge(t time.Time) (int64, error) {
	r, err := s.db.Exec(`DELETE FROM decisions WHERE created_at < ?`, t.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

// Count returns the number of cached decisions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM decisions`).Scan(&n)
	return n, err
}

// Key identifies a decision: the image file version plus everything in the
// request that can change the outcome.
func Key(path string, size int64, modTime time.Time, req filter.Request) string {
	h := sha256.New()
	for _, part := range []string{
		path,
		strconv.FormatInt(size, 10),
		strconv.FormatInt(modTime.UnixNano(), 10),
		strconv.Itoa(req.Width),
		strconv.Itoa(req.Height),
		strconv.FormatFloat(req.DPR, 'g', -1, 64),
		req.Headers.Get(filter.HeaderDPR),
		req.Headers.Get(filter.HeaderDownlink),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
