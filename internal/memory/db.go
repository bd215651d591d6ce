// Package memory provides the SQLite-backed short-term and long-term
// memory stores.
package memory

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks the lexicographic ordering the stores'
// string comparisons on created_at rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the shared sqlite handle behind the two store views.
type DB struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates the memory database at dbPath.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	d := &DB{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS short_term (
		id          TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		msg_at      TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_short_term_session ON short_term(session_key, seq);
	CREATE INDEX IF NOT EXISTS idx_short_term_created ON short_term(created_at);

	CREATE TABLE IF NOT EXISTS long_term (
		id          TEXT PRIMARY KEY,
		schema      TEXT NOT NULL,
		content     TEXT NOT NULL,
		metadata    TEXT,
		importance  REAL NOT NULL DEFAULT 0,
		tags        TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_long_term_schema ON long_term(schema);
	CREATE INDEX IF NOT EXISTS idx_long_term_created ON long_term(created_at DESC);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *DB) newID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), d.entropy).String()
}

// ShortTerm returns the short-term store view.
func (d *DB) ShortTerm(capacity int, ttl time.Duration) *ShortTermStore {
	return &ShortTermStore{db: d, capacity: capacity, ttl: ttl}
}

// LongTerm returns the long-term store view.
func (d *DB) LongTerm() *LongTermStore {
	return &LongTermStore{db: d}
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
