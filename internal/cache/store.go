package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// Entry is one cached transform result plus bookkeeping.
type Entry struct {
	Signature string          `json:"signature"`
	CodeOut   []byte          `json:"code_out"`
	ChangeLog types.ChangeLog `json:"change_log"`
	CreatedAt time.Time       `json:"created_at"`
	LastHitAt time.Time       `json:"last_hit_at"`
	HitCount  int64           `json:"hit_count"`
	SizeBytes int64           `json:"size_bytes"`
}

// Stats summarizes a store for maintenance and the CLI.
type Stats struct {
	Entries    int64 `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	TotalHits  int64 `json:"total_hits"`
}

// Store is the persistence contract shared by the primary (SQLite) and
// secondary (in-memory) stores. Get returns (nil, nil) on a clean miss.
type Store interface {
	Get(ctx context.Context, signature string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Touch(ctx context.Context, signature string, at time.Time) error
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// ----------------------------------------------------------------------------
// SQLite primary store
// ----------------------------------------------------------------------------

// SQLiteStore is the primary cache store. One writer at a time; WAL mode
// keeps readers unblocked.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and migrates) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryCache, "NewSQLiteStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CacheDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CacheDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Cache("cache store ready at %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			signature   TEXT PRIMARY KEY,
			code_out    BLOB NOT NULL,
			change_log  TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			last_hit_at INTEGER NOT NULL,
			hit_count   INTEGER NOT NULL DEFAULT 0,
			size_bytes  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_last_hit ON cache(last_hit_at)`,
		`CREATE TABLE IF NOT EXISTS transforms (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			signature    TEXT NOT NULL,
			status       TEXT NOT NULL,
			duration_ms  INTEGER NOT NULL,
			applied      INTEGER NOT NULL,
			advisory     INTEGER NOT NULL,
			guardrailed  INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transforms_sig ON transforms(signature)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("cache migration failed: %w", err)
		}
	}
	return nil
}

// Get probes the cache by signature.
func (s *SQLiteStore) Get(ctx context.Context, signature string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT code_out, change_log, created_at, last_hit_at, hit_count, size_bytes
		 FROM cache WHERE signature = ?`, signature)

	var (
		e         Entry
		changeLog string
		created   int64
		lastHit   int64
	)
	err := row.Scan(&e.CodeOut, &changeLog, &created, &lastHit, &e.HitCount, &e.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	if err := json.Unmarshal([]byte(changeLog), &e.ChangeLog); err != nil {
		return nil, fmt.Errorf("cache entry corrupt: %w", err)
	}
	e.Signature = signature
	e.CreatedAt = time.UnixMilli(created)
	e.LastHitAt = time.UnixMilli(lastHit)
	return &e, nil
}

// Put stores an entry, replacing any previous value for the signature.
func (s *SQLiteStore) Put(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changeLog, err := json.Marshal(e.ChangeLog)
	if err != nil {
		return fmt.Errorf("failed to marshal change log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache
		 (signature, code_out, change_log, created_at, last_hit_at, hit_count, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Signature, e.CodeOut, string(changeLog),
		e.CreatedAt.UnixMilli(), e.LastHitAt.UnixMilli(), e.HitCount, e.SizeBytes)
	if err != nil {
		return fmt.Errorf("cache put failed: %w", err)
	}
	return nil
}

// Touch refreshes last_hit_at and bumps the hit counter.
func (s *SQLiteStore) Touch(ctx context.Context, signature string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE cache SET last_hit_at = ?, hit_count = hit_count + 1 WHERE signature = ?`,
		at.UnixMilli(), signature)
	if err != nil {
		return fmt.Errorf("cache touch failed: %w", err)
	}
	return nil
}

// Sweep evicts entries whose last hit is older than the cutoff.
func (s *SQLiteStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE last_hit_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache sweep failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Cache("swept %d stale cache entries", n)
	}
	return n, nil
}

// Stats reports entry count, stored bytes and accumulated hits.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(hit_count), 0) FROM cache`)
	if err := row.Scan(&st.Entries, &st.TotalBytes, &st.TotalHits); err != nil {
		return st, fmt.Errorf("cache stats failed: %w", err)
	}
	return st, nil
}

// RecordTransform appends one row to the historical transform log.
func (s *SQLiteStore) RecordTransform(ctx context.Context, signature, status string, duration time.Duration, applied, advisory, guardrailed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transforms (signature, status, duration_ms, applied, advisory, guardrailed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		signature, status, duration.Milliseconds(), applied, advisory, guardrailed, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("transform log insert failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ----------------------------------------------------------------------------
// In-memory secondary store
// ----------------------------------------------------------------------------

// MemoryStore is the secondary store: a bounded map evicting least recently
// hit entries first. It backs the cache when the primary is unavailable.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	max     int
}

// NewMemoryStore builds a secondary store holding at most max entries.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1024
	}
	return &MemoryStore{entries: make(map[string]*Entry), max: max}
}

func (m *MemoryStore) Get(ctx context.Context, signature string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[signature]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Put(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.max {
		m.evictOldest()
	}
	cp := *e
	m.entries[e.Signature] = &cp
	return nil
}

// evictOldest removes the least recently hit entry. Caller holds the lock.
func (m *MemoryStore) evictOldest() {
	type aged struct {
		sig string
		at  time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for sig, e := range m.entries {
		all = append(all, aged{sig, e.LastHitAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < len(all) && len(m.entries) >= m.max; i++ {
		delete(m.entries, all[i].sig)
	}
}

func (m *MemoryStore) Touch(ctx context.Context, signature string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[signature]; ok {
		e.LastHitAt = at
		e.HitCount++
	}
	return nil
}

func (m *MemoryStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for sig, e := range m.entries {
		if e.LastHitAt.Before(olderThan) {
			delete(m.entries, sig)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Entries: int64(len(m.entries))}
	for _, e := range m.entries {
		st.TotalBytes += e.SizeBytes
		st.TotalHits += e.HitCount
	}
	return st, nil
}

func (m *MemoryStore) Close() error { return nil }
