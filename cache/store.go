// Package cache stores decompilation results by the content hash of the
// compiled script, so unchanged inputs are not decompiled twice.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("ncsdecomp.cache")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store is closed")

// Store is a keyed entry store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the entry for key, or false when there is none.
	Get(key string) (*Entry, bool, error)
	Put(key string, e *Entry) error
	Close() error
}

// Open returns a SQLite store at path, or a memory store when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	s, err := OpenSQL(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

// MemoryStore keeps encoded entries in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) (*Entry, bool, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, false, ErrClosed
	}
	if !ok {
		return nil, false, nil
	}
	e, err := UnmarshalEntry(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (m *MemoryStore) Put(key string, e *Entry) error {
	data, err := MarshalEntry(e)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = data
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// ---------------------------------------------------------------------------
// SQLStore
// ---------------------------------------------------------------------------

// SQLStore persists entries in a SQLite database.
type SQLStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQL opens or creates the database at path.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS results (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating table: %w", err)
	}

	log.Debugf("opened cache %s", path)
	return &SQLStore{db: db, path: path}, nil
}

func (s *SQLStore) Get(key string) (*Entry, bool, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, false, ErrClosed
	}

	var data []byte
	err := db.QueryRow("SELECT data FROM results WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: querying %s: %w", key, err)
	}
	e, err := UnmarshalEntry(data)
	if err != nil {
		log.Warningf("dropping unreadable entry %s: %s", key, err.Error())
		return nil, false, nil
	}
	return e, true, nil
}

func (s *SQLStore) Put(key string, e *Entry) error {
	data, err := MarshalEntry(e)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	_, err = s.db.Exec("INSERT OR REPLACE INTO results (key, data) VALUES (?, ?)", key, data)
	if err != nil {
		return fmt.Errorf("cache: saving %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
