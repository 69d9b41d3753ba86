// Package storage persists expenses and small key/value state in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var _ service.Storage = (*SQLiteStorage)(nil)

// SQLiteStorage is the document store behind imports and the upload queue.
type SQLiteStorage struct {
	db          *sql.DB
	logger      *slog.Logger
	subscribers map[chan model.ExpenseEvent]struct{}
	done        chan struct{}
	dbPath      string
	subMu       sync.Mutex
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteStorage(dbPath string, logger *slog.Logger) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and :memory: needs exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:          db,
		dbPath:      dbPath,
		logger:      logger,
		subscribers: make(map[chan model.ExpenseEvent]struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Close closes every subscription and the database connection.
func (s *SQLiteStorage) Close() error {
	s.subMu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()

	return s.db.Close()
}

// Path returns the database location.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}
