package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Options configures the file-backed stores.
type Options struct {
	// WatchExternal enables fsnotify watching for writes from other processes.
	WatchExternal bool

	// Debounce batches rapid file events (default: DefaultDebounce).
	Debounce time.Duration

	// Logger for store activity (default: discard).
	Logger *log.Logger
}

func (o *Options) withDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Debounce <= 0 {
		out.Debounce = DefaultDebounce
	}
	if out.Logger == nil {
		out.Logger = log.New(io.Discard, "", 0)
	}
	return &out
}

// SQLite stores values in a kv table of an embedded SQLite database.
// WAL mode lets several processes open the same file; each process's
// watcher picks up the others' commits.
type SQLite struct {
	conn *sql.DB
	path string

	writeMu sync.Mutex
	seen    *snapshot
	notify  *notifier
	watcher *dirWatcher
	logger  *log.Logger

	closeOnce sync.Once
}

// OpenSQLite opens or creates the database at path.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string, opts *Options) (*SQLite, error) {
	opts = opts.withDefaults()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{
		conn:   conn,
		path:   path,
		seen:   newSnapshot(),
		notify: newNotifier(opts.Logger),
		logger: opts.Logger,
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	current, err := s.readAll(context.Background())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.seen.diff(current)

	if opts.WatchExternal {
		base := filepath.Base(path)
		match := func(name string) bool {
			return name == base || name == base+"-wal"
		}
		w, err := startDirWatcher(dir, match, opts.Debounce, s.refresh, opts.Logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.watcher = w
	}

	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB,
		updated_at TEXT NOT NULL
	);`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Get implements Store.Get.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.Set.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	s.writeMu.Lock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		_ = tx.Rollback()
		s.writeMu.Unlock()
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("failed to commit key %s: %w", key, err)
	}

	old := s.seen.record(key, nonNil(value))
	s.writeMu.Unlock()

	s.notify.emit(ChangeEvent{Key: key, OldValue: old, NewValue: cloneBytes(nonNil(value))})
	return nil
}

// OnChange implements Store.OnChange.
func (s *SQLite) OnChange(fn ChangeFunc) func() {
	return s.notify.subscribe(fn)
}

// Close implements Store.Close.
// Performs a WAL checkpoint so other readers see a compact file.
func (s *SQLite) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			if err := s.watcher.stop(); err != nil {
				s.logger.Printf("Error stopping watcher: %v", err)
			}
		}
		s.notify.close()

		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
		if err := s.conn.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close database: %w", err)
		}
	})
	return closeErr
}

// refresh re-reads every key and reports the ones another process changed.
func (s *SQLite) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.writeMu.Lock()
	current, err := s.readAll(ctx)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.Printf("Error re-reading store after external change: %v", err)
		return
	}
	events := s.seen.diff(current)
	s.writeMu.Unlock()

	for _, ev := range events {
		s.logger.Printf("External change: %s", ev.Key)
		s.notify.emit(ev)
	}
}

func (s *SQLite) readAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		out[key] = nonNil(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return out, nil
}

// nonNil maps a stored nil to an empty value; nil is reserved for "undefined".
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// isTempName reports whether name is a temp file written by File.
func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}
