package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config defines standard SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int // Small pool; WAL allows concurrent readers alongside one writer
}

// DefaultConfig returns the recommended pool configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs.
// The PRAGMAs ride in the DSN so they apply to every connection in the pool:
// lease refreshers and HTTP handlers hit the database from many goroutines
// and all of them must see WAL mode and the busy timeout.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	// Format: file:path?_pragma=foo(bar)&_pragma=baz(qux)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	// Connectivity check
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
