// Package store persists marketplace entities in SQLite. Every service call
// runs inside one transaction obtained through InTx.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// timeLayout is fixed width so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store owns the database handle.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens (creating if needed) the marketplace database at dbPath and
// applies the schema. dbPath may be ":memory:".
func Open(driver, dbPath string) (*Store, error) {
	dsn, err := dataSource(driver, dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open market db: %w", err)
	}
	// Single connection: transactions are serialized and an in-memory
	// database stays the same database across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func dataSource(driver, dbPath string) (string, error) {
	switch driver {
	case DriverModernc:
		if dbPath == ":memory:" {
			return "file::memory:?_pragma=foreign_keys(1)", nil
		}
		return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverCgo:
		if dbPath == ":memory:" {
			return "file::memory:?_foreign_keys=1", nil
		}
		return "file:" + dbPath + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back on any error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tx is the repository view bound to one transaction.
type Tx struct {
	tx *sql.Tx
}

// Stats counts rows per table, for operator status output.
type Stats struct {
	Agents       int `json:"agents"`
	Capabilities int `json:"capabilities"`
	Rfps         int `json:"rfps"`
	Proposals    int `json:"proposals"`
	Sessions     int `json:"sessions"`
	Messages     int `json:"messages"`
}

func (t *Tx) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	for table, dst := range map[string]*int{
		"agents":       &st.Agents,
		"capabilities": &st.Capabilities,
		"rfps":         &st.Rfps,
		"proposals":    &st.Proposals,
		"sessions":     &st.Sessions,
		"messages":     &st.Messages,
	} {
		if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
	}
	return st, nil
}

// isUniqueViolation recognizes UNIQUE failures from either driver.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
