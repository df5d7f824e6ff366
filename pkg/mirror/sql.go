package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// SQLStore is a SQL-backed snapshot store.
// It works with any database/sql compatible driver (PostgreSQL, MySQL, SQLite).
// Requires a table with schema:
//
//	CREATE TABLE tabsync_mirrors (
//	    origin VARCHAR(255) NOT NULL,
//	    area SMALLINT NOT NULL,
//	    items TEXT NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
//	    PRIMARY KEY (origin, area)
//	);
//	CREATE INDEX idx_tabsync_mirrors_updated ON tabsync_mirrors(updated_at);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	closed    bool
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite
)

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName string
	dialect   SQLDialect
}

// WithSQLTableName sets the table name for snapshot storage.
// Default: "tabsync_mirrors".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// NewSQLStore creates a new SQL-backed snapshot store.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName: "tabsync_mirrors",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLStore{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
	}
}

// Save upserts a snapshot.
func (s *SQLStore) Save(ctx context.Context, snap *Snapshot) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("mirror: marshal items: %w", err)
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (origin, area, items, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (origin, area) DO UPDATE SET
				items = EXCLUDED.items,
				updated_at = EXCLUDED.updated_at
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (origin, area, items, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				items = VALUES(items),
				updated_at = VALUES(updated_at)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (origin, area, items, updated_at)
			VALUES (?, ?, ?, ?)
		`, s.tableName)
	}

	_, err = s.db.ExecContext(ctx, query, snap.Origin, int(snap.Area), string(items), snap.UpdatedAt)
	return err
}

// Load retrieves a snapshot. Returns (nil, nil) if none exists.
func (s *SQLStore) Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error) {
	if s.closed {
		return nil, ErrStoreClosed{}
	}

	query := fmt.Sprintf(`
		SELECT items, updated_at FROM %s
		WHERE origin = %s AND area = %s
	`, s.tableName, s.placeholder(1), s.placeholder(2))

	var itemsJSON string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, query, origin, int(area)).Scan(&itemsJSON, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var items map[string]string
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, fmt.Errorf("mirror: parse items: %w", err)
	}

	return &Snapshot{
		Origin:    origin,
		Area:      area,
		Items:     items,
		UpdatedAt: updatedAt,
	}, nil
}

// Delete removes a snapshot.
func (s *SQLStore) Delete(ctx context.Context, origin string, area storage.Area) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE origin = %s AND area = %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))
	_, err := s.db.ExecContext(ctx, query, origin, int(area))
	return err
}

// Sweep removes snapshots not updated since the cutoff.
func (s *SQLStore) Sweep(ctx context.Context, olderThan time.Duration) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`DELETE FROM %s WHERE updated_at < %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, cutoff)
	return err
}

// Close marks the store as closed.
// Note: This does not close the underlying database connection,
// as it may be shared with other components.
func (s *SQLStore) Close() error {
	s.closed = true
	return nil
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLStore) placeholder(n int) string {
	switch s.dialect {
	case DialectPostgreSQL:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

// CreateTable creates the snapshot table if it doesn't exist.
// This is a convenience method for development/testing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				origin VARCHAR(255) NOT NULL,
				area SMALLINT NOT NULL,
				items TEXT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (origin, area)
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				origin VARCHAR(255) NOT NULL,
				area SMALLINT NOT NULL,
				items TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (origin, area)
			)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				origin TEXT NOT NULL,
				area INTEGER NOT NULL,
				items TEXT NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (origin, area)
			)
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_updated ON %s(updated_at)
	`, s.tableName, s.tableName)
	if s.dialect == DialectMySQL {
		// MySQL has no IF NOT EXISTS for indexes; try and ignore.
		indexQuery = fmt.Sprintf(`CREATE INDEX idx_%s_updated ON %s(updated_at)`,
			s.tableName, s.tableName)
	}
	s.db.ExecContext(ctx, indexQuery)

	return nil
}
