package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps every partition in a single sqlite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dsn
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache storage: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY between background stores.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStorageInFolder opens the cache database inside folder
func NewSQLiteStorageInFolder(folder string) (*SQLiteStorage, error) {
	return NewSQLiteStorage(filepath.Join(folder, "cache.db"))
}

func (s *SQLiteStorage) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite cache storage: %w", err)
	}

	ddl := []string{`
CREATE TABLE IF NOT EXISTS partitions (
	name TEXT PRIMARY KEY,
	seq INTEGER NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS entries (
	partition_name TEXT NOT NULL,
	entry_key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (partition_name, entry_key)
);`}

	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize cache storage schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO partitions (name, seq) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM partitions))`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("create partition %s: %w", name, err)
	}
	return &sqlitePartition{db: s.db, name: name}, nil
}

func (s *SQLiteStorage) Get(name string) (GenericCache, error) {
	var found string
	err := s.db.QueryRow(`SELECT name FROM partitions WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup partition %s: %w", name, err)
	}
	return &sqlitePartition{db: s.db, name: name}, nil
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE partition_name = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.Exec(`DELETE FROM partitions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM partitions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type sqlitePartition struct {
	db   *sql.DB
	name string
}

func (p *sqlitePartition) Get(key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(`SELECT value FROM entries WHERE partition_name = ? AND entry_key = ?`, p.name, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entry %s/%s: %w", p.name, key, err)
	}
	return value, nil
}

func (p *sqlitePartition) Set(key string, value []byte) error {
	_, err := p.db.Exec(`
INSERT INTO entries (partition_name, entry_key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (partition_name, entry_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p.name, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write entry %s/%s: %w", p.name, key, err)
	}
	return nil
}

func (p *sqlitePartition) Delete(key string) (bool, error) {
	res, err := p.db.Exec(`DELETE FROM entries WHERE partition_name = ? AND entry_key = ?`, p.name, key)
	if err != nil {
		return false, fmt.Errorf("delete entry %s/%s: %w", p.name, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *sqlitePartition) Keys() ([]string, error) {
	rows, err := p.db.Query(`SELECT entry_key FROM entries WHERE partition_name = ? ORDER BY entry_key`, p.name)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", p.name, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *sqlitePartition) Init() error {
	return nil
}
