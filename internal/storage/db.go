package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go driver and the default.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver.
	DriverMattn = "sqlite3"
)

// ErrNotFound is returned when an instance row does not exist.
var ErrNotFound = errors.New("not found")

// DB is the SQLite-backed store.
type DB struct {
	db     *sql.DB
	driver string
}

// InstanceRecord is one persisted module instance. Data holds the encoded
// configuration; Type and Version are duplicated for querying.
type InstanceRecord struct {
	ID        string
	Type      string
	Version   string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeDriver maps a configured driver name to a registered one.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMattn, "mattn":
		return DriverMattn
	default:
		return DriverModernc
	}
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path, driver string) (*DB, error) {
	driver = NormalizeDriver(driver)
	var dsn string
	if driver == DriverModernc {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	} else {
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{db: db, driver: driver}, nil
}

// Driver returns the driver the database was opened with.
func (d *DB) Driver() string { return d.driver }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// KV returns the key/value view of the database.
func (d *DB) KV() KV { return &sqlKV{db: d.db} }

// PutInstance inserts or replaces an instance row.
func (d *DB) PutInstance(rec InstanceRecord) error {
	_, err := d.db.Exec(`
		INSERT INTO instances (id, type, version, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Type, rec.Version, string(rec.Data),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put instance %s: %w", rec.ID, err)
	}
	return nil
}

// GetInstance loads one instance row.
func (d *DB) GetInstance(id string) (InstanceRecord, error) {
	row := d.db.QueryRow(`SELECT id, type, version, data, created_at, updated_at FROM instances WHERE id = ?`, id)
	rec, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return InstanceRecord{}, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// DeleteInstance removes an instance row. Missing rows are not an error.
func (d *DB) DeleteInstance(id string) error {
	if _, err := d.db.Exec(`DELETE FROM instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	return nil
}

// ListInstances returns every instance row ordered by creation time.
func (d *DB) ListInstances() ([]InstanceRecord, error) {
	rows, err := d.db.Query(`SELECT id, type, version, data, created_at, updated_at FROM instances ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []InstanceRecord
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(s scanner) (InstanceRecord, error) {
	var (
		rec              InstanceRecord
		data             string
		created, updated string
	)
	if err := s.Scan(&rec.ID, &rec.Type, &rec.Version, &data, &created, &updated); err != nil {
		return InstanceRecord{}, err
	}
	rec.Data = []byte(data)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type sqlKV struct {
	db *sql.DB
}

func (s *sqlKV) Get(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *sqlKV) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *sqlKV) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (s *sqlKV) Keys(prefix string) ([]string, error) {
	// substr avoids LIKE wildcard escaping for prefixes containing % or _.
	rows, err := s.db.Query(`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", prefix, err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
