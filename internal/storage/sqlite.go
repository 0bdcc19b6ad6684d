package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/acbmarket/feedctl/internal/verify"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the client instance id and its
// verification records. It implements verify.Store.
type Store struct {
	db       *sql.DB
	instance Instance
}

var _ verify.Store = (*Store)(nil)

// pragmas run on every new database handle.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
}

// Open opens the feedctl database in dataDir, creating it if needed, and
// brings its schema up to date. ":memory:" opens a throwaway database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != dsn {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "feedctl.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: the in-memory database is per connection, and the CLI
	// and server never need more.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if err := s.loadInstance(); err != nil {
		return fmt.Errorf("loading client instance: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Instance returns this client's instance identity.
func (s *Store) Instance() Instance { return s.instance }

type migration struct {
	version int
	name    string
}

// pendingMigrations lists embedded migrations not yet recorded in
// schema_version, in version order.
func (s *Store) pendingMigrations() ([]migration, error) {
	applied, err := s.AppliedMigrations()
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	var pending []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		v, err := parseMigrationVersion(e.Name())
		if err != nil {
			return nil, err
		}
		if !done[v] {
			pending = append(pending, migration{version: v, name: e.Name()})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func (s *Store) migrate() error {
	const versionTable = `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(versionTable); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	pending, err := s.pendingMigrations()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := s.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func (s *Store) apply(m migration) error {
	body, err := migrationsFS.ReadFile("migrations/" + m.name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", m.name, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return fmt.Errorf("applying migration %d: %w", m.version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

// parseMigrationVersion reads the numeric prefix of names like 001_x.sql.
func parseMigrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %q has no version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %q: bad version: %w", name, err)
	}
	return v, nil
}

// AppliedMigrations returns applied migration versions, lowest first.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Client instance ---

func (s *Store) loadInstance() error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO client_instance (singleton, instance_id, created_at) VALUES (1, ?, ?)`,
		uuid.New().String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	var createdAt string
	if err := s.db.QueryRow(`SELECT instance_id, created_at FROM client_instance WHERE singleton = 1`).
		Scan(&s.instance.ID, &createdAt); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	s.instance.CreatedAt = t
	return nil
}

// --- Verification records ---

// GetRecord returns this instance's record for action, or ErrNotFound.
func (s *Store) GetRecord(action string) (verify.Record, error) {
	var grantedAt string
	var ttlMS int64
	err := s.db.QueryRow(`
		SELECT granted_at, ttl_ms FROM verification_records
		WHERE instance_id = ? AND action = ?`, s.instance.ID, action,
	).Scan(&grantedAt, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return verify.Record{}, ErrNotFound
	}
	if err != nil {
		return verify.Record{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, grantedAt)
	if err != nil {
		return verify.Record{}, fmt.Errorf("parsing granted_at: %w", err)
	}
	return verify.Record{
		Action:    action,
		GrantedAt: t,
		TTL:       time.Duration(ttlMS) * time.Millisecond,
	}, nil
}

// LoadRecord implements verify.Store.
func (s *Store) LoadRecord(action string) (verify.Record, bool, error) {
	rec, err := s.GetRecord(action)
	if errors.Is(err, ErrNotFound) {
		return verify.Record{}, false, nil
	}
	if err != nil {
		return verify.Record{}, false, err
	}
	return rec, true, nil
}

// SaveRecord replaces this instance's record for rec.Action.
func (s *Store) SaveRecord(rec verify.Record) error {
	_, err := s.db.Exec(`
		INSERT INTO verification_records (instance_id, action, granted_at, ttl_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(instance_id, action) DO UPDATE SET granted_at = excluded.granted_at, ttl_ms = excluded.ttl_ms`,
		s.instance.ID, rec.Action, rec.GrantedAt.UTC().Format(time.RFC3339Nano), rec.TTL.Milliseconds(),
	)
	return err
}

// DeleteRecord removes this instance's record for action. Deleting a
// missing record is not an error.
func (s *Store) DeleteRecord(action string) error {
	_, err := s.db.Exec(`DELETE FROM verification_records WHERE instance_id = ? AND action = ?`, s.instance.ID, action)
	return err
}

// ClearRecords removes every record of this instance.
func (s *Store) ClearRecords() error {
	_, err := s.db.Exec(`DELETE FROM verification_records WHERE instance_id = ?`, s.instance.ID)
	return err
}

// CountRecords returns the number of records stored for this instance.
func (s *Store) CountRecords() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM verification_records WHERE instance_id = ?`, s.instance.ID).Scan(&n)
	return n, err
}
