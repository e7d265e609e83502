// Package postgres implements the storage engine on PostgreSQL.
//
// The physical layout is two-level: a storage_meta catalog row per logical
// database, and one table per logical database holding one row per top-level
// key with the subtree in a jsonb column. Mutations run through stored
// procedures (installed by embedded goose migrations) that update the row
// and pg_notify the change record in the same transaction; subscriptions
// ride LISTEN/NOTIFY on a dedicated connection per subscriber.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/firegres/firegres/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const connectMaxElapsed = 30 * time.Second

// Store is the PostgreSQL-backed storage.Storage.
type Store struct {
	db      *sqlx.DB
	connStr string

	mu        sync.Mutex
	closed    bool
	handles   map[string]*storage.Database
	notifiers map[*notifier]struct{}
}

var _ storage.Storage = (*Store)(nil)

// Open connects to Postgres (retrying transient failures with exponential
// backoff), runs the bootstrap migrations, and returns a ready Store.
// connStr is also handed to each subscription's dedicated listener.
func Open(ctx context.Context, connStr string) (*Store, error) {
	var db *sqlx.DB
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed
	err := backoff.Retry(func() error {
		d, err := sqlx.ConnectContext(ctx, "postgres", connStr)
		if err != nil {
			return err
		}
		db = d
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db, connStr), nil
}

// NewWithDB wraps an existing connection pool without running migrations.
// Exposed for tests that bring their own database (or a mock).
func NewWithDB(db *sqlx.DB, connStr string) *Store {
	return &Store{
		db:        db,
		connStr:   connStr,
		handles:   make(map[string]*storage.Database),
		notifiers: make(map[*notifier]struct{}),
	}
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// checkOpen returns ErrClosed once Close has run.
func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

func (s *Store) CreateDatabase(ctx context.Context, name string) (*storage.Database, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO storage_meta (db_name) VALUES ($1)`, name); err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("registering database %q: %w", name, err)
	}

	table := pq.QuoteIdentifier(name)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			root_key varchar(255) PRIMARY KEY,
			data jsonb,
			created timestamp DEFAULT now(),
			last_modified timestamp DEFAULT now()
		)`, table)); err != nil {
		return nil, fmt.Errorf("creating table for %q: %w", name, err)
	}
	trigger := pq.QuoteIdentifier("update_" + name + "_last_modified")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TRIGGER %s BEFORE UPDATE ON %s
		FOR EACH ROW EXECUTE PROCEDURE update_modified_column()`,
		trigger, table)); err != nil {
		return nil, fmt.Errorf("creating trigger for %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing create of %q: %w", name, err)
	}

	s.mu.Lock()
	handle := storage.NewDatabase(name, s)
	s.handles[name] = handle
	s.mu.Unlock()
	return handle, nil
}

func (s *Store) DeleteDatabase(ctx context.Context, name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := storage.ValidateName(name); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`DELETE FROM storage_meta WHERE db_name = $1`, name)
	if err != nil {
		return fmt.Errorf("unregistering database %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pq.QuoteIdentifier(name))); err != nil {
		return fmt.Errorf("dropping table for %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete of %q: %w", name, err)
	}

	s.mu.Lock()
	delete(s.handles, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetDatabase(ctx context.Context, name string) (*storage.Database, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if h, ok := s.handles[name]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	exists, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	h := storage.NewDatabase(name, s)
	s.handles[name] = h
	return h, nil
}

func (s *Store) ListDatabases(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	if err := s.db.SelectContext(ctx, &names,
		`SELECT db_name FROM storage_meta ORDER BY db_name`); err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return names, nil
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM storage_meta WHERE db_name = $1)`, name); err != nil {
		return false, fmt.Errorf("checking database %q: %w", name, err)
	}
	return exists, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*notifier, 0, len(s.notifiers))
	for n := range s.notifiers {
		open = append(open, n)
	}
	s.notifiers = make(map[*notifier]struct{})
	s.mu.Unlock()

	for _, n := range open {
		_ = n.Cleanup()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing connection pool: %w", err)
	}
	return nil
}

// isUniqueViolation reports a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isUndefinedTable reports a Postgres undefined_table (42P01). The per-LDB
// table is the source of truth for data operations, so a missing table means
// the logical database is gone.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

// dataErr translates low-level errors from per-LDB data statements.
func dataErr(op, name string, err error) error {
	if isUndefinedTable(err) {
		return fmt.Errorf("%s on %q: %w", op, name, storage.ErrNotFound)
	}
	return fmt.Errorf("%s on %q: %w", op, name, err)
}
