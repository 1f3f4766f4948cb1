package clients

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlListClients = `SELECT id, name, category, code, created_at
		FROM clients ORDER BY created_at, rowid`

	sqlLookupClient = `SELECT id, name, category, code, created_at
		FROM clients WHERE code = ?`

	sqlCodeExists = `SELECT EXISTS(SELECT 1 FROM clients WHERE code = ?)`

	sqlInsertClient = `INSERT INTO clients (id, name, category, code, created_at)
		VALUES (?, ?, ?, ?, ?)`

	sqlDeleteClient = `DELETE FROM clients WHERE id = ?`

	sqlDeleteAll = `DELETE FROM clients`
)

// SQLiteStore is a Store backed by a SQLite database. The schema is
// managed by embedded goose migrations.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations. Use ":memory:" for a throwaway store.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("clients: opening database %s: %w", dbPath, err)
	}

	// Sole writer; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("client directory ready", slog.String("db_path", dbPath))

	return &SQLiteStore{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations with the goose v3
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("clients: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("clients: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("clients: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// List returns every client in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, sqlListClients)
	if err != nil {
		return nil, fmt.Errorf("clients: listing: %w", err)
	}
	defer rows.Close()

	out := []Client{}

	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clients: listing: %w", err)
	}

	return out, nil
}

// Lookup returns the client with the given public code.
func (s *SQLiteStore) Lookup(ctx context.Context, code string) (Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, sqlLookupClient, strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, fmt.Errorf("%w: code %q", ErrNotFound, code)
	}

	return c, err
}

// Add inserts a new client. Codes are unique.
func (s *SQLiteStore) Add(ctx context.Context, n NewClient) (Client, error) {
	n, err := n.normalize()
	if err != nil {
		return Client{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Client{}, fmt.Errorf("clients: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists bool
	if err := tx.QueryRowContext(ctx, sqlCodeExists, n.Code).Scan(&exists); err != nil {
		return Client{}, fmt.Errorf("clients: checking code: %w", err)
	}

	if exists {
		return Client{}, fmt.Errorf("%w: %q", ErrDuplicateCode, n.Code)
	}

	c := newEntry(n, s.nowFunc())
	if err := insertClient(ctx, tx, c); err != nil {
		return Client{}, err
	}

	if err := tx.Commit(); err != nil {
		return Client{}, fmt.Errorf("clients: committing: %w", err)
	}

	s.logger.Info("client added", slog.String("code", c.Code), slog.String("id", c.ID))

	return c, nil
}

// Remove deletes the client with the given ID.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteClient, id)
	if err != nil {
		return fmt.Errorf("clients: removing %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite always reports rows affected
		s.logger.Info("client removed", slog.String("id", id))
	}

	return nil
}

// Migrate replaces the directory with the legacy seed list in one
// transaction.
func (s *SQLiteStore) Migrate(ctx context.Context) ([]Client, error) {
	seeded := seedEntries(s.nowFunc())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("clients: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlDeleteAll); err != nil {
		return nil, fmt.Errorf("clients: clearing directory: %w", err)
	}

	for _, c := range seeded {
		if err := insertClient(ctx, tx, c); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("clients: committing: %w", err)
	}

	s.logger.Info("client directory migrated", slog.Int("count", len(seeded)))

	return seeded, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertClient(ctx context.Context, tx *sql.Tx, c Client) error {
	_, err := tx.ExecContext(ctx, sqlInsertClient, c.ID, c.Name, c.Category, c.Code, c.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("clients: inserting %q: %w", c.Code, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var (
		c       Client
		created int64
	)

	if err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Code, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, err
		}

		return Client{}, fmt.Errorf("clients: scanning row: %w", err)
	}

	c.CreatedAt = time.Unix(0, created).UTC()

	return c, nil
}
