// Package postgres stores listings in a Postgres table over pgx.
//
// Cells are stored verbatim as TEXT in listing.Row() order, matching the
// CSV and SQLite stores. Duplicate detection rides on the UNIQUE addr_key
// and url_key columns together with ON CONFLICT DO NOTHING: a listing
// whose address or source URL is already present inserts zero rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/storage"
)

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New connects to Postgres and creates the listings table when missing.
// Creating the table eagerly doubles as the connectivity check, so a bad
// DSN fails at open time instead of on the first append.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres: missing dsn")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// HasURL implements storage.Store.
func (s *Store) HasURL(ctx context.Context, url string) (bool, error) {
	key := storage.NormalizeKey(url)
	if key == "" {
		return false, nil
	}

	var has bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM listings WHERE url_key = $1)", key).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("postgres: has url: %w", err)
	}
	return has, nil
}

// Append implements storage.Store.
func (s *Store) Append(ctx context.Context, l listing.Listing) (bool, error) {
	args, err := insertArgs(l)
	if err != nil {
		return false, err
	}

	cmd, err := s.pool.Exec(ctx, insertSQL(), args...)
	if err != nil {
		return false, fmt.Errorf("postgres: insert: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// All implements storage.Store.
func (s *Store) All(ctx context.Context) ([]listing.Listing, error) {
	rows, err := s.pool.Query(ctx, selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("postgres: select: %w", err)
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		cells := make([]string, len(storage.SQLColumns))
		dests := make([]any, len(cells))
		for i := range cells {
			dests[i] = &cells[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		l, err := listing.FromRow(cells)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: select: %w", err)
	}
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// insertArgs builds the argument list for insertSQL: the two dedupe keys
// followed by the row cells. Empty keys become NULL, and Postgres treats
// NULLs as distinct under UNIQUE, so key-less listings never collide with
// each other.
func insertArgs(l listing.Listing) ([]any, error) {
	addrKey := storage.AddressKey(l)
	urlKey := storage.URLKey(l)
	if addrKey == "" && urlKey == "" {
		return nil, errors.New("postgres: listing has neither address nor source URL")
	}

	row := l.Row()
	args := make([]any, 0, len(row)+2)
	args = append(args, nullKey(addrKey), nullKey(urlKey))
	for _, cell := range row {
		args = append(args, cell)
	}
	return args, nil
}

func nullKey(key string) any {
	if key == "" {
		return nil
	}
	return key
}

// createTableSQL builds the idempotent DDL for the listings table.
//
// Why this exists:
//   - It is pure and deterministic, so the shape of the table (key
//     constraints included) is unit-testable without a database.
func createTableSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS listings (")
	b.WriteString("id BIGSERIAL PRIMARY KEY, ")
	b.WriteString("addr_key TEXT UNIQUE, ")
	b.WriteString("url_key TEXT UNIQUE")
	for _, c := range storage.SQLColumns {
		b.WriteString(", ")
		b.WriteString(pgIdent(c))
		b.WriteString(" TEXT NOT NULL")
	}
	b.WriteString(");")
	return b.String()
}

// insertSQL builds the single-row idempotent INSERT. ON CONFLICT without a
// target matches any unique constraint, which is exactly the either-key
// duplicate rule.
func insertSQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO listings (addr_key, url_key")
	for _, c := range storage.SQLColumns {
		b.WriteString(", ")
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ($1, $2")
	for i := range storage.SQLColumns {
		b.WriteString(fmt.Sprintf(", $%d", i+3))
	}
	b.WriteString(") ON CONFLICT DO NOTHING;")
	return b.String()
}

func selectAllSQL() string {
	cols := make([]string, len(storage.SQLColumns))
	for i, c := range storage.SQLColumns {
		cols[i] = pgIdent(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM listings ORDER BY id;"
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
