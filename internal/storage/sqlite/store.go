// Package sqlite stores listings in a single-file SQLite database.
//
// Cells are stored verbatim as TEXT in listing.Row() order, so the SQLite
// and CSV stores hold byte-identical data and stay interchangeable.
// Duplicate detection rides on two UNIQUE columns (addr_key, url_key)
// together with INSERT OR IGNORE: a listing whose address or source URL
// is already present inserts zero rows.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // CGo-free SQLite driver

	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Store implements storage.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens the SQLite store, creating the database file and the listings
// table on first use. The database file path goes in cfg.DSN; cfg.Path is
// accepted as an alias so the file-backed backends read the same config.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = strings.TrimSpace(cfg.Path)
	}
	if dsn == "" {
		return nil, errors.New("sqlite: missing dsn")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers anyway; a single connection sidesteps
	// SQLITE_BUSY instead of retrying around it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTableSQL()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create table: %w", err)
	}
	return &Store{db: db}, nil
}

// HasURL implements storage.Store.
func (s *Store) HasURL(ctx context.Context, url string) (bool, error) {
	key := storage.NormalizeKey(url)
	if key == "" {
		return false, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM listings WHERE url_key = ?)", key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: has url: %w", err)
	}
	return n == 1, nil
}

// Append implements storage.Store.
func (s *Store) Append(ctx context.Context, l listing.Listing) (bool, error) {
	args, err := insertArgs(l)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, insertSQL(), args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert: %w", err)
	}
	return n > 0, nil
}

// All implements storage.Store.
func (s *Store) All(ctx context.Context) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("sqlite: select: %w", err)
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
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		l, err := listing.FromRow(cells)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: select: %w", err)
	}
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error { return s.db.Close() }

// insertArgs builds the argument list for insertSQL: the two dedupe keys
// followed by the row cells. Empty keys become NULL so listings missing an
// address (or scraped from stdin without a URL) never collide with each
// other under the UNIQUE constraints.
func insertArgs(l listing.Listing) ([]any, error) {
	addrKey := storage.AddressKey(l)
	urlKey := storage.URLKey(l)
	if addrKey == "" && urlKey == "" {
		return nil, errors.New("sqlite: listing has neither address nor source URL")
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

func createTableSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS listings (")
	b.WriteString("id INTEGER PRIMARY KEY AUTOINCREMENT, ")
	b.WriteString("addr_key TEXT UNIQUE, ")
	b.WriteString("url_key TEXT UNIQUE")
	for _, c := range storage.SQLColumns {
		b.WriteString(", ")
		b.WriteString(sqlIdent(c))
		b.WriteString(" TEXT NOT NULL")
	}
	b.WriteString(")")
	return b.String()
}

func insertSQL() string {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO listings (addr_key, url_key")
	for _, c := range storage.SQLColumns {
		b.WriteString(", ")
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (?, ?")
	for range storage.SQLColumns {
		b.WriteString(", ?")
	}
	b.WriteString(")")
	return b.String()
}

func selectAllSQL() string {
	cols := make([]string, len(storage.SQLColumns))
	for i, c := range storage.SQLColumns {
		cols[i] = sqlIdent(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM listings ORDER BY id"
}

// sqlIdent double-quotes an identifier, escaping embedded quotes.
func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
