// Package mssql stores listings in Microsoft SQL Server.
//
// Cells are stored verbatim as NVARCHAR in listing.Row() order, matching
// the other stores. SQL Server has no ON CONFLICT / OR IGNORE, and its
// UNIQUE constraint admits only a single NULL, so the either-key duplicate
// rule is implemented in the insert itself: INSERT ... SELECT ... WHERE
// NOT EXISTS over both keys. That makes appends idempotent for the
// sequential writer this tool is; concurrent writers would need filtered
// unique indexes on top.
//
// Note on driver registration:
//   - This package intentionally does NOT blank-import a SQL Server
//     driver. The application must register the "sqlserver" driver
//     elsewhere (internal/storage/all does).
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/storage"
)

func init() {
	storage.Register("mssql", New)
}

// Store implements storage.Store using database/sql and the "sqlserver"
// driver.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New connects to SQL Server, validates connectivity via PingContext, and
// creates the listings table when missing.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("mssql: missing dsn")
	}

	raw, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}

	// Modest pool: the scan loop is sequential and the map server is
	// read-mostly.
	raw.SetMaxOpenConns(8)
	raw.SetMaxIdleConns(8)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if _, err := raw.ExecContext(ctx, createTableSQL()); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: create table: %w", err)
	}
	return &Store{db: raw}, nil
}

// HasURL implements storage.Store.
func (s *Store) HasURL(ctx context.Context, url string) (bool, error) {
	key := storage.NormalizeKey(url)
	if key == "" {
		return false, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM [listings] WHERE [url_key] = @p1", key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("mssql: has url: %w", err)
	}
	return n > 0, nil
}

// Append implements storage.Store.
func (s *Store) Append(ctx context.Context, l listing.Listing) (bool, error) {
	args, err := insertArgs(l)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, insertSQL(), args...)
	if err != nil {
		return false, fmt.Errorf("mssql: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mssql: insert: %w", err)
	}
	return n > 0, nil
}

// All implements storage.Store.
func (s *Store) All(ctx context.Context) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("mssql: select: %w", err)
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
			return nil, fmt.Errorf("mssql: scan: %w", err)
		}
		l, err := listing.FromRow(cells)
		if err != nil {
			return nil, fmt.Errorf("mssql: decode row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: select: %w", err)
	}
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error { return s.db.Close() }

// insertArgs builds the argument list for insertSQL: the two dedupe keys
// followed by the row cells. Empty keys travel as NULL; the NOT EXISTS
// predicate skips NULL keys, so key-less listings never collide with each
// other.
func insertArgs(l listing.Listing) ([]any, error) {
	addrKey := storage.AddressKey(l)
	urlKey := storage.URLKey(l)
	if addrKey == "" && urlKey == "" {
		return nil, errors.New("mssql: listing has neither address nor source URL")
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

// createTableSQL wraps the CREATE TABLE in an OBJECT_ID guard, which keeps
// opening the store idempotent without IF NOT EXISTS syntax.
func createTableSQL() string {
	var defs strings.Builder
	defs.WriteString("[id] INT IDENTITY(1,1) PRIMARY KEY, ")
	defs.WriteString("[addr_key] NVARCHAR(450) NULL, ")
	defs.WriteString("[url_key] NVARCHAR(450) NULL")
	for _, c := range storage.SQLColumns {
		defs.WriteString(", ")
		defs.WriteString(mssqlIdent(c))
		defs.WriteString(" NVARCHAR(MAX) NOT NULL")
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'listings', N'U') IS NULL BEGIN CREATE TABLE [listings] (%s); END;",
		defs.String(),
	)
}

// insertSQL materializes the incoming listing as a derived table v via
// VALUES, then inserts it only when neither key matches an existing row.
//
// This is pure and deterministic, so placeholder numbering and the
// duplicate predicate are unit-testable without a database.
func insertSQL() string {
	cols := make([]string, 0, len(storage.SQLColumns)+2)
	cols = append(cols, "[addr_key]", "[url_key]")
	for _, c := range storage.SQLColumns {
		cols = append(cols, mssqlIdent(c))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO [listings] (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(c)
	}
	b.WriteString(" FROM (VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	b.WriteString(")) AS v(")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM [listings] t WHERE ")
	b.WriteString("(v.[addr_key] IS NOT NULL AND t.[addr_key] = v.[addr_key])")
	b.WriteString(" OR (v.[url_key] IS NOT NULL AND t.[url_key] = v.[url_key])")
	b.WriteString(")")
	return b.String()
}

func selectAllSQL() string {
	cols := make([]string, len(storage.SQLColumns))
	for i, c := range storage.SQLColumns {
		cols[i] = mssqlIdent(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM [listings] ORDER BY [id]"
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
