// Package storage persists scraped listings behind a small append-only
// interface with pluggable backends.
//
// The default backend is a CSV file so results stay grep- and
// spreadsheet-friendly, but the same records can be kept in SQLite,
// Postgres or SQL Server by switching Config.Kind. Backends register
// themselves from init functions; programs import
// internal/storage/all to link every backend in.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jaimejim/home-search/internal/listing"
)

// Config selects a listing store backend and tells it where to live.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - File-backed stores (csv, sqlite) read Path; server-backed stores
//     (postgres, mssql) read DSN. Validation is backend-specific.
type Config struct {
	Kind string
	Path string
	DSN  string
}

// Store is a backend-agnostic, append-only collection of listings.
//
// IMPORTANT: stores never update or delete rows. Append refuses a listing
// whose address key or URL key already exists, which is what makes reruns
// over the same URL list idempotent. Each backend implements the duplicate
// check in its own idiomatic way (Postgres ON CONFLICT, SQLite OR IGNORE,
// SQL Server NOT EXISTS, in-memory sets for CSV).
type Store interface {
	// HasURL reports whether a listing scraped from url is already stored.
	// Callers use it to skip a network fetch for known pages; a false
	// answer does not promise the later Append will add a row, because the
	// page's address may still collide with an existing record.
	HasURL(ctx context.Context, url string) (bool, error)

	// Append writes l unless a listing with the same address key or URL
	// key exists. It reports whether a new row was written; (false, nil)
	// means duplicate.
	Append(ctx context.Context, l listing.Listing) (bool, error)

	// All returns every stored listing in append order, re-read from the
	// backing file or table on each call.
	All(ctx context.Context) ([]listing.Listing, error)

	// Close flushes pending writes and releases the file handle or
	// connection pool. Callers should treat Close as "call once".
	Close() error
}

// ---- backend factories ----

// Factory constructs a Store from its configuration.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a store backend under a kind (e.g. "csv", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The kind string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Kinds returns the registered backend kinds in sorted order. It exists so
// error messages and --help output can list what a binary was built with.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported. The
//     unsupported-kind error names the registered kinds.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	kind := strings.TrimSpace(cfg.Kind)
	if kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	factoryMu.RLock()
	f := factories[kind]
	factoryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%q (registered: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}
