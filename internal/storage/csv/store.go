// Package csv implements the default listing store: an append-only CSV
// file with a fixed header.
//
// The file format is deliberately boring. One header row, one listing per
// row, cells in listing.Columns() order, appended across runs and never
// rewritten. That keeps the file usable from spreadsheets and version
// control while the tool treats it as a database.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/storage"
)

func init() {
	storage.Register("csv", New)
}

// Store is an append-only CSV file of listings.
//
// Duplicate detection runs against in-memory key sets built from the file
// at open time and maintained on every Append. The file itself is the
// source of truth: All re-reads it from disk, so rows appended by another
// process after open are still observed.
type Store struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *csv.Writer
	byAddr map[string]struct{}
	byURL  map[string]struct{}
}

// New opens the CSV store at cfg.Path, creating the file with its header
// row when it does not exist yet.
//
// Errors:
//   - cfg.Path is empty.
//   - The existing file cannot be parsed: wrong header, wrong field
//     count, or unparsable cells. A malformed store file is never
//     silently rewritten; the caller has to inspect it.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("csv: missing path")
	}

	s := &Store{
		path:   path,
		byAddr: make(map[string]struct{}),
		byURL:  make(map[string]struct{}),
	}

	records, hasHeader, err := readFile(path)
	if err != nil {
		return nil, err
	}
	for _, l := range records {
		s.index(l)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	s.f = f
	s.w = csv.NewWriter(f)

	if !hasHeader {
		if err := s.w.Write(listing.Columns()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header %s: %w", path, err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header %s: %w", path, err)
		}
	}
	return s, nil
}

// HasURL implements storage.Store.
func (s *Store) HasURL(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.NormalizeKey(url)
	if key == "" {
		return false, nil
	}
	_, ok := s.byURL[key]
	return ok, nil
}

// Append implements storage.Store. The row is flushed to disk before
// Append returns, so a crash between runs can lose at most nothing.
func (s *Store) Append(ctx context.Context, l listing.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrKey := storage.AddressKey(l)
	urlKey := storage.URLKey(l)
	if addrKey == "" && urlKey == "" {
		return false, errors.New("csv: listing has neither address nor source URL")
	}
	if s.has(addrKey, urlKey) {
		return false, nil
	}

	if err := s.w.Write(l.Row()); err != nil {
		return false, fmt.Errorf("csv: append %s: %w", s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return false, fmt.Errorf("csv: append %s: %w", s.path, err)
	}

	s.index(l)
	return true, nil
}

// All implements storage.Store. The file is parsed fresh on every call.
func (s *Store) All(ctx context.Context) ([]listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, fmt.Errorf("csv: flush %s: %w", s.path, err)
	}

	records, _, err := readFile(s.path)
	return records, err
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	werr := s.w.Error()
	cerr := s.f.Close()
	if werr != nil {
		return fmt.Errorf("csv: flush %s: %w", s.path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("csv: close %s: %w", s.path, cerr)
	}
	return nil
}

func (s *Store) index(l listing.Listing) {
	if k := storage.AddressKey(l); k != "" {
		s.byAddr[k] = struct{}{}
	}
	if k := storage.URLKey(l); k != "" {
		s.byURL[k] = struct{}{}
	}
}

func (s *Store) has(addrKey, urlKey string) bool {
	if addrKey != "" {
		if _, ok := s.byAddr[addrKey]; ok {
			return true
		}
	}
	if urlKey != "" {
		if _, ok := s.byURL[urlKey]; ok {
			return true
		}
	}
	return false
}

// readFile parses the whole store file. It reports whether a header row
// was present so New can tell a fresh or empty file from a populated one.
//
// The parse is strict on purpose: a file this tool did not write, or one
// that was edited down to a different shape, must fail loudly instead of
// being appended to.
func readFile(path string) (records []listing.Listing, hasHeader bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(listing.Columns())

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("csv: read header %s: %w", path, err)
	}
	// Excel prepends a BOM when saving UTF-8; tolerate it on read.
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	if !slices.Equal(header, listing.Columns()) {
		return nil, false, fmt.Errorf("csv: %s: header %q does not match the expected columns", path, strings.Join(header, ","))
	}

	for i := 1; ; i++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, true, fmt.Errorf("csv: %s: %w", path, err)
		}
		l, err := listing.FromRow(row)
		if err != nil {
			return nil, true, fmt.Errorf("csv: %s: record %d: %w", path, i, err)
		}
		records = append(records, l)
	}
	return records, true, nil
}
