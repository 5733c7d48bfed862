package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/storage"
)

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	sql := createTableSQL()
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS listings") {
		t.Fatalf("missing CREATE TABLE IF NOT EXISTS: %q", sql)
	}
	for _, want := range []string{"addr_key TEXT UNIQUE", "url_key TEXT UNIQUE", `"scraped_at" TEXT NOT NULL`} {
		if !strings.Contains(sql, want) {
			t.Fatalf("missing %q: %q", want, sql)
		}
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	sql := insertSQL()
	if !strings.HasPrefix(sql, "INSERT OR IGNORE INTO listings") {
		t.Fatalf("missing INSERT OR IGNORE: %q", sql)
	}
	// Two key columns plus one placeholder per data column.
	if got, want := strings.Count(sql, "?"), len(storage.SQLColumns)+2; got != want {
		t.Fatalf("found %d placeholders, want %d: %q", got, want, sql)
	}
}

func TestSelectAllSQL(t *testing.T) {
	t.Parallel()

	sql := selectAllSQL()
	if !strings.HasSuffix(sql, "FROM listings ORDER BY id") {
		t.Fatalf("rows must come back in append order: %q", sql)
	}
}

func TestNew_MissingDSN(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), storage.Config{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func sample(url, addr string) listing.Listing {
	return listing.Listing{
		Address:    addr,
		City:       "Helsinki",
		PostalCode: "00100",
		Latitude:   60.1699,
		Longitude:  24.9384,
		PriceEUR:   249000,
		SizeM2:     54.5,
		Rooms:      "2h+k",
		URL:        url,
		ScrapedAt:  time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC),
	}
}

// TestStore_RoundTrip drives a real database file end to end: appends,
// both duplicate paths, URL lookups, read-back, and dedupe across reopen.
func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "listings.db")

	st, err := New(ctx, storage.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	added, err := st.Append(ctx, sample("https://example.com/kohde/1", "Kauppakatu 5 A"))
	if err != nil || !added {
		t.Fatalf("first Append = (%v, %v), want (true, nil)", added, err)
	}
	added, err = st.Append(ctx, sample("https://example.com/kohde/2", "Kauppakatu 5 A"))
	if err != nil || added {
		t.Fatalf("address-duplicate Append = (%v, %v), want (false, nil)", added, err)
	}
	added, err = st.Append(ctx, sample("https://example.com/kohde/1", "Museokatu 9"))
	if err != nil || added {
		t.Fatalf("url-duplicate Append = (%v, %v), want (false, nil)", added, err)
	}

	// Listings without a URL carry a NULL url_key; two of them must not
	// collide with each other.
	added, err = st.Append(ctx, sample("", "Museokatu 9"))
	if err != nil || !added {
		t.Fatalf("no-url Append = (%v, %v), want (true, nil)", added, err)
	}
	added, err = st.Append(ctx, sample("", "Fredrikinkatu 30"))
	if err != nil || !added {
		t.Fatalf("second no-url Append = (%v, %v), want (true, nil)", added, err)
	}

	has, err := st.HasURL(ctx, " https://example.com/kohde/1 ")
	if err != nil || !has {
		t.Fatalf("HasURL = (%v, %v), want (true, nil)", has, err)
	}
	has, err = st.HasURL(ctx, "https://example.com/kohde/404")
	if err != nil || has {
		t.Fatalf("HasURL unknown = (%v, %v), want (false, nil)", has, err)
	}

	all, err := st.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("stored %d listings, want 3", len(all))
	}
	got := all[0]
	if got.Address != "Kauppakatu 5 A" || got.PriceEUR != 249000 || got.SizeM2 != 54.5 {
		t.Fatalf("first listing mangled: %+v", got)
	}
	if !got.ScrapedAt.Equal(time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("ScrapedAt mangled: %v", got.ScrapedAt)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: dedupe state lives in the table, not in memory.
	st2, err := New(ctx, storage.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	added, err = st2.Append(ctx, sample("https://example.com/kohde/1", "Kauppakatu 5 A"))
	if err != nil || added {
		t.Fatalf("rerun Append = (%v, %v), want (false, nil)", added, err)
	}
	all, err = st2.All(ctx)
	if err != nil {
		t.Fatalf("All after reopen: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("after reopen %d listings, want 3", len(all))
	}
}

func TestAppend_RequiresIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, err := New(ctx, storage.Config{DSN: filepath.Join(t.TempDir(), "listings.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer st.Close()

	if _, err := st.Append(ctx, listing.Listing{City: "Helsinki"}); err == nil {
		t.Fatalf("expected error for listing with no address and no URL")
	}
}
