package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/jaimejim/home-search/internal/listing"
)

type fakeStore struct {
	appendCalls int
	closeCalls  int
	last        listing.Listing
}

func (f *fakeStore) HasURL(ctx context.Context, url string) (bool, error) { return false, nil }

func (f *fakeStore) Append(ctx context.Context, l listing.Listing) (bool, error) {
	f.appendCalls++
	f.last = l
	return true, nil
}

func (f *fakeStore) All(ctx context.Context) ([]listing.Listing, error) { return nil, nil }

func (f *fakeStore) Close() error {
	f.closeCalls++
	return nil
}

func TestOpen_UsesRegisteredFactory(t *testing.T) {
	fs := &fakeStore{}
	var gotCfg Config
	Register("faketest", func(ctx context.Context, cfg Config) (Store, error) {
		gotCfg = cfg
		return fs, nil
	})

	// Kind is trimmed before lookup so config files with stray spaces work.
	st, err := Open(context.Background(), Config{Kind: "  faketest ", Path: "listings.csv"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != Store(fs) {
		t.Fatalf("Open returned %#v, want the registered fake", st)
	}
	if gotCfg.Path != "listings.csv" {
		t.Fatalf("factory received Path=%q, want %q", gotCfg.Path, "listings.csv")
	}
}

func TestOpen_MissingKind(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestOpen_UnknownKindNamesRegisteredKinds(t *testing.T) {
	Register("faketest-known", func(ctx context.Context, cfg Config) (Store, error) {
		return &fakeStore{}, nil
	})

	_, err := Open(context.Background(), Config{Kind: "bogus"})
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if !strings.Contains(err.Error(), `"bogus"`) {
		t.Fatalf("error does not name the kind: %v", err)
	}
	if !strings.Contains(err.Error(), "faketest-known") {
		t.Fatalf("error does not list registered kinds: %v", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	mustPanic := func(t *testing.T, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic")
			}
		}()
		fn()
	}

	factory := func(ctx context.Context, cfg Config) (Store, error) { return &fakeStore{}, nil }

	t.Run("empty_kind", func(t *testing.T) {
		mustPanic(t, func() { Register("", factory) })
	})
	t.Run("nil_factory", func(t *testing.T) {
		mustPanic(t, func() { Register("faketest-nilfactory", nil) })
	})
	t.Run("duplicate_kind", func(t *testing.T) {
		Register("faketest-dup", factory)
		mustPanic(t, func() { Register("faketest-dup", factory) })
	})
}

func TestKinds_Sorted(t *testing.T) {
	factory := func(ctx context.Context, cfg Config) (Store, error) { return &fakeStore{}, nil }
	Register("zz-faketest", factory)
	Register("aa-faketest", factory)

	kinds := Kinds()
	ia, iz := -1, -1
	for i, k := range kinds {
		switch k {
		case "aa-faketest":
			ia = i
		case "zz-faketest":
			iz = i
		}
	}
	if ia == -1 || iz == -1 {
		t.Fatalf("registered kinds missing from Kinds(): %v", kinds)
	}
	if ia > iz {
		t.Fatalf("Kinds() not sorted: %v", kinds)
	}
}

func TestSQLColumns_MatchListingColumns(t *testing.T) {
	t.Parallel()

	if got, want := len(SQLColumns), len(listing.Columns()); got != want {
		t.Fatalf("SQLColumns has %d entries, listing.Columns() has %d", got, want)
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Mannerheimintie 5 A 2", "Mannerheimintie 5 A 2"},
		{"  Mannerheimintie 5  ", "Mannerheimintie 5"},
		{"Mannerheimintie\t5\n", "Mannerheimintie 5"},
		{"Mannerheimintie 5", "Mannerheimintie 5"}, // NBSP from HTML sources
		{"   ", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Fatalf("NormalizeKey(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddressKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		l    listing.Listing
		want string
	}{
		{
			name: "full",
			l:    listing.Listing{Address: "Kauppakatu 5 A", PostalCode: "00100", City: "Helsinki"},
			want: "Kauppakatu 5 A|00100|Helsinki",
		},
		{
			name: "whitespace_collapsed",
			l:    listing.Listing{Address: "  Kauppakatu   5 ", PostalCode: " 00100", City: "Helsinki "},
			want: "Kauppakatu 5|00100|Helsinki",
		},
		{
			name: "no_address_means_no_key",
			l:    listing.Listing{PostalCode: "00100", City: "Helsinki"},
			want: "",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := AddressKey(tc.l); got != tc.want {
				t.Fatalf("AddressKey=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestURLKey(t *testing.T) {
	t.Parallel()

	if got := URLKey(listing.Listing{URL: "  https://example.com/kohde/123 "}); got != "https://example.com/kohde/123" {
		t.Fatalf("URLKey=%q", got)
	}
	if got := URLKey(listing.Listing{}); got != "" {
		t.Fatalf("URLKey of empty listing = %q, want empty", got)
	}
}
