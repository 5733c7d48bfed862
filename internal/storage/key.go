package storage

import (
	"strings"

	"github.com/jaimejim/home-search/internal/listing"
)

// NormalizeKey converts a dedupe key to its canonical form: surrounding
// whitespace dropped and interior runs of whitespace collapsed to single
// spaces. Comparison after that is exact, so two spellings of one address
// are two listings.
//
// Backends must apply the same normalization on write and on lookup; this
// helper keeps duplicate detection consistent across backends.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AddressKey returns the address identity of a listing, or "" when the
// listing carries no street address. Postal code and city are folded in so
// the same street name in two municipalities stays two listings.
func AddressKey(l listing.Listing) string {
	addr := NormalizeKey(l.Address)
	if addr == "" {
		return ""
	}
	return addr + "|" + NormalizeKey(l.PostalCode) + "|" + NormalizeKey(l.City)
}

// URLKey returns the source-URL identity of a listing, or "" when the
// source page is unknown.
func URLKey(l listing.Listing) string {
	return NormalizeKey(l.URL)
}
