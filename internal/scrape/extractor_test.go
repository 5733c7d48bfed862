package scrape

import (
	"strings"
	"testing"
)

// listingPage is a trimmed-down page in the shape the portals serve: an
// agency block first, then the listing payload, then a fee table.
const listingPage = `<!DOCTYPE html>
<html lang="fi">
<head>
<script type="application/ld+json">
{"@type": "RealEstateAgent", "name": "Kotikulma LKV", "address": "Aleksanterinkatu 15"}
</script>
<script type="application/ld+json">
{
  "@type": "Apartment",
  "description": "Valoisa kaksio hyvien yhteyksien varrella.",
  "url": "https://example.com/kohde/123",
  "address": {
    "streetAddress": "Mannerheimintie 1 A 2",
    "addressLocality": "Etu-Töölö",
    "addressRegion": "Helsinki",
    "postalCode": "00100"
  },
  "geo": {"latitude": 60.1699, "longitude": 24.9384},
  "offers": {"price": "249 000", "priceCurrency": "EUR"},
  "floorSize": {"value": "54,5", "unitCode": "MTK"},
  "numberOfRooms": "2h+k",
  "yearBuilt": "1938",
  "itemCondition": "https://schema.org/UsedCondition"
}
</script>
</head>
<body>
<dl class="info-table">
  <div class="info-table__row">
    <dt class="info-table__title">Velaton hinta</dt>
    <dd class="info-table__value">249 000 €</dd>
  </div>
  <div class="info-table__row">
    <dt class="info-table__title">Myyntihinta</dt>
    <dd class="info-table__value">
      198 000
      €
    </dd>
  </div>
  <div class="info-table__row">
    <dt class="info-table__title">Hoitovastike</dt>
    <dd class="info-table__value">245,20 € / kk</dd>
  </div>
  <div class="info-table__row">
    <dt class="info-table__title">Saunavuoro</dt>
    <dd class="info-table__value">Tiistaisin</dd>
  </div>
</dl>
</body>
</html>`

// TestExtract verifies a full page yields a normalized record: the agency
// block is skipped in favor of the apartment payload, and the fee table
// fills the charge fields.
func TestExtract(t *testing.T) {
	t.Parallel()

	l, err := Extract(listingPage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if l.Address != "Mannerheimintie 1 A 2" {
		t.Errorf("Address = %q", l.Address)
	}
	if l.City != "Helsinki" || l.Neighborhood != "Etu-Töölö" || l.PostalCode != "00100" {
		t.Errorf("location = %q / %q / %q", l.City, l.Neighborhood, l.PostalCode)
	}
	if l.Latitude != 60.1699 || l.Longitude != 24.9384 {
		t.Errorf("coordinates = %v, %v", l.Latitude, l.Longitude)
	}
	if l.PriceEUR != 249000 || l.SizeM2 != 54.5 {
		t.Errorf("price/size = %v / %v", l.PriceEUR, l.SizeM2)
	}
	if l.Rooms != "2h+k" || l.YearBuilt != "1938" || l.Condition != "Used" {
		t.Errorf("details = %q / %q / %q", l.Rooms, l.YearBuilt, l.Condition)
	}
	if l.Charges.DebtFreePrice != "249 000 €" {
		t.Errorf("DebtFreePrice = %q", l.Charges.DebtFreePrice)
	}
	// Markup indentation inside the cell must collapse to single spaces.
	if l.Charges.SellingPrice != "198 000 €" {
		t.Errorf("SellingPrice = %q", l.Charges.SellingPrice)
	}
	if l.Charges.MaintenanceCharge != "245,20 € / kk" {
		t.Errorf("MaintenanceCharge = %q", l.Charges.MaintenanceCharge)
	}
}

// TestExtract_Graph verifies payloads nested under @graph are found.
func TestExtract_Graph(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	{"@context": "https://schema.org", "@graph": [
		{"@type": "BreadcrumbList"},
		{"@type": "SingleFamilyResidence",
		 "address": {"streetAddress": "Koivutie 8", "postalCode": "02700"},
		 "geo": {"latitude": 60.22, "longitude": 24.67}}
	]}
	</script></head><body></body></html>`

	l, err := Extract(html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if l.Address != "Koivutie 8" || l.Latitude != 60.22 {
		t.Fatalf("unexpected record: %+v", l)
	}
}

// TestExtract_ArrayBlock verifies a script whose payload is a JSON array is
// scanned for the listing entry.
func TestExtract_ArrayBlock(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	[{"@type": "Organization", "name": "Portal Oy"},
	 {"@type": "Product", "offers": {"price": 178500},
	  "address": {"streetAddress": "Rantakatu 3", "addressRegion": "Turku"}}]
	</script></head><body></body></html>`

	l, err := Extract(html)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if l.Address != "Rantakatu 3" || l.PriceEUR != 178500 {
		t.Fatalf("unexpected record: %+v", l)
	}
}

// TestExtract_NoStructuredData verifies a page without a usable payload is a
// per-page failure with a descriptive error.
//
// Edge cases:
//   - no ld+json scripts at all
//   - scripts present but none describes a listing
func TestExtract_NoStructuredData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
	}{
		{name: "no_scripts", html: `<html><body><p>Kohde on myyty.</p></body></html>`},
		{name: "no_listing_payload", html: `<html><head><script type="application/ld+json">
			{"@type": "WebSite", "name": "Portaali"}
			</script></head><body></body></html>`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tc.html)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), "no structured data") {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestExtract_MalformedJSON verifies a broken payload reports a decode error
// instead of silently yielding an empty record.
func TestExtract_MalformedJSON(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	{"@type": "Apartment", "address": {</script></head><body></body></html>`

	_, err := Extract(html)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "structured data") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestChooseListingPayload verifies selection priority: a recognized listing
// type beats a geo-carrying payload, which beats an address-only one.
func TestChooseListingPayload(t *testing.T) {
	t.Parallel()

	typed := &jsonLDPayload{Type: typeList{"Apartment"}}
	withGeo := &jsonLDPayload{Type: typeList{"Place"}, Geo: &geoCoordinates{Latitude: 1}}
	withAddr := &jsonLDPayload{Type: typeList{"Thing"}, Address: &postalAddress{StreetAddress: "x"}}

	if got := chooseListingPayload([]*jsonLDPayload{withAddr, withGeo, typed}); got != typed {
		t.Fatalf("expected typed payload to win")
	}
	if got := chooseListingPayload([]*jsonLDPayload{withAddr, withGeo}); got != withGeo {
		t.Fatalf("expected geo payload to win over address-only")
	}
	if got := chooseListingPayload([]*jsonLDPayload{withAddr}); got != withAddr {
		t.Fatalf("expected address payload as last resort")
	}
	if got := chooseListingPayload(nil); got != nil {
		t.Fatalf("expected nil for no candidates")
	}
}

func BenchmarkExtract(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Extract(listingPage); err != nil {
			b.Fatal(err)
		}
	}
}
