package scrape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaimejim/home-search/internal/listing"
)

// listingTypes are the schema.org types recognized as describing the
// advertised property itself.
var listingTypes = map[string]bool{
	"Apartment":             true,
	"House":                 true,
	"SingleFamilyResidence": true,
	"Residence":             true,
	"Accommodation":         true,
	"RealEstateListing":     true,
	"Product":               true,
}

// Extract locates the structured-data block on a listing page and decodes it
// into a normalized record.
//
// The page's fee table, when present, fills the charge fields. Missing or
// undecodable structured data is reported as an error; the caller decides
// whether that fails a batch.
func Extract(html string) (*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	payload, err := findListingPayload(doc)
	if err != nil {
		return nil, err
	}

	l := listingFromPayload(payload)
	applyInfoTable(doc, &l)
	return &l, nil
}

// findListingPayload decodes every ld+json block on the page and picks the
// one describing the listing. Pages wrap agent, breadcrumb, and organization
// blocks around the listing payload in no particular order.
func findListingPayload(doc *goquery.Document) (*jsonLDPayload, error) {
	var candidates []*jsonLDPayload
	var decodeErr error

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		ps, err := decodePayloads(raw)
		if err != nil {
			if decodeErr == nil {
				decodeErr = err
			}
			return
		}
		candidates = append(candidates, ps...)
	})

	if pick := chooseListingPayload(candidates); pick != nil {
		return pick, nil
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("structured data: %w", decodeErr)
	}
	return nil, errors.New("no structured data block describes a listing")
}

// decodePayloads decodes one script block into its payloads. Blocks hold a
// single object, an array of objects, or a @graph container.
func decodePayloads(raw string) ([]*jsonLDPayload, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) > 0 && data[0] == '[' {
		var list []jsonLDPayload
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		var out []*jsonLDPayload
		for i := range list {
			out = append(out, flattenGraph(&list[i])...)
		}
		return out, nil
	}

	var p jsonLDPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return flattenGraph(&p), nil
}

// flattenGraph expands a @graph container into its members.
func flattenGraph(p *jsonLDPayload) []*jsonLDPayload {
	if len(p.Graph) == 0 {
		return []*jsonLDPayload{p}
	}
	out := make([]*jsonLDPayload, 0, len(p.Graph))
	for i := range p.Graph {
		out = append(out, &p.Graph[i])
	}
	return out
}

// chooseListingPayload picks the payload most likely to describe the listing
// itself: a recognized real-estate @type first, then the first payload with
// coordinates, then the first with an address.
func chooseListingPayload(candidates []*jsonLDPayload) *jsonLDPayload {
	for _, p := range candidates {
		for _, t := range p.Type {
			if listingTypes[t] {
				return p
			}
		}
	}
	for _, p := range candidates {
		if p.Geo != nil {
			return p
		}
	}
	for _, p := range candidates {
		if p.Address != nil {
			return p
		}
	}
	return nil
}
