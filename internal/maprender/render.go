// Package maprender turns stored listings into a single self-contained
// HTML document: a Leaflet map with one marker per listing that carries
// coordinates.
//
// The document needs no server at view time. Leaflet itself is pinned to
// a CDN build, the background imagery comes from whichever tile provider
// Config points at, and all marker data is embedded inline. Rendering is
// pure: the caller decides where the bytes go.
package maprender

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jaimejim/home-search/internal/listing"
)

// Config selects the tile provider and the fallback view.
//
// The zero value renders public OpenStreetMap tiles centered on the
// Helsinki region, which is where the source listings live.
type Config struct {
	// TileURL is the Leaflet URL template for background tiles. The
	// literal {key} is replaced with APIKey, so keyed providers can be
	// configured without baking the credential into the template string.
	TileURL     string
	APIKey      string
	Attribution string
	MaxZoom     int

	// Fallback view for a store with no located listings. When markers
	// exist the view fits them instead.
	CenterLat float64
	CenterLon float64
	Zoom      int
}

const (
	defaultTileURL     = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	defaultMaxZoom     = 19
	defaultCenterLat   = 60.2
	defaultCenterLon   = 24.8
	defaultZoom        = 10
)

// Stats reports what one render produced.
type Stats struct {
	Markers int
	// Skipped labels the listings left off the map for lacking
	// coordinates, for the caller to log. Never fatal.
	Skipped []string
}

// Renderer renders listing sets against one tile configuration.
type Renderer struct {
	cfg Config
}

// New returns a Renderer, filling every unset Config field with its
// default.
func New(cfg Config) *Renderer {
	if strings.TrimSpace(cfg.TileURL) == "" {
		cfg.TileURL = defaultTileURL
		if cfg.Attribution == "" {
			cfg.Attribution = defaultAttribution
		}
	}
	if cfg.MaxZoom == 0 {
		cfg.MaxZoom = defaultMaxZoom
	}
	if cfg.CenterLat == 0 && cfg.CenterLon == 0 {
		cfg.CenterLat = defaultCenterLat
		cfg.CenterLon = defaultCenterLon
	}
	if cfg.Zoom == 0 {
		cfg.Zoom = defaultZoom
	}
	return &Renderer{cfg: cfg}
}

// marker is what each listing becomes inside the document. The slice is
// embedded in a script context, so the template layer JSON-encodes and
// escapes it.
type marker struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Tooltip string  `json:"tooltip"`
	Popup   string  `json:"popup"`
}

// Render produces the map document for the given listings.
//
// Listings without coordinates are skipped and named in Stats.Skipped;
// only template execution itself can fail.
func (r *Renderer) Render(records []listing.Listing) ([]byte, Stats, error) {
	var stats Stats
	markers := make([]marker, 0, len(records))

	for i, l := range records {
		if !l.HasCoordinates() {
			stats.Skipped = append(stats.Skipped, label(l, i))
			continue
		}
		popup, err := popupHTML(l)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("maprender: popup for %s: %w", label(l, i), err)
		}
		markers = append(markers, marker{
			Lat:     l.Latitude,
			Lon:     l.Longitude,
			Tooltip: l.Address,
			Popup:   popup,
		})
	}
	stats.Markers = len(markers)

	var buf bytes.Buffer
	err := docTmpl.Execute(&buf, docData{
		TileURL:     strings.ReplaceAll(r.cfg.TileURL, "{key}", r.cfg.APIKey),
		Attribution: r.cfg.Attribution,
		MaxZoom:     r.cfg.MaxZoom,
		CenterLat:   r.cfg.CenterLat,
		CenterLon:   r.cfg.CenterLon,
		Zoom:        r.cfg.Zoom,
		Markers:     markers,
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("maprender: %w", err)
	}
	return buf.Bytes(), stats, nil
}

// label names a listing in logs and errors: address first, then URL, then
// its position in the input.
func label(l listing.Listing, i int) string {
	if a := strings.TrimSpace(l.Address); a != "" {
		return a
	}
	if u := strings.TrimSpace(l.URL); u != "" {
		return u
	}
	return fmt.Sprintf("record %d", i+1)
}

// fi renders prices and sizes the way the listings themselves spell them.
var fi = message.NewPrinter(language.Finnish)

func formatPrice(v float64) string {
	if v == 0 {
		return ""
	}
	return fi.Sprintf("%.0f €", v)
}

func formatSize(v float64) string {
	if v == 0 {
		return ""
	}
	s := fi.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ",0") + " m²"
}

// truncate caps s at n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// popupHTML renders the per-marker popup body. Going through a template
// keeps page-sourced text escaped inside the document.
func popupHTML(l listing.Listing) (string, error) {
	var buf bytes.Buffer
	err := popupTmpl.Execute(&buf, popupData{
		Address:      l.Address,
		City:         l.City,
		Neighborhood: l.Neighborhood,
		PostalCode:   l.PostalCode,
		Price:        formatPrice(l.PriceEUR),
		Size:         formatSize(l.SizeM2),
		Condition:    l.Condition,
		Rooms:        l.Rooms,
		YearBuilt:    l.YearBuilt,
		Description:  truncate(l.Description, 160),
		URL:          l.URL,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

type popupData struct {
	Address      string
	City         string
	Neighborhood string
	PostalCode   string
	Price        string
	Size         string
	Condition    string
	Rooms        string
	YearBuilt    string
	Description  string
	URL          string
}

var popupTmpl = template.Must(template.New("popup").Parse(`<b>{{.Address}}</b><br>
{{- if .City}}<b>City:</b> {{.City}}<br>{{end}}
{{- if .Neighborhood}}<b>Neighborhood:</b> {{.Neighborhood}}<br>{{end}}
{{- if .PostalCode}}<b>Postal Code:</b> {{.PostalCode}}<br>{{end}}
{{- if .Price}}<b>Price:</b> {{.Price}}<br>{{end}}
{{- if .Size}}<b>Size:</b> {{.Size}}<br>{{end}}
{{- if .Condition}}<b>Condition:</b> {{.Condition}}<br>{{end}}
{{- if .Rooms}}<b>Rooms:</b> {{.Rooms}}<br>{{end}}
{{- if .YearBuilt}}<b>Year Built:</b> {{.YearBuilt}}<br>{{end}}
{{- if .Description}}{{.Description}}<br>{{end}}
{{- if .URL}}<a href="{{.URL}}" target="_blank" rel="noopener">View Listing</a>{{end}}`))

type docData struct {
	TileURL     string
	Attribution string
	MaxZoom     int
	CenterLat   float64
	CenterLon   float64
	Zoom        int
	Markers     []marker
}

var docTmpl = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>home-search</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" integrity="sha256-p4NxAoJBhIIN+hmNHrzRCf9tD/miZyoHS5obTRR9BMY=" crossorigin="">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js" integrity="sha256-20nQCchB9co0qIjJZRGuk2/Z9VM+kNiyxNV1lvTlZBo=" crossorigin=""></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map("map");
L.tileLayer({{.TileURL}}, {
	maxZoom: {{.MaxZoom}},
	attribution: {{.Attribution}}
}).addTo(map);

var markers = {{.Markers}};
var bounds = [];
for (var i = 0; i < markers.length; i++) {
	var m = markers[i];
	L.marker([m.lat, m.lon], {title: m.tooltip}).addTo(map).bindPopup(m.popup, {maxWidth: 300});
	bounds.push([m.lat, m.lon]);
}
if (bounds.length > 0) {
	map.fitBounds(bounds, {padding: [30, 30]});
} else {
	map.setView([{{.CenterLat}}, {{.CenterLon}}], {{.Zoom}});
}
</script>
</body>
</html>
`))
