package scrape

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jaimejim/home-search/internal/listing"
)

// jsonLDPayload mirrors the subset of a schema.org block this tool consumes.
// Listing portals are loose about value shapes — numbers arrive as strings
// and vice versa, enum fields as objects or bare strings — so the leaf types
// tolerate every variant seen in the wild.
type jsonLDPayload struct {
	Type          typeList        `json:"@type"`
	Graph         []jsonLDPayload `json:"@graph"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	URL           string          `json:"url"`
	Address       *postalAddress  `json:"address"`
	Geo           *geoCoordinates `json:"geo"`
	Offers        *offer          `json:"offers"`
	FloorSize     *quantValue     `json:"floorSize"`
	ItemCondition condition       `json:"itemCondition"`
	NumberOfRooms roomCount       `json:"numberOfRooms"`
	YearBuilt     flexString      `json:"yearBuilt"`
}

type postalAddress struct {
	StreetAddress   string `json:"streetAddress"`
	AddressLocality string `json:"addressLocality"`
	AddressRegion   string `json:"addressRegion"`
	PostalCode      string `json:"postalCode"`
}

// UnmarshalJSON accepts the usual object form as well as a bare string,
// which reads as the street address.
func (p *postalAddress) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.StreetAddress = strings.TrimSpace(s)
		return nil
	}
	type alias postalAddress
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = postalAddress(a)
	return nil
}

type geoCoordinates struct {
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
}

// offer accepts a single offer object or an array, in which case the first
// entry wins.
type offer struct {
	Price         flexFloat `json:"price"`
	PriceCurrency string    `json:"priceCurrency"`
}

func (o *offer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		return o.UnmarshalJSON(list[0])
	}
	type alias offer
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*o = offer(a)
	return nil
}

// quantValue accepts {"value": n, "unitCode": "..."} or a bare number.
type quantValue struct {
	Value    flexFloat `json:"value"`
	UnitCode string    `json:"unitCode"`
}

func (q *quantValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '{' {
		type alias quantValue
		var a alias
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		*q = quantValue(a)
		return nil
	}
	return q.Value.UnmarshalJSON(b)
}

// condition accepts itemCondition as an object with a name, a bare string,
// or a schema.org enum URL.
type condition struct {
	Name string `json:"name"`
}

func (c *condition) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '{' {
		type alias condition
		var a alias
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		*c = condition(a)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	c.Name = conditionName(s)
	return nil
}

// conditionName turns "https://schema.org/UsedCondition" into "Used" and
// leaves plain labels alone.
func conditionName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
		s = strings.TrimSuffix(s, "Condition")
	}
	return s
}

// typeList accepts "@type" as a single string or a list.
type typeList []string

func (t *typeList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = typeList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err == nil {
		*t = typeList(ss)
		return nil
	}
	// Unknown shape: treat as untyped rather than failing the payload.
	*t = nil
	return nil
}

// flexString decodes a JSON string, number, or bool into its text form.
// Objects and arrays read as absent.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case '{', '[':
		*f = ""
	default:
		*f = flexString(string(b))
	}
	return nil
}

// flexFloat decodes a JSON number or a numeric string. Unparsable values
// read as absent (zero), never as a payload error.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, ok := parseLooseFloat(s); ok {
			*f = flexFloat(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// roomCount accepts numberOfRooms as a number, a string ("3h+k"), or a
// quantitative-value object.
type roomCount string

func (r *roomCount) UnmarshalJSON(b []byte) error {
	*r = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '{' {
		var qv struct {
			Value flexString `json:"value"`
		}
		if err := json.Unmarshal(b, &qv); err != nil {
			return nil
		}
		*r = roomCount(qv.Value)
		return nil
	}
	var f flexString
	if err := f.UnmarshalJSON(b); err != nil {
		return nil
	}
	*r = roomCount(f)
	return nil
}

// listingFromPayload maps a decoded structured-data payload onto a Listing.
// Absent payload fields leave the corresponding record fields at their zero
// values; nothing is inferred.
func listingFromPayload(p *jsonLDPayload) listing.Listing {
	l := listing.Listing{
		Description: strings.TrimSpace(p.Description),
		URL:         strings.TrimSpace(p.URL),
		Rooms:       string(p.NumberOfRooms),
		YearBuilt:   string(p.YearBuilt),
		Condition:   p.ItemCondition.Name,
	}
	if p.Address != nil {
		l.Address = strings.TrimSpace(p.Address.StreetAddress)
		l.City = strings.TrimSpace(p.Address.AddressRegion)
		l.Neighborhood = strings.TrimSpace(p.Address.AddressLocality)
		l.PostalCode = strings.TrimSpace(p.Address.PostalCode)
	}
	if p.Geo != nil {
		l.Latitude = float64(p.Geo.Latitude)
		l.Longitude = float64(p.Geo.Longitude)
	}
	if p.Offers != nil {
		l.PriceEUR = float64(p.Offers.Price)
	}
	if p.FloorSize != nil {
		l.SizeM2 = float64(p.FloorSize.Value)
	}
	return l
}

// parseLooseFloat parses numbers the way portals print them: embedded
// regular, no-break, or narrow spaces are dropped, and a lone decimal comma
// reads as a decimal point.
func parseLooseFloat(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
