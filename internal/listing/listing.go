// Package listing defines the normalized real-estate record shared by the
// extractor, the storage backends, and the map renderer, together with its
// tabular (CSV) row form.
package listing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Listing is one real-estate advertisement normalized from a listing page.
//
// Numeric zero means "not present in the source" for Latitude, Longitude,
// PriceEUR and SizeM2; absent fields are never inferred from other fields.
// Charge values keep the page's display strings, since amounts arrive with
// units and locale formatting attached.
type Listing struct {
	Address      string  `json:"address"`
	City         string  `json:"city,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	PostalCode   string  `json:"postal_code,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	PriceEUR     float64 `json:"price_eur,omitempty"`
	SizeM2       float64 `json:"size_m2,omitempty"`
	Rooms        string  `json:"rooms,omitempty"`
	YearBuilt    string  `json:"year_built,omitempty"`
	Condition    string  `json:"condition,omitempty"`
	Description  string  `json:"description,omitempty"`
	URL          string  `json:"url,omitempty"`

	Charges Charges `json:"charges"`

	// ScrapedAt is stamped by the caller when the record is first persisted.
	ScrapedAt time.Time `json:"scraped_at"`
}

// Charges are the housing-company fee rows published on the listing page.
type Charges struct {
	DebtFreePrice     string `json:"debt_free_price,omitempty"`
	SellingPrice      string `json:"selling_price,omitempty"`
	PricePerM2        string `json:"price_per_m2,omitempty"`
	DebtShare         string `json:"debt_share,omitempty"`
	LoanSharePayment  string `json:"loan_share_payment,omitempty"`
	MaintenanceCharge string `json:"maintenance_charge,omitempty"`
	CapitalCharge     string `json:"capital_charge,omitempty"`
	SpecialCharge     string `json:"special_charge,omitempty"`
	TotalCharge       string `json:"total_charge,omitempty"`
	HeatingCost       string `json:"heating_cost,omitempty"`
	OtherCosts        string `json:"other_costs,omitempty"`
}

// HasCoordinates reports whether the record carries a usable marker
// position. (0, 0) means the source page had no coordinates.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// Column indices into Columns() and Row(). Order is load-bearing: existing
// tabular files are appended to across runs and validated against this
// header.
const (
	colAddress = iota
	colCity
	colNeighborhood
	colPostalCode
	colLatitude
	colLongitude
	colPrice
	colSize
	colRooms
	colYearBuilt
	colCondition
	colDescription
	colURL
	colDebtFreePrice
	colSellingPrice
	colPricePerM2
	colDebtShare
	colLoanSharePayment
	colMaintenanceCharge
	colCapitalCharge
	colSpecialCharge
	colTotalCharge
	colHeatingCost
	colOtherCosts
	colScrapedAt

	columnCount
)

// Columns returns the fixed tabular header, in column order.
func Columns() []string {
	return []string{
		colAddress:           "Address",
		colCity:              "City",
		colNeighborhood:      "Neighborhood",
		colPostalCode:        "Postal Code",
		colLatitude:          "Latitude",
		colLongitude:         "Longitude",
		colPrice:             "Price (€)",
		colSize:              "Size (m²)",
		colRooms:             "Rooms",
		colYearBuilt:         "Year Built",
		colCondition:         "Condition",
		colDescription:       "Description",
		colURL:               "URL",
		colDebtFreePrice:     "Debt-free Price",
		colSellingPrice:      "Selling Price",
		colPricePerM2:        "Price per m²",
		colDebtShare:         "Debt Share",
		colLoanSharePayment:  "Loan Share Payment",
		colMaintenanceCharge: "Maintenance Charge",
		colCapitalCharge:     "Capital Charge",
		colSpecialCharge:     "Special Charge",
		colTotalCharge:       "Total Charge",
		colHeatingCost:       "Heating Cost",
		colOtherCosts:        "Other Costs",
		colScrapedAt:         "Scraped At",
	}
}

// Row returns the record as one tabular row matching Columns().
//
// Absent numerics render as empty cells, not "0", so a reopened file
// round-trips back to the same zero values.
func (l *Listing) Row() []string {
	return []string{
		colAddress:           l.Address,
		colCity:              l.City,
		colNeighborhood:      l.Neighborhood,
		colPostalCode:        l.PostalCode,
		colLatitude:          formatFloat(l.Latitude),
		colLongitude:         formatFloat(l.Longitude),
		colPrice:             formatFloat(l.PriceEUR),
		colSize:              formatFloat(l.SizeM2),
		colRooms:             l.Rooms,
		colYearBuilt:         l.YearBuilt,
		colCondition:         l.Condition,
		colDescription:       l.Description,
		colURL:               l.URL,
		colDebtFreePrice:     l.Charges.DebtFreePrice,
		colSellingPrice:      l.Charges.SellingPrice,
		colPricePerM2:        l.Charges.PricePerM2,
		colDebtShare:         l.Charges.DebtShare,
		colLoanSharePayment:  l.Charges.LoanSharePayment,
		colMaintenanceCharge: l.Charges.MaintenanceCharge,
		colCapitalCharge:     l.Charges.CapitalCharge,
		colSpecialCharge:     l.Charges.SpecialCharge,
		colTotalCharge:       l.Charges.TotalCharge,
		colHeatingCost:       l.Charges.HeatingCost,
		colOtherCosts:        l.Charges.OtherCosts,
		colScrapedAt:         formatTime(l.ScrapedAt),
	}
}

// FromRow decodes one tabular row produced by Row.
//
// Errors:
//   - Wrong field count.
//   - Unparsable numeric or timestamp cells (the column name is included).
func FromRow(row []string) (Listing, error) {
	if len(row) != columnCount {
		return Listing{}, fmt.Errorf("row has %d fields, want %d", len(row), columnCount)
	}

	l := Listing{
		Address:      row[colAddress],
		City:         row[colCity],
		Neighborhood: row[colNeighborhood],
		PostalCode:   row[colPostalCode],
		Rooms:        row[colRooms],
		YearBuilt:    row[colYearBuilt],
		Condition:    row[colCondition],
		Description:  row[colDescription],
		URL:          row[colURL],
		Charges: Charges{
			DebtFreePrice:     row[colDebtFreePrice],
			SellingPrice:      row[colSellingPrice],
			PricePerM2:        row[colPricePerM2],
			DebtShare:         row[colDebtShare],
			LoanSharePayment:  row[colLoanSharePayment],
			MaintenanceCharge: row[colMaintenanceCharge],
			CapitalCharge:     row[colCapitalCharge],
			SpecialCharge:     row[colSpecialCharge],
			TotalCharge:       row[colTotalCharge],
			HeatingCost:       row[colHeatingCost],
			OtherCosts:        row[colOtherCosts],
		},
	}

	cols := Columns()
	var err error
	for _, f := range []struct {
		idx int
		dst *float64
	}{
		{colLatitude, &l.Latitude},
		{colLongitude, &l.Longitude},
		{colPrice, &l.PriceEUR},
		{colSize, &l.SizeM2},
	} {
		if *f.dst, err = parseFloat(row[f.idx]); err != nil {
			return Listing{}, fmt.Errorf("column %q: %w", cols[f.idx], err)
		}
	}

	if l.ScrapedAt, err = parseTime(row[colScrapedAt]); err != nil {
		return Listing{}, fmt.Errorf("column %q: %w", cols[colScrapedAt], err)
	}
	return l, nil
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return f, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	// RFC3339Nano parses both second and sub-second precision.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
