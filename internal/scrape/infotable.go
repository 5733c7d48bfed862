package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaimejim/home-search/internal/listing"
)

// chargeTitles maps fee-table row titles, lowercased, to the charge field
// they populate. Finnish portals label the rows in Finnish; the English
// variants cover translated pages.
var chargeTitles = map[string]func(*listing.Charges, string){
	"velaton hinta":         func(c *listing.Charges, v string) { c.DebtFreePrice = v },
	"debt-free price":       func(c *listing.Charges, v string) { c.DebtFreePrice = v },
	"myyntihinta":           func(c *listing.Charges, v string) { c.SellingPrice = v },
	"selling price":         func(c *listing.Charges, v string) { c.SellingPrice = v },
	"neliöhinta":            func(c *listing.Charges, v string) { c.PricePerM2 = v },
	"price per m²":          func(c *listing.Charges, v string) { c.PricePerM2 = v },
	"velkaosuus":            func(c *listing.Charges, v string) { c.DebtShare = v },
	"debt share":            func(c *listing.Charges, v string) { c.DebtShare = v },
	"lainaosuuden maksu":    func(c *listing.Charges, v string) { c.LoanSharePayment = v },
	"loan share payment":    func(c *listing.Charges, v string) { c.LoanSharePayment = v },
	"hoitovastike":          func(c *listing.Charges, v string) { c.MaintenanceCharge = v },
	"maintenance charge":    func(c *listing.Charges, v string) { c.MaintenanceCharge = v },
	"rahoitusvastike":       func(c *listing.Charges, v string) { c.CapitalCharge = v },
	"capital charge":        func(c *listing.Charges, v string) { c.CapitalCharge = v },
	"erityisvastike":        func(c *listing.Charges, v string) { c.SpecialCharge = v },
	"special charge":        func(c *listing.Charges, v string) { c.SpecialCharge = v },
	"yhtiövastike yhteensä": func(c *listing.Charges, v string) { c.TotalCharge = v },
	"total company charge":  func(c *listing.Charges, v string) { c.TotalCharge = v },
	"lämmityskustannukset":  func(c *listing.Charges, v string) { c.HeatingCost = v },
	"heating costs":         func(c *listing.Charges, v string) { c.HeatingCost = v },
	"muut kustannukset":     func(c *listing.Charges, v string) { c.OtherCosts = v },
	"other costs":           func(c *listing.Charges, v string) { c.OtherCosts = v },
}

// applyInfoTable reads the page's fee table into the listing's charge
// fields. Rows with unrecognized titles are ignored; a page without the
// table leaves the charges empty.
func applyInfoTable(doc *goquery.Document, l *listing.Listing) {
	doc.Find("dl.info-table .info-table__row").Each(func(_ int, row *goquery.Selection) {
		title := normalizeText(row.Find("dt.info-table__title").First().Text())
		value := normalizeText(row.Find("dd.info-table__value").First().Text())
		if title == "" || value == "" {
			return
		}
		if set, ok := chargeTitles[strings.ToLower(title)]; ok {
			set(&l.Charges, value)
		}
	})
}

// normalizeText collapses runs of whitespace, including newlines left by
// markup indentation, into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
