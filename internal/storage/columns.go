package storage

// SQLColumns are the snake_case column names the SQL-backed stores use for
// listing.Row() cells, index for index. Order is load-bearing: backends
// zip these against listing.Row() and listing.FromRow positionally, so the
// SQL stores hold byte-identical data to the CSV store.
var SQLColumns = []string{
	"address", "city", "neighborhood", "postal_code",
	"latitude", "longitude", "price_eur", "size_m2",
	"rooms", "year_built", "condition", "description", "url",
	"debt_free_price", "selling_price", "price_per_m2", "debt_share",
	"loan_share_payment", "maintenance_charge", "capital_charge",
	"special_charge", "total_charge", "heating_cost", "other_costs",
	"scraped_at",
}
