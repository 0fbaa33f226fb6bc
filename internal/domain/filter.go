package domain

import "strings"

// PageSize is the fixed number of rows per result page.
const PageSize = 10

// Sort directions accepted in a FilterSpec.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DateRange holds independent, optional inclusive date bounds (YYYY-MM-DD).
type DateRange struct {
	Start *string
	End   *string
}

// FilterSpec describes which rows to keep, how to sort them, and which page
// to return. A nil Suburbs means "no locality constraint"; a non-nil empty
// slice means "nothing selected" and yields zero rows.
type FilterSpec struct {
	Suburbs         *[]string
	PriceRange      *[2]float64
	DateRange       DateRange
	RepeatSalesOnly bool
	SortColumn      string
	SortDirection   string
	Page            int
}

// Ascending reports whether the spec requests ascending order.
func (f FilterSpec) Ascending() bool {
	return strings.EqualFold(f.SortDirection, SortAsc)
}

// EffectivePage returns the 1-indexed page, treating anything below 1 as 1.
func (f FilterSpec) EffectivePage() int {
	if f.Page < 1 {
		return 1
	}
	return f.Page
}

// Metrics are aggregate statistics over the fully filtered set.
type Metrics struct {
	Count  int     `json:"totalProperties"`
	Sum    float64 `json:"totalSalesValue"`
	Mean   float64 `json:"avgPrice"`
	Median float64 `json:"medianPrice"`
}

// Series is one labelled chart series.
type Series struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// Charts are projections over the filtered set, independent of pagination.
type Charts struct {
	SalesBySuburb Series `json:"salesBySuburb"`
	PriceTrend    Series `json:"priceTrend"`
}

// Page is one window of the sorted result.
type Page struct {
	Rows      []Sale
	TotalRows int
	Page      int
	PageSize  int
}

// QueryResult is the complete response for one filter evaluation.
type QueryResult struct {
	Metrics  Metrics
	Charts   Charts
	Page     Page
	Warnings []string
}
