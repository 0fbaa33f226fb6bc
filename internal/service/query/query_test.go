package query

import (
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdash/internal/domain"
)

func strPtr(s string) *string { return &s }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var allColumns = []string{
	domain.ColPropertyID, domain.ColLocality, domain.ColPurchasePrice, domain.ColContractDate,
	domain.ColHouseNumber, domain.ColStreetName, domain.ColPrimaryPurpose,
}

// fixture builds 25 sales across five localities; PropertyIDs P0..P9 repeat.
func fixture() *domain.Table {
	localities := []string{"Bondi", "Manly", "Ryde", "Parramatta", "Newtown"}
	rows := make([]domain.Sale, 0, 25)
	for i := range 25 {
		s := domain.Sale{
			PropertyID:    fmt.Sprintf("P%d", i%10+i/20*10),
			Locality:      localities[i%5],
			PurchasePrice: float64(400000 + i*10000),
			ContractDate:  day(2023, time.Month(i%12+1), i%28+1),
			StreetName:    strPtr(fmt.Sprintf("Street %02d", i%7)),
		}
		if i%3 == 0 {
			s.HouseNumber = strPtr(fmt.Sprintf("%d", i))
		}
		rows = append(rows, s)
	}
	return &domain.Table{Columns: allColumns, Rows: rows}
}

func newTestEngine() *Engine { return NewEngine(slog.New(slog.DiscardHandler)) }

func TestEvaluate_NoFiltersReturnsEverything(t *testing.T) {
	tbl := fixture()
	res := newTestEngine().Evaluate(tbl, domain.FilterSpec{})

	assert.Equal(t, 25, res.Metrics.Count)
	assert.Equal(t, 25, res.Page.TotalRows)
	assert.Len(t, res.Page.Rows, domain.PageSize)
	assert.Equal(t, 1, res.Page.Page)
	assert.Empty(t, res.Warnings)
}

func TestEvaluate_MetricsInvariants(t *testing.T) {
	tbl := fixture()
	res := newTestEngine().Evaluate(tbl, domain.FilterSpec{})

	m := res.Metrics
	assert.InDelta(t, m.Mean*float64(m.Count), m.Sum, 1e-6)
	assert.GreaterOrEqual(t, m.Median, 400000.0)
	assert.LessOrEqual(t, m.Median, 640000.0)
	assert.Equal(t, 520000.0, m.Median, "odd count takes the middle value")
}

func TestComputeMetrics(t *testing.T) {
	assert.Equal(t, domain.Metrics{}, ComputeMetrics(nil))

	rows := []domain.Sale{{PurchasePrice: 1}, {PurchasePrice: 4}, {PurchasePrice: 2}, {PurchasePrice: 10}}
	m := ComputeMetrics(rows)
	assert.Equal(t, 4, m.Count)
	assert.Equal(t, 17.0, m.Sum)
	assert.Equal(t, 4.25, m.Mean)
	assert.Equal(t, 3.0, m.Median)
	assert.Equal(t, 1.0, rows[0].PurchasePrice, "input order is untouched")
}

func TestFilter_Suburbs(t *testing.T) {
	e := newTestEngine()
	tbl := fixture()

	empty := []string{}
	rows, _ := e.Filter(tbl, domain.FilterSpec{Suburbs: &empty})
	assert.Empty(t, rows, "an explicit empty selection matches nothing")

	rows, _ = e.Filter(tbl, domain.FilterSpec{})
	assert.Len(t, rows, 25, "absent selection is no constraint")

	sel := []string{"Bondi", "Ryde", "Atlantis"}
	rows, _ = e.Filter(tbl, domain.FilterSpec{Suburbs: &sel})
	assert.Len(t, rows, 10)
	for _, r := range rows {
		assert.Contains(t, []string{"Bondi", "Ryde"}, r.Locality)
	}
}

func TestFilter_PriceRange(t *testing.T) {
	e := newTestEngine()
	tbl := fixture()

	rows, warnings := e.Filter(tbl, domain.FilterSpec{PriceRange: &[2]float64{450000, 500000}})
	assert.Empty(t, warnings)
	assert.Len(t, rows, 6, "bounds are inclusive")

	rows, warnings = e.Filter(tbl, domain.FilterSpec{PriceRange: &[2]float64{600000, 500000}})
	assert.Len(t, rows, 25, "inverted range is ignored")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Invalid price range")

	rows, warnings = e.Filter(tbl, domain.FilterSpec{PriceRange: &[2]float64{-1, 500000}})
	assert.Len(t, rows, 25)
	assert.Len(t, warnings, 1)
}

func TestFilter_DateBoundsIndependent(t *testing.T) {
	e := newTestEngine()
	tbl := &domain.Table{Columns: allColumns, Rows: []domain.Sale{
		{PropertyID: "a", Locality: "X", ContractDate: day(2023, 1, 1)},
		{PropertyID: "b", Locality: "X", ContractDate: day(2023, 2, 1)},
		{PropertyID: "c", Locality: "X", ContractDate: day(2023, 3, 1)},
	}}

	rows, _ := e.Filter(tbl, domain.FilterSpec{DateRange: domain.DateRange{Start: strPtr("2023-02-01")}})
	assert.Len(t, rows, 2, "start only, inclusive")

	rows, _ = e.Filter(tbl, domain.FilterSpec{DateRange: domain.DateRange{End: strPtr("2023-02-01")}})
	assert.Len(t, rows, 2, "end only, inclusive")

	rows, _ = e.Filter(tbl, domain.FilterSpec{DateRange: domain.DateRange{Start: strPtr("2023-02-01"), End: strPtr("2023-02-01")}})
	assert.Len(t, rows, 1)

	rows, warnings := e.Filter(tbl, domain.FilterSpec{DateRange: domain.DateRange{Start: strPtr("yesterday"), End: strPtr("2023-01-31")}})
	assert.Len(t, rows, 1, "bad start dropped, end still applied")
	require.Len(t, warnings, 1)
	assert.Equal(t, "Invalid start date 'yesterday' ignored", warnings[0])

	rows, warnings = e.Filter(tbl, domain.FilterSpec{DateRange: domain.DateRange{Start: strPtr(""), End: strPtr("2023-02-15T00:00:00.000Z")}})
	assert.Empty(t, warnings)
	assert.Len(t, rows, 2)
}

func TestFilter_RepeatSales(t *testing.T) {
	e := newTestEngine()
	tbl := fixture()
	spec := domain.FilterSpec{PriceRange: &[2]float64{400000, 560000}}

	before, _ := e.Filter(tbl, spec)
	counts := map[string]int{}
	for _, r := range before {
		counts[r.PropertyID]++
	}

	spec.RepeatSalesOnly = true
	after, _ := e.Filter(tbl, spec)
	require.NotEmpty(t, after)
	for _, r := range after {
		assert.GreaterOrEqual(t, counts[r.PropertyID], 2, r.PropertyID)
	}
	for id, c := range counts {
		if c == 1 {
			for _, r := range after {
				assert.NotEqual(t, id, r.PropertyID)
			}
		}
	}
}

func TestFilter_Idempotent(t *testing.T) {
	e := newTestEngine()
	tbl := fixture()
	sel := []string{"Manly", "Newtown"}
	spec := domain.FilterSpec{Suburbs: &sel, RepeatSalesOnly: true, SortColumn: "Purchase price", SortDirection: "asc"}

	first := e.Evaluate(tbl, spec)
	second := e.Evaluate(tbl, spec)
	assert.Equal(t, first, second)

	// Filtering the already-filtered table changes nothing.
	rows, _ := e.Filter(tbl, spec)
	again, _ := e.Filter(&domain.Table{Columns: tbl.Columns, Rows: rows}, spec)
	assert.Equal(t, rows, again)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	e := newTestEngine()
	tbl := fixture()
	orig := append([]domain.Sale(nil), tbl.Rows...)

	_ = e.Evaluate(tbl, domain.FilterSpec{SortColumn: domain.ColPurchasePrice, SortDirection: "asc", RepeatSalesOnly: true})
	assert.Equal(t, orig, tbl.Rows)
}

func TestFilter_PanicFallsBackToUnfiltered(t *testing.T) {
	e := newTestEngine()
	e.apply = func([]domain.Sale, domain.FilterSpec) ([]domain.Sale, []string) { panic("boom") }
	tbl := fixture()

	res := e.Evaluate(tbl, domain.FilterSpec{})
	assert.Equal(t, 25, res.Metrics.Count)
	assert.Equal(t, []string{"filters could not be applied"}, res.Warnings)
}

func TestSortedRows_ColumnAndDirection(t *testing.T) {
	rows := fixture().Rows

	asc := SortedRows(rows, domain.FilterSpec{SortColumn: domain.ColPurchasePrice, SortDirection: "asc"}, allColumns)
	for i := 1; i < len(asc); i++ {
		assert.LessOrEqual(t, asc[i-1].PurchasePrice, asc[i].PurchasePrice)
	}

	desc := SortedRows(rows, domain.FilterSpec{SortColumn: "Purchase price", SortDirection: "desc"}, allColumns)
	assert.Equal(t, asc[0], desc[len(desc)-1], "display names are accepted")
}

func TestSortedRows_UnknownColumnDefaultsToDateDesc(t *testing.T) {
	rows := fixture().Rows
	got := SortedRows(rows, domain.FilterSpec{SortColumn: "Bedrooms"}, allColumns)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i-1].ContractDate.Before(got[i].ContractDate))
	}

	// A known column missing from this table also falls back.
	got = SortedRows(rows, domain.FilterSpec{SortColumn: domain.ColPrimaryPurpose}, domain.RequiredColumns)
	assert.Equal(t, SortedRows(rows, domain.FilterSpec{}, allColumns), got)
}

func TestSortedRows_NullsLastBothDirections(t *testing.T) {
	rows := fixture().Rows
	for _, dir := range []string{"asc", "desc"} {
		got := SortedRows(rows, domain.FilterSpec{SortColumn: domain.ColHouseNumber, SortDirection: dir}, allColumns)
		seenNil := false
		for _, r := range got {
			if r.HouseNumber == nil {
				seenNil = true
				continue
			}
			assert.False(t, seenNil, "%s: present value after a null", dir)
		}
	}
}

func TestSortedRows_DeterministicTies(t *testing.T) {
	rows := []domain.Sale{
		{PropertyID: "b", Locality: "X", ContractDate: day(2023, 1, 1)},
		{PropertyID: "a", Locality: "X", ContractDate: day(2023, 1, 1)},
		{PropertyID: "a", Locality: "Y", ContractDate: day(2023, 1, 1)},
	}
	got := SortedRows(rows, domain.FilterSpec{}, allColumns)
	assert.Equal(t, []string{"a", "a", "b"}, []string{got[0].PropertyID, got[1].PropertyID, got[2].PropertyID})
	assert.Equal(t, "X", got[0].Locality, "input order breaks the final tie")
}

func TestSortedRows_RepeatSalesClustersByAddress(t *testing.T) {
	rows := []domain.Sale{
		{PropertyID: "1", Locality: "Sydney", StreetName: strPtr("Pitt St"), HouseNumber: strPtr("5"), ContractDate: day(2023, 1, 1)},
		{PropertyID: "2", Locality: "Bondi", StreetName: strPtr("Beach Rd"), ContractDate: day(2023, 3, 1)},
		{PropertyID: "1", Locality: "Sydney", StreetName: strPtr("Pitt St"), HouseNumber: strPtr("5"), ContractDate: day(2023, 6, 1)},
		{PropertyID: "2", Locality: "Bondi", StreetName: strPtr("Beach Rd"), ContractDate: day(2022, 3, 1)},
	}

	got := SortedRows(rows, domain.FilterSpec{RepeatSalesOnly: true, SortDirection: "asc"}, allColumns)
	require.Len(t, got, 4)
	assert.Equal(t, "5 Pitt St, Sydney", got[0].Address())
	assert.Equal(t, day(2023, 1, 1), got[0].ContractDate)
	assert.Equal(t, day(2023, 6, 1), got[1].ContractDate)
	assert.Equal(t, "Beach Rd, Bondi", got[2].Address())
	assert.Equal(t, day(2022, 3, 1), got[2].ContractDate)
	assert.Equal(t, day(2023, 3, 1), got[3].ContractDate)

	got = SortedRows(rows, domain.FilterSpec{RepeatSalesOnly: true}, allColumns)
	assert.Equal(t, day(2023, 6, 1), got[0].ContractDate, "desc within the group")
	assert.Equal(t, day(2023, 3, 1), got[2].ContractDate)
}

func TestSortedRows_RepeatSalesKeepsPropertiesApartOnSharedAddress(t *testing.T) {
	// Without street columns the address collapses to the locality.
	rows := []domain.Sale{
		{PropertyID: "1", Locality: "Sydney", ContractDate: day(2023, 1, 1)},
		{PropertyID: "3", Locality: "Sydney", ContractDate: day(2023, 3, 1)},
		{PropertyID: "1", Locality: "Sydney", ContractDate: day(2023, 6, 1)},
		{PropertyID: "3", Locality: "Sydney", ContractDate: day(2023, 8, 1)},
	}
	cols := []string{domain.ColPropertyID, domain.ColLocality, domain.ColPurchasePrice, domain.ColContractDate}

	order := func(got []domain.Sale) []string {
		out := make([]string, len(got))
		for i, s := range got {
			out[i] = s.PropertyID + "@" + s.ContractDate.Format("2006-01")
		}
		return out
	}

	got := SortedRows(rows, domain.FilterSpec{RepeatSalesOnly: true, SortDirection: "asc"}, cols)
	assert.Equal(t, []string{"1@2023-01", "1@2023-06", "3@2023-03", "3@2023-08"}, order(got))

	got = SortedRows(rows, domain.FilterSpec{RepeatSalesOnly: true, SortDirection: "desc"}, cols)
	assert.Equal(t, []string{"1@2023-06", "1@2023-01", "3@2023-08", "3@2023-03"}, order(got))
}

func TestPaginate_CoversSortedSetExactlyOnce(t *testing.T) {
	sorted := SortedRows(fixture().Rows, domain.FilterSpec{SortColumn: domain.ColPurchasePrice}, allColumns)

	var all []domain.Sale
	for page := 1; ; page++ {
		p := Paginate(sorted, page)
		assert.Equal(t, 25, p.TotalRows)
		assert.Equal(t, domain.PageSize, p.PageSize)
		if len(p.Rows) == 0 {
			assert.Equal(t, 4, page)
			break
		}
		all = append(all, p.Rows...)
	}
	assert.Equal(t, sorted, all)

	assert.Len(t, Paginate(sorted, 3).Rows, 5)
	assert.Equal(t, 1, Paginate(sorted, 0).Page)
	assert.Equal(t, 1, Paginate(sorted, -7).Page)
	beyond := Paginate(sorted, math.MaxInt)
	assert.Empty(t, beyond.Rows)
	assert.Equal(t, 25, beyond.TotalRows)
}

func TestCharts_SalesBySuburb(t *testing.T) {
	var rows []domain.Sale
	for i := range 20 {
		for range i + 1 {
			rows = append(rows, domain.Sale{Locality: fmt.Sprintf("L%02d", i), ContractDate: day(2023, 1, 1)})
		}
	}
	// A tie at the cut-off: L00 and Z00 both have one sale.
	rows = append(rows, domain.Sale{Locality: "Z00", ContractDate: day(2023, 1, 1)})

	s := ComputeCharts(rows).SalesBySuburb
	require.Len(t, s.Labels, 15)
	assert.Equal(t, "L05", s.Labels[0])
	assert.Equal(t, 6.0, s.Data[0])
	assert.Equal(t, "L19", s.Labels[14])
	assert.Equal(t, 20.0, s.Data[14])
	for i := 1; i < len(s.Data); i++ {
		assert.LessOrEqual(t, s.Data[i-1], s.Data[i], "ascending count order")
	}
}

func TestCharts_SuburbTiesOrderedByName(t *testing.T) {
	rows := []domain.Sale{{Locality: "Manly"}, {Locality: "Bondi"}, {Locality: "Ryde"}, {Locality: "Ryde"}}
	s := ComputeCharts(rows).SalesBySuburb
	assert.Equal(t, []string{"Bondi", "Manly", "Ryde"}, s.Labels)
	assert.Equal(t, []float64{1, 1, 2}, s.Data)
}

func TestCharts_PriceTrendMonthly(t *testing.T) {
	rows := []domain.Sale{
		{PurchasePrice: 100, ContractDate: day(2023, 3, 10)},
		{PurchasePrice: 300, ContractDate: day(2023, 3, 20)},
		{PurchasePrice: 50, ContractDate: day(2022, 12, 1)},
		{PurchasePrice: 70, ContractDate: day(2023, 5, 31)},
	}
	s := ComputeCharts(rows).PriceTrend
	assert.Equal(t, []string{"2022-12", "2023-03", "2023-05"}, s.Labels)
	assert.Equal(t, []float64{50, 200, 70}, s.Data)

	empty := ComputeCharts(nil)
	assert.Empty(t, empty.PriceTrend.Labels)
	assert.Empty(t, empty.SalesBySuburb.Labels)
}
