package query

import (
	"cmp"
	"slices"
	"strings"

	"propdash/internal/domain"
	"propdash/internal/service/ingestion"
)

// DefaultSortColumn is used when the requested column is absent.
const DefaultSortColumn = domain.ColContractDate

type indexedSale struct {
	idx  int
	sale domain.Sale
}

// SortedRows returns a sorted copy of rows. The sort column may be given in
// canonical or display form and must be present in columns, otherwise
// ContractDate is used. Ties fall back to PropertyID and then input order.
// Null optional values always sort last. With RepeatSalesOnly the rows are
// grouped by address and then PropertyID (both ascending) and ordered by
// date within each group.
func SortedRows(rows []domain.Sale, spec domain.FilterSpec, columns []string) []domain.Sale {
	items := make([]indexedSale, len(rows))
	for i, r := range rows {
		items[i] = indexedSale{i, r}
	}
	asc := spec.Ascending()

	var primary func(a, b domain.Sale) int
	if spec.RepeatSalesOnly {
		primary = func(a, b domain.Sale) int {
			if c := strings.Compare(a.Address(), b.Address()); c != 0 {
				return c
			}
			if c := strings.Compare(a.PropertyID, b.PropertyID); c != 0 {
				return c
			}
			return directed(a.ContractDate.Compare(b.ContractDate), asc)
		}
	} else {
		primary = columnComparator(resolveSortColumn(spec.SortColumn, columns), asc)
	}

	slices.SortStableFunc(items, func(a, b indexedSale) int {
		if c := primary(a.sale, b.sale); c != 0 {
			return c
		}
		if c := strings.Compare(a.sale.PropertyID, b.sale.PropertyID); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	out := make([]domain.Sale, len(items))
	for i, it := range items {
		out[i] = it.sale
	}
	return out
}

func resolveSortColumn(requested string, columns []string) string {
	canonical, ok := ingestion.CanonicalName(requested)
	if !ok || !slices.Contains(columns, canonical) {
		return DefaultSortColumn
	}
	return canonical
}

func directed(c int, asc bool) int {
	if asc {
		return c
	}
	return -c
}

func columnComparator(column string, asc bool) func(a, b domain.Sale) int {
	switch column {
	case domain.ColPropertyID:
		return func(a, b domain.Sale) int { return directed(strings.Compare(a.PropertyID, b.PropertyID), asc) }
	case domain.ColLocality:
		return func(a, b domain.Sale) int { return directed(strings.Compare(a.Locality, b.Locality), asc) }
	case domain.ColPurchasePrice:
		return func(a, b domain.Sale) int { return directed(cmp.Compare(a.PurchasePrice, b.PurchasePrice), asc) }
	case domain.ColHouseNumber:
		return optionalComparator(func(s domain.Sale) *string { return s.HouseNumber }, asc)
	case domain.ColStreetName:
		return optionalComparator(func(s domain.Sale) *string { return s.StreetName }, asc)
	case domain.ColPrimaryPurpose:
		return optionalComparator(func(s domain.Sale) *string { return s.PrimaryPurpose }, asc)
	default:
		return func(a, b domain.Sale) int { return directed(a.ContractDate.Compare(b.ContractDate), asc) }
	}
}

// optionalComparator orders nil values after all present values in either
// direction.
func optionalComparator(field func(domain.Sale) *string, asc bool) func(a, b domain.Sale) int {
	return func(a, b domain.Sale) int {
		fa, fb := field(a), field(b)
		switch {
		case fa == nil && fb == nil:
			return 0
		case fa == nil:
			return 1
		case fb == nil:
			return -1
		}
		return directed(strings.Compare(*fa, *fb), asc)
	}
}

// Paginate returns the 1-indexed page of rows. Pages past the end are empty
// but still report the total.
func Paginate(rows []domain.Sale, page int) domain.Page {
	if page < 1 {
		page = 1
	}
	p := domain.Page{TotalRows: len(rows), Page: page, PageSize: domain.PageSize, Rows: []domain.Sale{}}
	if pages := (len(rows) + domain.PageSize - 1) / domain.PageSize; page > pages {
		return p
	}
	start := (page - 1) * domain.PageSize
	end := min(start+domain.PageSize, len(rows))
	p.Rows = append(p.Rows, rows[start:end]...)
	return p
}
