package api

import (
	"time"

	"propdash/internal/domain"
	"propdash/internal/service/ingestion"
)

// filterRequest is the body of /api/data and /api/export.
type filterRequest struct {
	SessionID     string      `json:"session_id"`
	Suburbs       *[]string   `json:"suburbs"`
	PriceRange    *[2]float64 `json:"priceRange"`
	DateRange     *[2]*string `json:"dateRange"`
	RepeatSales   bool        `json:"repeatSales"`
	SortColumn    string      `json:"sortColumn"`
	SortDirection string      `json:"sortDirection"`
	Page          int         `json:"page"`
}

func (r filterRequest) spec() domain.FilterSpec {
	spec := domain.FilterSpec{
		Suburbs:         r.Suburbs,
		PriceRange:      r.PriceRange,
		RepeatSalesOnly: r.RepeatSales,
		SortColumn:      r.SortColumn,
		SortDirection:   r.SortDirection,
		Page:            r.Page,
	}
	if r.DateRange != nil {
		spec.DateRange = domain.DateRange{Start: r.DateRange[0], End: r.DateRange[1]}
	}
	return spec
}

type uploadResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id"`
	Filters   domain.Bounds          `json:"filters"`
	Warnings  []string               `json:"warnings"`
	Metadata  domain.SessionMetadata `json:"metadata"`
}

type tablePage struct {
	Data      []map[string]any `json:"data"`
	TotalRows int              `json:"totalRows"`
	Page      int              `json:"page"`
	PageSize  int              `json:"pageSize"`
}

type dataResponse struct {
	Metrics  domain.Metrics `json:"metrics"`
	Charts   domain.Charts  `json:"charts"`
	Table    tablePage      `json:"table"`
	Warnings []string       `json:"warnings"`
}

type sessionResponse struct {
	Exists           bool       `json:"exists"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
	RowCount         int        `json:"row_count,omitempty"`
	ColumnCount      int        `json:"column_count,omitempty"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	Encoding         string     `json:"encoding,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	SessionBackend string `json:"session_backend"`
	Sessions       *int   `json:"sessions,omitempty"`
}

// tableRowColumns are the canonical columns rendered in each table row, in
// display order.
var tableRowColumns = []string{
	domain.ColHouseNumber,
	domain.ColStreetName,
	domain.ColLocality,
	domain.ColPurchasePrice,
	domain.ColContractDate,
	domain.ColPrimaryPurpose,
	domain.ColPropertyID,
}

// saleToRow renders a sale keyed by human column names. Missing optional
// values are null.
func saleToRow(s domain.Sale) map[string]any {
	opt := func(p *string) any {
		if p == nil {
			return nil
		}
		return *p
	}
	values := map[string]any{
		domain.ColHouseNumber:    opt(s.HouseNumber),
		domain.ColStreetName:     opt(s.StreetName),
		domain.ColLocality:       s.Locality,
		domain.ColPurchasePrice:  s.PurchasePrice,
		domain.ColContractDate:   s.ContractDate.Format(domain.DateLayout),
		domain.ColPrimaryPurpose: opt(s.PrimaryPurpose),
		domain.ColPropertyID:     s.PropertyID,
	}
	row := make(map[string]any, len(tableRowColumns))
	for _, c := range tableRowColumns {
		row[ingestion.DisplayName(c)] = values[c]
	}
	return row
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
