package domain

import (
	"strings"
	"time"
)

// Canonical column names every ingested table is mapped onto.
const (
	ColPropertyID     = "PropertyID"
	ColLocality       = "Locality"
	ColPurchasePrice  = "PurchasePrice"
	ColContractDate   = "ContractDate"
	ColHouseNumber    = "HouseNumber"
	ColStreetName     = "StreetName"
	ColPrimaryPurpose = "PrimaryPurpose"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// RequiredColumns must resolve for an upload to be accepted.
var RequiredColumns = []string{ColPropertyID, ColLocality, ColPurchasePrice, ColContractDate}

// OptionalColumns are carried when present but never required.
var OptionalColumns = []string{ColHouseNumber, ColStreetName, ColPrimaryPurpose}

// Sale is one property sale record. Required fields are always populated;
// optional fields are nil when the source value was empty or absent.
type Sale struct {
	PropertyID     string
	Locality       string
	PurchasePrice  float64
	ContractDate   time.Time
	HouseNumber    *string
	StreetName     *string
	PrimaryPurpose *string
}

// Address synthesizes "HouseNumber StreetName, Locality", omitting missing
// parts without leaving stray separators.
func (s Sale) Address() string {
	var street []string
	if s.HouseNumber != nil && *s.HouseNumber != "" {
		street = append(street, *s.HouseNumber)
	}
	if s.StreetName != nil && *s.StreetName != "" {
		street = append(street, *s.StreetName)
	}
	line := strings.Join(street, " ")
	switch {
	case line == "":
		return s.Locality
	case s.Locality == "":
		return line
	default:
		return line + ", " + s.Locality
	}
}

// Table is an ordered collection of sales plus the canonical columns present.
type Table struct {
	Columns []string
	Rows    []Sale
}

// HasColumn reports whether the canonical column is present in the table.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Bounds are the initial filter extents returned after a successful upload.
type Bounds struct {
	Localities []string   `json:"suburbs"`
	PriceRange [2]float64 `json:"priceRange"`
	DateRange  [2]string  `json:"dateRange"`
}
