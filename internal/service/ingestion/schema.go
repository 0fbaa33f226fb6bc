package ingestion

import (
	"fmt"
	"strings"

	"propdash/internal/domain"
)

// displayNames are the human spellings written by common property-sale
// exports. A header equal to either the canonical or display name is a
// direct match.
var displayNames = map[string]string{
	domain.ColPropertyID:     "Property ID",
	domain.ColLocality:       "Property locality",
	domain.ColPurchasePrice:  "Purchase price",
	domain.ColContractDate:   "Contract date",
	domain.ColHouseNumber:    "Property house number",
	domain.ColStreetName:     "Property street name",
	domain.ColPrimaryPurpose: "Primary purpose",
}

// columnAliases lists accepted header variations per canonical column.
// Matching is case-insensitive and ignores spaces, underscores, hyphens and dots.
var columnAliases = map[string][]string{
	domain.ColPropertyID:     {"property id", "property_id", "propertyid", "id"},
	domain.ColLocality:       {"property locality", "locality", "suburb", "location"},
	domain.ColPurchasePrice:  {"purchase price", "price", "sale price", "sale_price"},
	domain.ColContractDate:   {"contract date", "date", "sale date", "sale_date"},
	domain.ColHouseNumber:    {"property house number", "house number", "house_number", "number"},
	domain.ColStreetName:     {"property street name", "street name", "street_name", "street"},
	domain.ColPrimaryPurpose: {"primary purpose", "primary_purpose", "purpose", "property_type"},
}

// aliasIndex maps a normalized alias key to its canonical column.
var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for canonical, aliases := range columnAliases {
		idx[aliasKey(canonical)] = canonical
		for _, a := range aliases {
			idx[aliasKey(a)] = canonical
		}
	}
	return idx
}

// aliasKey folds case and separator differences out of a header name.
func aliasKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DisplayName returns the human column title for a canonical column.
func DisplayName(canonical string) string {
	if n, ok := displayNames[canonical]; ok {
		return n
	}
	return canonical
}

// CanonicalName resolves a canonical or display column name (as a caller
// might send in a sort request) to its canonical form.
func CanonicalName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for canonical, display := range displayNames {
		if name == canonical || name == display {
			return canonical, true
		}
	}
	canonical, ok := aliasIndex[aliasKey(name)]
	return canonical, ok
}

// columnMapping records which header index feeds each canonical column.
type columnMapping struct {
	index   map[string]int
	headers []string
	notes   []string
}

func (m *columnMapping) has(canonical string) bool {
	_, ok := m.index[canonical]
	return ok
}

// missing returns the required columns that could not be resolved.
func (m *columnMapping) missing() []string {
	var out []string
	for _, c := range domain.RequiredColumns {
		if !m.has(c) {
			out = append(out, c)
		}
	}
	return out
}

// resolveColumns maps trimmed headers onto the canonical schema. Direct
// matches take precedence over alias matches; each header feeds at most one
// canonical column and unmatched headers are left alone.
func resolveColumns(headers []string) *columnMapping {
	m := &columnMapping{index: make(map[string]int), headers: headers}
	claimed := make(map[int]bool)

	canonicalOrder := append(append([]string(nil), domain.RequiredColumns...), domain.OptionalColumns...)

	for _, canonical := range canonicalOrder {
		for i, h := range headers {
			if !claimed[i] && (h == canonical || h == displayNames[canonical]) {
				m.index[canonical] = i
				claimed[i] = true
				break
			}
		}
	}

	for _, canonical := range canonicalOrder {
		if m.has(canonical) {
			continue
		}
		for i, h := range headers {
			if claimed[i] {
				continue
			}
			if aliasIndex[aliasKey(h)] == canonical {
				m.index[canonical] = i
				claimed[i] = true
				m.notes = append(m.notes, fmt.Sprintf("Mapped '%s' to '%s'", h, canonical))
				break
			}
		}
	}
	return m
}
