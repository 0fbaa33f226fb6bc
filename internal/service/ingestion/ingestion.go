// Package ingestion turns uploaded property-sale files into clean tables.
package ingestion

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"propdash/internal/domain"
)

// Result is the outcome of a successful Process call.
type Result struct {
	Table    *domain.Table
	Metadata domain.SessionMetadata
	Bounds   domain.Bounds
	Warnings []string
}

// Normalizer decodes, validates and cleans raw uploads.
type Normalizer struct {
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Normalizer that rejects payloads larger than maxBytes.
func New(maxBytes int64, logger *slog.Logger) *Normalizer {
	return &Normalizer{maxBytes: maxBytes, logger: logger}
}

// MaxBytes returns the configured upload size ceiling.
func (n *Normalizer) MaxBytes() int64 { return n.maxBytes }

// Process runs the full ingestion pipeline over raw. Failures are returned
// as *domain.ProcessingError or *domain.ValidationError with a stable code.
func (n *Normalizer) Process(raw []byte, filename string) (*Result, error) {
	if n.maxBytes > 0 && int64(len(raw)) > n.maxBytes {
		return nil, domain.ErrProcessing(domain.CodeFileTooLarge,
			"File too large: %d bytes (max: %d)", len(raw), n.maxBytes)
	}
	if len(raw) == 0 {
		return nil, domain.ErrValidation(domain.CodeNoFile, "Uploaded file is empty")
	}

	detected := detectEncoding(raw)
	text, used, err := decodeText(raw, detected)
	if err != nil {
		return nil, domain.ErrProcessing(domain.CodeEncodingError, "Unable to decode file with any supported encoding")
	}
	if used != detected {
		n.logger.Info("encoding detection corrected", "detected", detected, "used", used, "filename", filename)
	}

	parsed, err := parseDelimited(text)
	if err != nil {
		return nil, domain.ErrProcessing(domain.CodeInvalidFormat, "Invalid file format: %v", err)
	}
	if len(parsed.records) == 0 {
		return nil, domain.ErrValidation(domain.CodeEmptyData, "File contains no data")
	}

	mapping := resolveColumns(parsed.headers)
	if missing := mapping.missing(); len(missing) > 0 {
		return nil, domain.ErrValidation(domain.CodeMissingColumns,
			"Missing required columns: %s. Available columns: %s",
			strings.Join(missing, ", "), strings.Join(parsed.headers, ", "))
	}

	warnings := append([]string(nil), mapping.notes...)
	warnings = append(warnings, inspectColumns(parsed, mapping)...)

	table, stats := buildTable(parsed, mapping)
	if parsed.malformed > 0 {
		warnings = append(warnings, fmt.Sprintf("Skipped %d malformed rows", parsed.malformed))
	}
	if stats.incomplete > 0 {
		warnings = append(warnings, fmt.Sprintf("Removed %d rows with missing required values", stats.incomplete))
	}
	if stats.duplicates > 0 {
		warnings = append(warnings, fmt.Sprintf("Removed %d duplicate rows", stats.duplicates))
	}

	originalRows := len(parsed.records) + parsed.malformed
	if removed := originalRows - len(table.Rows); removed > 0 {
		n.logger.Info("removed rows during cleaning", "removed", removed, "remaining", len(table.Rows), "filename", filename)
	}
	if len(table.Rows) == 0 {
		return nil, domain.ErrValidation(domain.CodeEmptyData, "File contains no valid rows after cleaning")
	}

	meta := domain.SessionMetadata{
		OriginalFilename: filename,
		DetectedEncoding: used,
		Delimiter:        delimiterName(parsed.delimiter),
		FileSize:         len(raw),
		OriginalRows:     originalRows,
		OriginalColumns:  len(parsed.headers),
		RowCount:         len(table.Rows),
		ColumnCount:      len(table.Columns),
		Warnings:         warnings,
	}

	return &Result{
		Table:    table,
		Metadata: meta,
		Bounds:   ComputeBounds(table),
		Warnings: warnings,
	}, nil
}

// inspectColumns produces the schema-level warnings for a resolved table.
func inspectColumns(pt *parsedTable, m *columnMapping) []string {
	var warnings []string

	var empty []string
	for i, h := range pt.headers {
		allEmpty := true
		for _, rec := range pt.records {
			if !isNullToken(rec[i]) {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			empty = append(empty, h)
		}
	}
	if len(empty) > 0 {
		warnings = append(warnings, fmt.Sprintf("Empty columns found: %s", strings.Join(empty, ", ")))
	}

	priceHeader := pt.headers[m.index[domain.ColPurchasePrice]]
	for _, rec := range pt.records {
		v := rec[m.index[domain.ColPurchasePrice]]
		if !isNullToken(v) && !isPlainNumber(v) {
			warnings = append(warnings, fmt.Sprintf("Price column '%s' converted to numeric", priceHeader))
			break
		}
	}

	dateHeader := pt.headers[m.index[domain.ColContractDate]]
	for _, rec := range pt.records {
		v := rec[m.index[domain.ColContractDate]]
		if !isNullToken(v) && !isISODate(v) {
			warnings = append(warnings, fmt.Sprintf("Date column '%s' will be converted to datetime", dateHeader))
			break
		}
	}
	return warnings
}

type cleanStats struct {
	incomplete int
	duplicates int
}

// buildTable coerces every record onto the canonical schema, dropping rows
// with missing required values and exact duplicates. Row order is preserved.
func buildTable(pt *parsedTable, m *columnMapping) (*domain.Table, cleanStats) {
	var stats cleanStats

	columns := append([]string(nil), domain.RequiredColumns...)
	for _, c := range domain.OptionalColumns {
		if m.has(c) {
			columns = append(columns, c)
		}
	}

	optional := func(rec []string, canonical string) *string {
		i, ok := m.index[canonical]
		if !ok {
			return nil
		}
		return cleanText(rec[i])
	}

	seen := make(map[string]struct{}, len(pt.records))
	rows := make([]domain.Sale, 0, len(pt.records))
	for _, rec := range pt.records {
		id := cleanText(rec[m.index[domain.ColPropertyID]])
		locality := cleanText(rec[m.index[domain.ColLocality]])
		price, priceOK := parsePrice(rec[m.index[domain.ColPurchasePrice]])
		date, dateOK := parseDate(rec[m.index[domain.ColContractDate]])
		if id == nil || locality == nil || !priceOK || !dateOK {
			stats.incomplete++
			continue
		}

		sale := domain.Sale{
			PropertyID:     *id,
			Locality:       *locality,
			PurchasePrice:  price,
			ContractDate:   date,
			HouseNumber:    optional(rec, domain.ColHouseNumber),
			StreetName:     optional(rec, domain.ColStreetName),
			PrimaryPurpose: optional(rec, domain.ColPrimaryPurpose),
		}

		key := dedupKey(sale)
		if _, dup := seen[key]; dup {
			stats.duplicates++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, sale)
	}

	return &domain.Table{Columns: columns, Rows: rows}, stats
}

func dedupKey(s domain.Sale) string {
	opt := func(p *string) string {
		if p == nil {
			return "\x00"
		}
		return *p
	}
	return strings.Join([]string{
		s.PropertyID,
		s.Locality,
		fmt.Sprintf("%v", s.PurchasePrice),
		s.ContractDate.Format(domain.DateLayout),
		opt(s.HouseNumber),
		opt(s.StreetName),
		opt(s.PrimaryPurpose),
	}, "\x1f")
}

// ComputeBounds returns the initial filter extents of t.
func ComputeBounds(t *domain.Table) domain.Bounds {
	var b domain.Bounds
	if len(t.Rows) == 0 {
		b.Localities = []string{}
		return b
	}

	localities := make(map[string]struct{})
	minP, maxP := t.Rows[0].PurchasePrice, t.Rows[0].PurchasePrice
	minD, maxD := t.Rows[0].ContractDate, t.Rows[0].ContractDate
	for _, r := range t.Rows {
		localities[r.Locality] = struct{}{}
		minP = min(minP, r.PurchasePrice)
		maxP = max(maxP, r.PurchasePrice)
		if r.ContractDate.Before(minD) {
			minD = r.ContractDate
		}
		if r.ContractDate.After(maxD) {
			maxD = r.ContractDate
		}
	}

	b.Localities = make([]string, 0, len(localities))
	for l := range localities {
		b.Localities = append(b.Localities, l)
	}
	sort.Strings(b.Localities)
	b.PriceRange = [2]float64{minP, maxP}
	b.DateRange = [2]string{formatDate(minD), formatDate(maxD)}
	return b
}

func formatDate(t time.Time) string { return t.Format(domain.DateLayout) }
