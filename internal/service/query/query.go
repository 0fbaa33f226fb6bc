// Package query evaluates filter, sort, pagination and aggregation requests
// against an in-memory sales table. Evaluation is pure: the input table is
// never modified and concurrent calls on the same table are safe.
package query

import (
	"fmt"
	"log/slog"
	"time"

	"propdash/internal/domain"
)

// Warning recorded when filtering panics and the unfiltered table is used.
const warnFiltersNotApplied = "filters could not be applied"

// Engine evaluates FilterSpecs.
type Engine struct {
	apply  func([]domain.Sale, domain.FilterSpec) ([]domain.Sale, []string)
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{apply: applyFilters, logger: logger}
}

// Evaluate filters t by spec and returns metrics and charts over the whole
// filtered set plus the requested page of sorted rows.
func (e *Engine) Evaluate(t *domain.Table, spec domain.FilterSpec) domain.QueryResult {
	rows, warnings := e.Filter(t, spec)
	sorted := SortedRows(rows, spec, t.Columns)
	return domain.QueryResult{
		Metrics:  ComputeMetrics(rows),
		Charts:   ComputeCharts(rows),
		Page:     Paginate(sorted, spec.EffectivePage()),
		Warnings: warnings,
	}
}

// Sorted returns the complete filtered and sorted row set, as used for export.
func (e *Engine) Sorted(t *domain.Table, spec domain.FilterSpec) ([]domain.Sale, []string) {
	rows, warnings := e.Filter(t, spec)
	return SortedRows(rows, spec, t.Columns), warnings
}

// Filter applies the locality, price, date and repeat-sales stages in that
// order. If filtering panics the full table is returned with a warning.
func (e *Engine) Filter(t *domain.Table, spec domain.FilterSpec) (rows []domain.Sale, warnings []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("filter evaluation failed", "panic", r)
			rows = append([]domain.Sale(nil), t.Rows...)
			warnings = append(warnings, warnFiltersNotApplied)
		}
	}()
	return e.apply(t.Rows, spec)
}

func applyFilters(in []domain.Sale, spec domain.FilterSpec) ([]domain.Sale, []string) {
	var warnings []string
	var keep []func(domain.Sale) bool

	if spec.Suburbs != nil {
		set := make(map[string]struct{}, len(*spec.Suburbs))
		for _, s := range *spec.Suburbs {
			set[s] = struct{}{}
		}
		keep = append(keep, func(r domain.Sale) bool {
			_, ok := set[r.Locality]
			return ok
		})
	}

	if pr := spec.PriceRange; pr != nil {
		lo, hi := pr[0], pr[1]
		if lo > hi || lo < 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid price range [%v, %v] ignored", lo, hi))
		} else {
			keep = append(keep, func(r domain.Sale) bool {
				return r.PurchasePrice >= lo && r.PurchasePrice <= hi
			})
		}
	}

	if start, ok, w := parseBound("start", spec.DateRange.Start); w != "" {
		warnings = append(warnings, w)
	} else if ok {
		keep = append(keep, func(r domain.Sale) bool { return !r.ContractDate.Before(start) })
	}
	if end, ok, w := parseBound("end", spec.DateRange.End); w != "" {
		warnings = append(warnings, w)
	} else if ok {
		keep = append(keep, func(r domain.Sale) bool { return !r.ContractDate.After(end) })
	}

	out := make([]domain.Sale, 0, len(in))
rows:
	for _, r := range in {
		for _, k := range keep {
			if !k(r) {
				continue rows
			}
		}
		out = append(out, r)
	}

	if spec.RepeatSalesOnly {
		out = repeatSales(out)
	}
	return out, warnings
}

// parseBound parses an optional date bound. An empty or absent bound is not
// applied; an unparseable one yields a warning.
func parseBound(which string, v *string) (time.Time, bool, string) {
	if v == nil || *v == "" {
		return time.Time{}, false, ""
	}
	if t, err := time.Parse(domain.DateLayout, *v); err == nil {
		return t, true, ""
	}
	if t, err := time.Parse(time.RFC3339Nano, *v); err == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true, ""
	}
	return time.Time{}, false, fmt.Sprintf("Invalid %s date '%s' ignored", which, *v)
}

// repeatSales keeps rows whose PropertyID occurs more than once.
func repeatSales(rows []domain.Sale) []domain.Sale {
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.PropertyID]++
	}
	out := rows[:0:0]
	for _, r := range rows {
		if counts[r.PropertyID] > 1 {
			out = append(out, r)
		}
	}
	return out
}
