package query

import (
	"sort"

	"propdash/internal/domain"
)

// topSuburbs bounds the sales-by-suburb chart.
const topSuburbs = 15

// ComputeMetrics returns count, sum, mean and median price. Mean and median
// are 0 for an empty set.
func ComputeMetrics(rows []domain.Sale) domain.Metrics {
	m := domain.Metrics{Count: len(rows)}
	if len(rows) == 0 {
		return m
	}
	prices := make([]float64, len(rows))
	for i, r := range rows {
		prices[i] = r.PurchasePrice
		m.Sum += r.PurchasePrice
	}
	m.Mean = m.Sum / float64(len(rows))
	m.Median = median(prices)
	return m
}

// median sorts prices in place.
func median(prices []float64) float64 {
	sort.Float64s(prices)
	n := len(prices)
	if n%2 == 1 {
		return prices[n/2]
	}
	return (prices[n/2-1] + prices[n/2]) / 2
}

// ComputeCharts builds the suburb and monthly price trend series.
func ComputeCharts(rows []domain.Sale) domain.Charts {
	return domain.Charts{
		SalesBySuburb: salesBySuburb(rows),
		PriceTrend:    priceTrend(rows),
	}
}

type suburbCount struct {
	name  string
	count int
}

// salesBySuburb keeps the 15 most frequent localities (ties broken by name)
// and lists them in ascending count order.
func salesBySuburb(rows []domain.Sale) domain.Series {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Locality]++
	}
	all := make([]suburbCount, 0, len(counts))
	for name, c := range counts {
		all = append(all, suburbCount{name, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].name < all[j].name
	})
	if len(all) > topSuburbs {
		all = all[:topSuburbs]
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count < all[j].count
		}
		return all[i].name < all[j].name
	})

	s := domain.Series{Labels: make([]string, len(all)), Data: make([]float64, len(all))}
	for i, sc := range all {
		s.Labels[i] = sc.name
		s.Data[i] = float64(sc.count)
	}
	return s
}

// priceTrend averages price per calendar month (YYYY-MM), ascending. Months
// without sales are omitted.
func priceTrend(rows []domain.Sale) domain.Series {
	type acc struct {
		sum float64
		n   int
	}
	months := make(map[string]*acc)
	for _, r := range rows {
		key := r.ContractDate.Format("2006-01")
		a, ok := months[key]
		if !ok {
			a = &acc{}
			months[key] = a
		}
		a.sum += r.PurchasePrice
		a.n++
	}

	labels := make([]string, 0, len(months))
	for k := range months {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	data := make([]float64, len(labels))
	for i, k := range labels {
		data[i] = months[k].sum / float64(months[k].n)
	}
	return domain.Series{Labels: labels, Data: data}
}
