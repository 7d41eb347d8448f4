package generator

import (
	"churngen/pkg/models"
)

// DeriveChurn recomputes churn from order dates alone: customers ordering in
// the first-half window minus customers ordering after the cutoff.
func DeriveChurn(orders []models.Order, cal models.Calendar) models.ChurnReport {
	firstHalf := map[string]struct{}{}
	afterCutoff := map[string]struct{}{}
	for _, o := range orders {
		if cal.InFirstHalf(o.OrderDate) {
			firstHalf[o.CustomerID] = struct{}{}
		}
		if cal.AfterCutoff(o.OrderDate) {
			afterCutoff[o.CustomerID] = struct{}{}
		}
	}

	labels := make(map[string]bool, len(firstHalf))
	churned := 0
	for id := range firstHalf {
		_, seen := afterCutoff[id]
		labels[id] = !seen
		if !seen {
			churned++
		}
	}

	rate := 0.0
	if len(firstHalf) > 0 {
		rate = float64(churned) / float64(len(firstHalf))
	}
	return models.ChurnReport{
		FirstHalfCustomers: len(firstHalf),
		Churned:            churned,
		Rate:               rate,
		Labels:             labels,
	}
}

// Agreement counts customers whose derived label matches latent. A customer
// outside the first-half set derives as not churned.
func Agreement(report models.ChurnReport, customers []models.Customer, latent []bool) int {
	n := 0
	for i, c := range customers {
		if i < len(latent) && report.Labels[c.ID] == latent[i] {
			n++
		}
	}
	return n
}
