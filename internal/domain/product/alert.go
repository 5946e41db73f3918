package product

import "sort"

// Severity of a stock alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityLow      Severity = "low"
)

// StockAlert flags a product whose stock reached its alert quantity.
type StockAlert struct {
	ProductID    string
	ProductCode  string
	ProductName  string
	CurrentStock int
	MinStock     int
	Severity     Severity
}

// Alerts returns critical alerts (out of stock) first, then low ones
// (stock at or below the alert quantity), each group sorted by stock.
func Alerts(products []Product) []StockAlert {
	var alerts []StockAlert
	for _, p := range products {
		var sev Severity
		switch {
		case p.Stock <= 0:
			sev = SeverityCritical
		case p.Stock <= p.AlertQuantity:
			sev = SeverityLow
		default:
			continue
		}
		alerts = append(alerts, StockAlert{
			ProductID:    p.ID,
			ProductCode:  p.Code,
			ProductName:  p.Name,
			CurrentStock: p.Stock,
			MinStock:     p.AlertQuantity,
			Severity:     sev,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity == SeverityCritical
		}
		return alerts[i].CurrentStock < alerts[j].CurrentStock
	})
	return alerts
}
