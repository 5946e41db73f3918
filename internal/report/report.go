// Package report aggregates orders, invoices and stock into report data and
// renders them as PDF documents.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
)

// TopProductsLimit caps the best sellers listed in a sales summary.
const TopProductsLimit = 10

// DailyRevenue is the revenue of one calendar day.
type DailyRevenue struct {
	Day    time.Time
	Orders int
	Total  decimal.Decimal
}

// Sales summarizes the orders of a period. Cancelled orders are counted in
// ByStatus but excluded from revenue.
type Sales struct {
	From     time.Time
	To       time.Time
	Orders   int
	ByStatus map[order.Status]int
	pricing.Totals
	VAT         []pricing.VATGroup
	Daily       []DailyRevenue
	TopProducts []order.ProductSummary
	Details     []order.Order
}

// Summarize aggregates the orders created in [from, to). A zero bound is
// open. Totals are summed over every line and rounded once.
func Summarize(orders []order.Order, from, to time.Time) Sales {
	s := Sales{From: from, To: to, ByStatus: make(map[order.Status]int)}

	var (
		lines    []pricing.Line
		counted  []order.Order
		byDay    = make(map[time.Time]*DailyRevenue)
		dayLines = make(map[time.Time][]pricing.Line)
	)
	for _, o := range orders {
		if !from.IsZero() && o.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !o.CreatedAt.Before(to) {
			continue
		}
		s.ByStatus[o.Status]++
		if o.Status == order.StatusCancelled {
			continue
		}

		counted = append(counted, o)
		lines = append(lines, o.Items...)

		day := time.Date(o.CreatedAt.Year(), o.CreatedAt.Month(), o.CreatedAt.Day(), 0, 0, 0, 0, o.CreatedAt.Location())
		dr, ok := byDay[day]
		if !ok {
			dr = &DailyRevenue{Day: day}
			byDay[day] = dr
		}
		dr.Orders++
		dayLines[day] = append(dayLines[day], o.Items...)
	}

	s.Orders = len(counted)
	s.Totals = pricing.AggregateTotals(lines).Round()
	s.VAT = pricing.AggregateByVATRate(lines)

	for day, dr := range byDay {
		dr.Total = pricing.AggregateTotals(dayLines[day]).Round().Total
		s.Daily = append(s.Daily, *dr)
	}
	slices.SortFunc(s.Daily, func(a, b DailyRevenue) int { return a.Day.Compare(b.Day) })

	top := order.SummarizeProducts(counted)
	slices.SortStableFunc(top, func(a, b order.ProductSummary) int {
		return cmp.Compare(b.Quantity, a.Quantity)
	})
	if len(top) > TopProductsLimit {
		top = top[:TopProductsLimit]
	}
	s.TopProducts = top
	s.Details = counted
	return s
}

// Invoices summarizes a set of invoices with their VAT breakdown.
type Invoices struct {
	Count int
	pricing.Totals
	VAT      []pricing.VATGroup
	ByStatus map[invoice.Status]int
	Invoices []invoice.Invoice
}

// SummarizeInvoices aggregates invoices. Per-invoice rounded amounts are
// summed for the totals; the VAT breakdown is recomputed from the lines.
func SummarizeInvoices(invoices []invoice.Invoice) Invoices {
	r := Invoices{
		Count:    len(invoices),
		ByStatus: make(map[invoice.Status]int),
		Invoices: invoices,
	}
	var lines []pricing.Line
	for _, inv := range invoices {
		r.Subtotal = r.Subtotal.Add(inv.Subtotal)
		r.Tax = r.Tax.Add(inv.Tax)
		r.Total = r.Total.Add(inv.Total)
		r.ByStatus[inv.Status]++
		lines = append(lines, inv.Items...)
	}
	r.VAT = pricing.AggregateByVATRate(lines)
	return r
}

// Stock describes the inventory value of a set of products.
type Stock struct {
	Products  int
	Units     int
	ValueHT   decimal.Decimal
	LowStock  int
	Alerts    []product.StockAlert
	Catalogue []product.Product
}

// SummarizeStock values the stock at HT sale price.
func SummarizeStock(products []product.Product) Stock {
	s := Stock{Products: len(products), Catalogue: products}
	for _, p := range products {
		s.Units += p.Stock
		s.ValueHT = s.ValueHT.Add(p.SalePriceHT.Mul(decimal.NewFromInt(int64(p.Stock))))
	}
	s.ValueHT = pricing.Round2(s.ValueHT)
	s.Alerts = product.Alerts(products)
	s.LowStock = len(s.Alerts)
	return s
}
