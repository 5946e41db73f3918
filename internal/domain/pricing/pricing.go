// Package pricing derives line and document totals from quantity, unit HT
// price and VAT rate.
//
// All functions are pure. Aggregation sums unrounded values and rounding to
// cents happens once, when a caller persists or displays the result.
package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// DefaultVATRate applies to categories without a dedicated rate.
var DefaultVATRate = decimal.NewFromInt(6)

// vatRates is keyed by upper-case category name.
var vatRates = map[string]decimal.Decimal{
	"SNACK":     decimal.NewFromInt(6),
	"BOISSON":   decimal.NewFromInt(6),
	"EMBALLAGE": decimal.NewFromInt(21),
}

// VATRateForCategory returns the VAT percentage for a product category.
// Lookup is case-insensitive; unknown categories get DefaultVATRate.
func VATRateForCategory(category string) decimal.Decimal {
	if rate, ok := vatRates[strings.ToUpper(strings.TrimSpace(category))]; ok {
		return rate
	}
	return DefaultVATRate
}

// Round2 rounds a monetary amount to cents.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// PriceTTC returns the VAT-inclusive unit price rounded to cents.
func PriceTTC(priceHT, vatRate decimal.Decimal) decimal.Decimal {
	return Round2(priceHT.Mul(hundred.Add(vatRate)).Div(hundred))
}

// LineTotals holds the derived amounts of a single line.
type LineTotals struct {
	PriceTTC decimal.Decimal
	TotalHT  decimal.Decimal
	TotalTTC decimal.Decimal
}

// ComputeLineTotals derives unit TTC price and line totals.
// A quantity below one yields zero totals; callers treat it as removal.
func ComputeLineTotals(quantity int, priceHT, vatRate decimal.Decimal) LineTotals {
	ttc := PriceTTC(priceHT, vatRate)
	if quantity < 1 {
		return LineTotals{PriceTTC: ttc, TotalHT: zero, TotalTTC: zero}
	}

	qty := decimal.NewFromInt(int64(quantity))
	return LineTotals{
		PriceTTC: ttc,
		TotalHT:  priceHT.Mul(qty),
		TotalTTC: ttc.Mul(qty),
	}
}

// Line is one product-quantity entry of a cart, order or invoice. Product
// fields are a snapshot taken when the line was added.
type Line struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	PriceHT     decimal.Decimal `json:"price_ht"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	PriceTTC    decimal.Decimal `json:"price_ttc"`
	TotalHT     decimal.Decimal `json:"total_ht"`
	TotalTTC    decimal.Decimal `json:"total_ttc"`
}

// Recompute refreshes every derived field from Quantity, PriceHT and VATRate.
func (l *Line) Recompute() {
	t := ComputeLineTotals(l.Quantity, l.PriceHT, l.VATRate)
	l.PriceTTC = t.PriceTTC
	l.TotalHT = t.TotalHT
	l.TotalTTC = t.TotalTTC
}

// Valid reports whether the line references a product with a positive price.
func (l Line) Valid() bool {
	return l.ProductID != "" && l.Quantity > 0 && l.PriceHT.IsPositive()
}

// VAT returns the unrounded VAT amount of the line.
func (l Line) VAT() decimal.Decimal {
	return l.TotalHT.Mul(l.VATRate).Div(hundred)
}

// Totals is the aggregate of a line collection.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Round returns the totals rounded to cents. Total is re-derived from the
// rounded parts so that Total == Subtotal + Tax holds after rounding too.
func (t Totals) Round() Totals {
	sub := Round2(t.Subtotal)
	tax := Round2(t.Tax)
	return Totals{Subtotal: sub, Tax: tax, Total: sub.Add(tax)}
}

// AggregateTotals sums the lines without intermediate rounding.
func AggregateTotals(lines []Line) Totals {
	subtotal, tax := zero, zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.TotalHT)
		tax = tax.Add(l.VAT())
	}
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// VATGroup is the per-rate breakdown used on multi-rate invoices.
type VATGroup struct {
	Rate     decimal.Decimal
	TotalHT  decimal.Decimal
	TotalVAT decimal.Decimal
	TotalTTC decimal.Decimal
}

// AggregateByVATRate groups lines by VAT rate, ordered by ascending rate.
// A group's VAT is computed on its summed HT amount and rounded to cents.
func AggregateByVATRate(lines []Line) []VATGroup {
	byRate := make(map[string]*VATGroup)
	for _, l := range lines {
		key := l.VATRate.String()
		g, ok := byRate[key]
		if !ok {
			g = &VATGroup{Rate: l.VATRate, TotalHT: zero}
			byRate[key] = g
		}
		g.TotalHT = g.TotalHT.Add(l.TotalHT)
	}

	groups := make([]VATGroup, 0, len(byRate))
	for _, g := range byRate {
		g.TotalVAT = Round2(g.TotalHT.Mul(g.Rate).Div(hundred))
		g.TotalTTC = Round2(g.TotalHT).Add(g.TotalVAT)
		g.TotalHT = Round2(g.TotalHT)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Rate.LessThan(groups[j].Rate)
	})
	return groups
}
