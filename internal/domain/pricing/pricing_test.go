package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(qty int, priceHT, rate string) Line {
	l := Line{ProductID: "p", Quantity: qty, PriceHT: d(priceHT), VATRate: d(rate)}
	l.Recompute()
	return l
}

func TestVATRateForCategory(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"SNACK", "6"},
		{"snack", "6"},
		{"Boisson", "6"},
		{"BOISSON", "6"},
		{"EMBALLAGE", "21"},
		{" emballage ", "21"},
		{"Divers", "6"},
		{"", "6"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got := VATRateForCategory(tt.category)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestComputeLineTotals(t *testing.T) {
	tests := []struct {
		name     string
		qty      int
		priceHT  string
		rate     string
		priceTTC string
		totalHT  string
		totalTTC string
	}{
		{"single snack", 1, "10", "6", "10.6", "10", "10.6"},
		{"two snacks", 2, "10", "6", "10.6", "20", "21.2"},
		{"packaging at 21%", 3, "1.50", "21", "1.82", "4.5", "5.46"},
		{"ttc rounded to cents", 7, "0.333", "6", "0.35", "2.331", "2.45"},
		{"zero price", 5, "0", "6", "0", "0", "0"},
		{"zero rate", 4, "2.5", "0", "2.5", "10", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLineTotals(tt.qty, d(tt.priceHT), d(tt.rate))
			assert.True(t, d(tt.priceTTC).Equal(got.PriceTTC), "price ttc %s", got.PriceTTC)
			assert.True(t, d(tt.totalHT).Equal(got.TotalHT), "total ht %s", got.TotalHT)
			assert.True(t, d(tt.totalTTC).Equal(got.TotalTTC), "total ttc %s", got.TotalTTC)
		})
	}
}

func TestComputeLineTotals_NonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -1} {
		got := ComputeLineTotals(qty, d("10"), d("6"))
		assert.True(t, got.TotalHT.IsZero())
		assert.True(t, got.TotalTTC.IsZero())
	}
}

func TestComputeLineTotals_WithinTolerance(t *testing.T) {
	tolerance := d("0.01")
	for qty := 1; qty <= 25; qty++ {
		for _, price := range []string{"0.01", "0.99", "1.37", "12.345", "99.99"} {
			for _, rate := range []string{"0", "6", "21"} {
				got := ComputeLineTotals(qty, d(price), d(rate))
				q := decimal.NewFromInt(int64(qty))

				assert.True(t, d(price).Mul(q).Equal(got.TotalHT))

				exact := d(price).Mul(q).Mul(d(rate).Add(hundred)).Div(hundred)
				diff := got.TotalTTC.Sub(exact).Abs()
				// Per-unit TTC rounding may drift by half a cent per unit.
				limit := tolerance.Mul(q)
				assert.True(t, diff.LessThanOrEqual(limit),
					"qty=%d price=%s rate=%s diff=%s", qty, price, rate, diff)
			}
		}
	}
}

func TestAggregateTotals(t *testing.T) {
	lines := []Line{
		line(1, "100", "21"),
		line(1, "50", "6"),
	}

	got := AggregateTotals(lines)
	assert.True(t, d("150").Equal(got.Subtotal))
	assert.True(t, d("24").Equal(got.Tax))
	assert.True(t, d("174").Equal(got.Total))
}

func TestAggregateTotals_Empty(t *testing.T) {
	got := AggregateTotals(nil)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestAggregateTotals_SumThenRound(t *testing.T) {
	// Each line carries 0.0042 of VAT; rounding per line would give 0.
	lines := []Line{
		line(1, "0.07", "6"),
		line(1, "0.07", "6"),
		line(1, "0.07", "6"),
	}

	got := AggregateTotals(lines).Round()
	assert.True(t, d("0.21").Equal(got.Subtotal))
	assert.True(t, d("0.01").Equal(got.Tax))
	assert.True(t, d("0.22").Equal(got.Total))
}

func TestTotalsRound_KeepsTotalConsistent(t *testing.T) {
	tot := Totals{Subtotal: d("10.004"), Tax: d("0.604"), Total: d("10.608")}
	r := tot.Round()
	assert.True(t, r.Subtotal.Add(r.Tax).Equal(r.Total))
}

func TestAggregateByVATRate(t *testing.T) {
	lines := []Line{
		line(1, "100", "21"),
		line(1, "50", "6"),
	}

	groups := AggregateByVATRate(lines)
	require.Len(t, groups, 2)

	assert.True(t, d("6").Equal(groups[0].Rate))
	assert.True(t, d("50").Equal(groups[0].TotalHT))
	assert.True(t, d("3").Equal(groups[0].TotalVAT))
	assert.True(t, d("53").Equal(groups[0].TotalTTC))

	assert.True(t, d("21").Equal(groups[1].Rate))
	assert.True(t, d("100").Equal(groups[1].TotalHT))
	assert.True(t, d("21").Equal(groups[1].TotalVAT))
	assert.True(t, d("121").Equal(groups[1].TotalTTC))
}

func TestAggregateByVATRate_MergesSameRate(t *testing.T) {
	lines := []Line{
		line(2, "10", "6"),
		line(1, "5", "6.0"),
	}

	groups := AggregateByVATRate(lines)
	require.Len(t, groups, 1)
	assert.True(t, d("25").Equal(groups[0].TotalHT))
	assert.True(t, d("1.5").Equal(groups[0].TotalVAT))
}

func TestLineValid(t *testing.T) {
	assert.True(t, line(1, "1", "6").Valid())
	assert.False(t, line(1, "0", "6").Valid())
	assert.False(t, Line{Quantity: 1, PriceHT: d("1")}.Valid())
}
