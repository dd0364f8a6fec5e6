package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name          string
		entries       []Entry
		wantEarned    decimal.Decimal
		wantUsed      decimal.Decimal
		wantAvailable decimal.Decimal
		wantReserved  decimal.Decimal
	}{
		{
			name:          "no orders",
			wantEarned:    decimal.Zero,
			wantUsed:      decimal.Zero,
			wantAvailable: decimal.Zero,
			wantReserved:  decimal.Zero,
		},
		{
			name: "single paid order earns one percent",
			entries: []Entry{
				{Settled: true, Total: d("100.00"), PointsUsed: decimal.Zero},
			},
			wantEarned:    d("1.00"),
			wantUsed:      decimal.Zero,
			wantAvailable: d("1.00"),
			wantReserved:  decimal.Zero,
		},
		{
			name: "earned points are truncated per order",
			entries: []Entry{
				{Settled: true, Total: d("99.99")},
				{Settled: true, Total: d("0.99")},
			},
			// 0.9999 -> 0.99 and 0.0099 -> 0.00
			wantEarned:    d("0.99"),
			wantUsed:      decimal.Zero,
			wantAvailable: d("0.99"),
			wantReserved:  decimal.Zero,
		},
		{
			name: "used points are subtracted",
			entries: []Entry{
				{Settled: true, Total: d("250.00")},
				{Settled: true, Total: d("40.00"), PointsUsed: d("1.50")},
			},
			wantEarned:    d("2.90"),
			wantUsed:      d("1.50"),
			wantAvailable: d("1.40"),
			wantReserved:  decimal.Zero,
		},
		{
			name: "unsettled orders contribute nothing",
			entries: []Entry{
				{Total: d("500.00"), PointsUsed: d("3.00")},
				{Settled: true, Total: d("100.00")},
			},
			wantEarned:    d("1.00"),
			wantUsed:      decimal.Zero,
			wantAvailable: d("1.00"),
			wantReserved:  decimal.Zero,
		},
		{
			name: "open orders reserve their points",
			entries: []Entry{
				{Settled: true, Total: d("300.00")},
				{Open: true, Total: d("20.00"), PointsUsed: d("2.00")},
			},
			wantEarned:    d("3.00"),
			wantUsed:      decimal.Zero,
			wantAvailable: d("3.00"),
			wantReserved:  d("2.00"),
		},
		{
			name: "available is floored at zero",
			entries: []Entry{
				{Settled: true, Total: d("10.00"), PointsUsed: d("5.00")},
			},
			wantEarned:    d("0.10"),
			wantUsed:      d("5.00"),
			wantAvailable: decimal.Zero,
			wantReserved:  decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.entries)

			assert.True(t, tt.wantEarned.Equal(got.Earned), "earned: want %s, got %s", tt.wantEarned, got.Earned)
			assert.True(t, tt.wantUsed.Equal(got.Used), "used: want %s, got %s", tt.wantUsed, got.Used)
			assert.True(t, tt.wantAvailable.Equal(got.Available), "available: want %s, got %s", tt.wantAvailable, got.Available)
			assert.True(t, tt.wantReserved.Equal(got.Reserved), "reserved: want %s, got %s", tt.wantReserved, got.Reserved)
		})
	}
}

func TestCompute_NeverNegativeNorAboveEarned(t *testing.T) {
	totals := []string{"0.00", "0.50", "12.34", "100.00", "999.99"}
	used := []string{"0.00", "0.01", "1.00", "7.77", "50.00"}

	for _, total := range totals {
		for _, u := range used {
			b := Compute([]Entry{
				{Settled: true, Total: d(total), PointsUsed: d(u)},
				{Settled: true, Total: d("42.00")},
			})
			assert.False(t, b.Available.IsNegative(), "total=%s used=%s", total, u)
			assert.True(t, b.Available.LessThanOrEqual(b.Earned), "total=%s used=%s", total, u)
		}
	}
}

func TestBalance_Spendable(t *testing.T) {
	b := Balance{Available: d("3.00"), Reserved: d("1.25")}
	assert.True(t, d("1.75").Equal(b.Spendable()))

	b = Balance{Available: d("1.00"), Reserved: d("4.00")}
	assert.True(t, decimal.Zero.Equal(b.Spendable()))
}

func TestEarnedOn(t *testing.T) {
	assert.True(t, d("0.12").Equal(EarnedOn(d("12.99"))))
	assert.True(t, decimal.Zero.Equal(EarnedOn(d("0.99"))))
}
