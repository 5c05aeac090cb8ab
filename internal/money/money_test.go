package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q) error = %v", s, err)
	}
	return d
}

func TestCost(t *testing.T) {
	cases := []struct {
		name   string
		price  string
		units  string
		feePct string
		want   string
	}{
		{"maker 0.15pct", "0.01", "10", "0.15", "0.1001500000000000"},
		{"zero fee", "0.01", "10", "0", "0.1000000000000000"},
		{"repeating product", "0.0000000123456789", "3", "0.1", "0.0000000370740737"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cost(dec(t, tc.price), dec(t, tc.units), dec(t, tc.feePct))
			if got.StringFixed(Scale) != tc.want {
				t.Fatalf("Cost() = %s, want %s", got.StringFixed(Scale), tc.want)
			}
		})
	}
}

func TestFeeAmount(t *testing.T) {
	got := FeeAmount(dec(t, "0.01"), dec(t, "10"), dec(t, "0.15"))
	if !got.Equal(dec(t, "0.00015")) {
		t.Fatalf("FeeAmount() = %s, want 0.00015", got)
	}
}

func TestProceeds(t *testing.T) {
	got := Proceeds(dec(t, "0.012"), dec(t, "10"), dec(t, "0.25"))
	if !got.Equal(dec(t, "0.1197")) {
		t.Fatalf("Proceeds() = %s, want 0.1197", got)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.00000000000000005", "0.0000000000000001"},
		{"-0.00000000000000005", "-0.0000000000000001"},
		{"0.00000000000000004", "0"},
	}
	for _, tc := range cases {
		got := Round(dec(t, tc.in))
		if !got.Equal(dec(t, tc.want)) {
			t.Fatalf("Round(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatQty(t *testing.T) {
	if got := FormatQty(dec(t, "1.5")); got != "1.5000000000" {
		t.Fatalf("FormatQty(1.5) = %q, want %q", got, "1.5000000000")
	}
	if got := FormatQty(decimal.Zero); got != "0.0000000000" {
		t.Fatalf("FormatQty(0) = %q, want %q", got, "0.0000000000")
	}
}
