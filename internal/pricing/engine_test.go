package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	p := DefaultPolicy()
	cases := map[string]string{
		"1.005":  "1.01",
		"-1.005": "-1.01",
		"2.344":  "2.34",
		"10":     "10",
	}
	for in, want := range cases {
		got := p.Round(decimal.RequireFromString(in))
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("round(%s): expected %s, got %s", in, want, got)
		}
	}
}

func TestNewPolicyClampsNegative(t *testing.T) {
	p := NewPolicy(-3)
	if p.Decimals != 0 {
		t.Fatalf("expected 0 decimals, got %d", p.Decimals)
	}
	got := p.Round(decimal.RequireFromString("2.5"))
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3, got %s", got)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(decimal.NewFromInt(100), decimal.NewFromInt(5)); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5, got %s", got)
	}
}
