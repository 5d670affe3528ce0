package types

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"1.25", 1_250_000},
		{"0.000001", 1},
		{"98500", 98_500_000_000},
		{" 2.5 ", 2_500_000},
		{".5", 500_000},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.in, err)
		}
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("ParseAmount(%q) = %s, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "1.2345678", "abc", "1.2.3"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%q): expected error", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{1_000_000, "1"},
		{1_250_000, "1.25"},
		{1, "0.000001"},
		{98_500_000_000, "98500"},
	}
	for _, tc := range cases {
		if got := FormatAmount(big.NewInt(tc.in)); got != tc.want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := FormatAmount(nil); got != "0" {
		t.Fatalf("FormatAmount(nil) = %q, want 0", got)
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, in := range []string{"1.25", "0.000001", "42", "0.5"} {
		amt, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		back, err := ParseAmount(FormatAmount(amt))
		if err != nil {
			t.Fatalf("re-parse %q: %v", FormatAmount(amt), err)
		}
		if back.Cmp(amt) != 0 {
			t.Fatalf("round trip %q: got %s", in, back)
		}
	}
}
