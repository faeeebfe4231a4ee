package lostfound

import (
	"errors"
	"math/big"
	"testing"
)

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.1", 100_000_000},
		{"0.01", 10_000_000},
		{"1", 1_000_000_000},
		{"2.5", 2_500_000_000},
		{".5", 500_000_000},
		{"0.000000001", 1},
		{" 3 ", 3_000_000_000},
		// Digits beyond the ninth are truncated, never rounded up.
		{"0.0000000019", 1},
		{"0.9999999999", 999_999_999},
		{"0", 0},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.in)
		if err != nil {
			t.Fatalf("ToBaseUnits(%q): %v", tc.in, err)
		}
		if got.Int64() != tc.want {
			t.Fatalf("ToBaseUnits(%q) = %s, want %d", tc.in, got, tc.want)
		}
	}
}

func TestToBaseUnitsRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "  ", "-1", "-0.5", "1.2.3", "abc", "1e9"} {
		if _, err := ToBaseUnits(in); !errors.Is(err, ErrConstraint) {
			t.Fatalf("ToBaseUnits(%q): expected ErrConstraint, got %v", in, err)
		}
	}
}

func TestFormatBaseUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{10_000_000, "0.01"},
		{100_000_000, "0.1"},
		{1_000_000_000, "1"},
		{2_500_000_000, "2.5"},
	}
	for _, tc := range cases {
		if got := FormatBaseUnits(bigInt(tc.in)); got != tc.want {
			t.Fatalf("FormatBaseUnits(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := FormatBaseUnits(nil); got != "0" {
		t.Fatalf("FormatBaseUnits(nil) = %q", got)
	}
}

func TestRoundTripFloorsExcessPrecision(t *testing.T) {
	units, err := ToBaseUnits("0.1234567891")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got := FormatBaseUnits(units); got != "0.123456789" {
		t.Fatalf("round trip %q", got)
	}
}

func TestPolicyMinimumsAlign(t *testing.T) {
	minReward, err := ToBaseUnits("0.1")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if minReward.Cmp(MinReward) != 0 {
		t.Fatalf("MinReward %s != 0.1 coins", MinReward)
	}
	minDeposit, err := ToBaseUnits("0.01")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if minDeposit.Cmp(MinClaimDeposit) != 0 {
		t.Fatalf("MinClaimDeposit %s != 0.01 coins", MinClaimDeposit)
	}
}
