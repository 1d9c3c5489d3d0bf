package app

import (
	"math"
	"testing"
)

func TestSupplyAPYZeroRate(t *testing.T) {
	apy, err := supplyAPY("0", 6570)
	if err != nil {
		t.Fatalf("zero rate should convert: %v", err)
	}
	if apy != 0 {
		t.Fatalf("zero per-block rate must be 0%% APY, got %f", apy)
	}
}

func TestSupplyAPYCompounds(t *testing.T) {
	// 11000000000 per block at 1e18 scale is 1.1e-8 per block.
	apy, err := supplyAPY("11000000000", 6570)
	if err != nil {
		t.Fatalf("rate should convert: %v", err)
	}

	perDay := 1.1e-8 * 6570
	want := (math.Pow(perDay+1, 365) - 1) * 100
	if math.Abs(apy-want) > 1e-9 {
		t.Fatalf("expected APY %f, got %f", want, apy)
	}
	if apy < 2.5 || apy > 2.8 {
		t.Fatalf("APY out of plausible range: %f", apy)
	}
}

func TestSupplyAPYRejectsNonNumericRate(t *testing.T) {
	if _, err := supplyAPY("not-a-rate", 6570); err == nil {
		t.Fatal("non-numeric rate should fail")
	}
}

func TestSupplyAPYMonotonic(t *testing.T) {
	low, err := supplyAPY("11000000000", 6570)
	if err != nil {
		t.Fatal(err)
	}
	high, err := supplyAPY("22000000000", 6570)
	if err != nil {
		t.Fatal(err)
	}
	if high <= low {
		t.Fatalf("higher per-block rate must yield higher APY: %f <= %f", high, low)
	}
}
