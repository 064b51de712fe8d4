package pool

import (
	"math/big"
	"testing"
)

func TestValueToReceiptBootstrap(t *testing.T) {
	// Empty pool, zero supply: first depositor converts 1:1.
	got := ValueToReceipt(big.NewInt(1000), big.NewInt(0), big.NewInt(0))
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("bootstrap conversion: got %s, want 1000", got)
	}
}

func TestReceiptToValueBootstrap(t *testing.T) {
	got := ReceiptToValue(big.NewInt(500), big.NewInt(0), big.NewInt(0))
	if got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bootstrap conversion: got %s, want 500", got)
	}
}

func TestConversionFloorRounding(t *testing.T) {
	// 3 units at supply 10 over pooled 7 -> floor(3*10/7) = 4.
	got := ValueToReceipt(big.NewInt(3), big.NewInt(7), big.NewInt(10))
	if got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("floor conversion: got %s, want 4", got)
	}
	// Round trip loses the remainder: floor(4*7/10) = 2 <= 3.
	back := ReceiptToValue(got, big.NewInt(7), big.NewInt(10))
	if back.Cmp(big.NewInt(3)) > 0 {
		t.Fatalf("round trip must not gain value: got %s", back)
	}
}

func TestConversionMonotonic(t *testing.T) {
	pooled := big.NewInt(7919)
	supply := big.NewInt(6271)
	prev := new(big.Int).Neg(big.NewInt(1))
	for a := int64(0); a <= 2000; a += 37 {
		got := ValueToReceipt(big.NewInt(a), pooled, supply)
		if got.Cmp(prev) < 0 {
			t.Fatalf("valueToReceipt not monotonic at %d: %s < %s", a, got, prev)
		}
		prev = got
	}
	prev = new(big.Int).Neg(big.NewInt(1))
	for a := int64(0); a <= 2000; a += 37 {
		got := ReceiptToValue(big.NewInt(a), pooled, supply)
		if got.Cmp(prev) < 0 {
			t.Fatalf("receiptToValue not monotonic at %d: %s < %s", a, got, prev)
		}
		prev = got
	}
}

func TestConversionIdempotent(t *testing.T) {
	value := big.NewInt(123456789)
	pooled := big.NewInt(987654321)
	supply := big.NewInt(111111111)
	first := ValueToReceipt(value, pooled, supply)
	second := ValueToReceipt(value, pooled, supply)
	if first.Cmp(second) != 0 {
		t.Fatalf("conversion not idempotent: %s vs %s", first, second)
	}
	// Inputs must not be mutated by the conversion.
	if value.Cmp(big.NewInt(123456789)) != 0 || pooled.Cmp(big.NewInt(987654321)) != 0 || supply.Cmp(big.NewInt(111111111)) != 0 {
		t.Fatal("conversion mutated its inputs")
	}
}

func TestConversionZeroAndNilInputs(t *testing.T) {
	if got := ValueToReceipt(nil, big.NewInt(10), big.NewInt(10)); got.Sign() != 0 {
		t.Fatalf("nil value: got %s, want 0", got)
	}
	if got := ValueToReceipt(big.NewInt(0), big.NewInt(10), big.NewInt(10)); got.Sign() != 0 {
		t.Fatalf("zero value: got %s, want 0", got)
	}
	if got := ReceiptToValue(big.NewInt(10), nil, nil); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("nil denominators substitute 1: got %s, want 10", got)
	}
}

func TestConversionAsymmetricGuards(t *testing.T) {
	// Supply present, pooled value zero: rate collapses to supply per unit.
	got := ValueToReceipt(big.NewInt(5), big.NewInt(0), big.NewInt(30))
	if got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("zero pooled substitution: got %s, want 150", got)
	}
	got = ReceiptToValue(big.NewInt(5), big.NewInt(30), big.NewInt(0))
	if got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("zero supply substitution: got %s, want 150", got)
	}
}
