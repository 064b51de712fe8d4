package pool

import "math/big"

var one = big.NewInt(1)

// denom substitutes 1 for a zero or missing denominator input, which makes
// the first deposit bootstrap at a 1:1 rate and keeps both conversions total.
func denom(v *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 {
		return one
	}
	return v
}

// ValueToReceipt converts a base-asset value into receipt tokens at the pool's
// current exchange rate: floor(value * receiptSupply / pooledValue). Rounds
// toward zero, so round-trips may lose precision but larger inputs never
// convert to smaller outputs. Pure; no state is read or written.
func ValueToReceipt(value, pooledValue, receiptSupply *big.Int) *big.Int {
	if value == nil || value.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(value, denom(receiptSupply))
	return out.Quo(out, denom(pooledValue))
}

// ReceiptToValue converts receipt tokens into base-asset value at the pool's
// current exchange rate: floor(receipt * pooledValue / receiptSupply), with
// the same zero-substitution guards and floor rounding as ValueToReceipt.
func ReceiptToValue(receipt, pooledValue, receiptSupply *big.Int) *big.Int {
	if receipt == nil || receipt.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(receipt, denom(pooledValue))
	return out.Quo(out, denom(receiptSupply))
}
