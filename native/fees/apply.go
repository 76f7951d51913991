package fees

import "math/big"

// Split is the result of deducting a basis-point fee from a gross amount.
type Split struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
}

// Apply deducts feeBps from gross using truncating division. The fee never
// exceeds the gross amount and zero or negative gross values yield a zero fee.
func Apply(gross *big.Int, feeBps uint32) Split {
	result := Split{Fee: big.NewInt(0)}
	if gross != nil {
		result.Gross = new(big.Int).Set(gross)
	} else {
		result.Gross = big.NewInt(0)
	}
	result.Net = new(big.Int).Set(result.Gross)
	if result.Gross.Sign() <= 0 || feeBps == 0 {
		return result
	}
	fee := BpsOf(result.Gross, feeBps)
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Gross) >= 0 {
		result.Fee = new(big.Int).Set(result.Gross)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Gross, fee)
	return result
}

// BpsOf returns amount * bps / 10000, truncated toward zero.
func BpsOf(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return out.Quo(out, big.NewInt(10_000))
}
