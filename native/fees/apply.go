package fees

import "math/big"

// BpsDenominator is the basis-point scale all fee rates are quoted against.
const BpsDenominator uint64 = 10_000

var basisPoints = big.NewInt(10_000)

// Result summarises a fee computation over a gross amount.
type Result struct {
	// Fee is the value withheld.
	Fee *big.Int
	// Net is the value remaining after the fee.
	Net *big.Int
}

// Apply withholds bps of the gross amount. Amounts never go negative; a bps
// value at or above 10_000 consumes the whole amount.
func Apply(gross *big.Int, bps uint64) Result {
	if gross == nil || gross.Sign() <= 0 {
		return Result{Fee: big.NewInt(0), Net: big.NewInt(0)}
	}
	if bps == 0 {
		return Result{Fee: big.NewInt(0), Net: new(big.Int).Set(gross)}
	}
	if bps >= 10_000 {
		return Result{Fee: new(big.Int).Set(gross), Net: big.NewInt(0)}
	}
	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(bps))
	fee.Quo(fee, basisPoints)
	return Result{Fee: fee, Net: new(big.Int).Sub(gross, fee)}
}

// ApplySigned withholds bps of the gross amount where a negative bps grants a
// reward instead: the net exceeds the gross and the fee is negative. The
// caller is responsible for funding the reward.
func ApplySigned(gross *big.Int, bps int64) Result {
	if gross == nil || gross.Sign() <= 0 {
		return Result{Fee: big.NewInt(0), Net: big.NewInt(0)}
	}
	if bps >= 0 {
		return Apply(gross, uint64(bps))
	}
	reward := new(big.Int).Mul(gross, big.NewInt(-bps))
	reward.Quo(reward, basisPoints)
	return Result{
		Fee: new(big.Int).Neg(reward),
		Net: new(big.Int).Add(gross, reward),
	}
}
