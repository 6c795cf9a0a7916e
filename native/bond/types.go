package bond

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TrancheRatioGranularity is the denominator applied to tranche seniority
// ratios. The ratios of a bond's tranche classes always sum to this value, so
// a collateral deposit of N produces exactly N tranche tokens across classes.
const TrancheRatioGranularity = 1000

// PriceOne is the fixed-point unit for tranche prices and recovery rates. A
// value of PriceOne means par; valid prices sit in [0, PriceOne].
var PriceOne = big.NewInt(100_000_000)

// TrancheClass describes one seniority slice of a bond. Classes are ordered
// most-senior first; the senior class absorbs collateral loss last.
type TrancheClass struct {
	// Token is the fungible tranche token identity for this class.
	Token common.Address
	// Ratio is the class share of every collateral deposit, expressed out of
	// TrancheRatioGranularity.
	Ratio uint64
}

// Bond captures a fixed-maturity contract that splits a collateral deposit
// into ordered tranche classes. Bonds are immutable after issuance except for
// the finalization fields fixed once maturity passes.
type Bond struct {
	// ID identifies the bond and doubles as its collateral escrow account.
	ID common.Address
	// Collateral is the token accepted by Deposit and paid out on redemption.
	Collateral common.Address
	// CreatedAt is the unix timestamp the bond was issued at.
	CreatedAt int64
	// Maturity is the unix timestamp after which joint redemption closes and
	// the bond may be finalized.
	Maturity int64
	// Classes lists the tranche classes most-senior first.
	Classes []TrancheClass
	// Finalized reports whether the post-maturity recovery rates are fixed.
	Finalized bool
	// FinalRates holds the per-class collateral recovery rate fixed by
	// Finalize, in price fixed point (1e8 = par). Nil until finalized.
	FinalRates []*big.Int
}

// IsMature reports whether the bond has passed its maturity timestamp.
func (b *Bond) IsMature(now int64) bool {
	if b == nil {
		return false
	}
	return now >= b.Maturity
}

// Senior returns the most senior tranche class.
func (b *Bond) Senior() TrancheClass {
	if b == nil || len(b.Classes) == 0 {
		return TrancheClass{}
	}
	return b.Classes[0]
}

// ClassOf resolves the class index for the supplied tranche token.
func (b *Bond) ClassOf(token common.Address) (int, bool) {
	if b == nil {
		return 0, false
	}
	for i, class := range b.Classes {
		if class.Token == token {
			return i, true
		}
	}
	return 0, false
}

// Clone returns a deep copy of the bond so callers cannot alias the stored
// finalization rates.
func (b *Bond) Clone() *Bond {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Classes = append([]TrancheClass(nil), b.Classes...)
	if b.FinalRates != nil {
		clone.FinalRates = make([]*big.Int, len(b.FinalRates))
		for i, rate := range b.FinalRates {
			if rate != nil {
				clone.FinalRates[i] = new(big.Int).Set(rate)
			}
		}
	}
	return &clone
}
