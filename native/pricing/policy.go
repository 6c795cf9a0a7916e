package pricing

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/native/bond"
)

// ErrUnknownAsset is returned when a price is requested for a token that is
// neither the underlying nor a tranche of a known bond.
var ErrUnknownAsset = errors.New("pricing: unknown asset")

var errNilState = errors.New("pricing: state not configured")

// Policy resolves a normalized asset price in [0, bond.PriceOne]. The core
// engines trust the policy for correctness but abort when it fails.
type Policy interface {
	Price(asset common.Address) (*big.Int, error)
}

type bondSource interface {
	GetBond(id common.Address) (*bond.Bond, error)
	GetTrancheBond(token common.Address) (common.Address, bool, error)
	BalanceOf(token, holder common.Address) (*big.Int, error)
	TotalSupply(token common.Address) (*big.Int, error)
}

// Waterfall marks tranche tokens against the bond's escrow collateral using
// the seniority waterfall: senior supply is covered at par first, and each
// class prices at its covered fraction. Finalized bonds price at their fixed
// recovery rates and the underlying always prices at par.
type Waterfall struct {
	state      bondSource
	underlying common.Address
}

// NewWaterfall constructs the default pricing policy.
func NewWaterfall(underlying common.Address) *Waterfall {
	return &Waterfall{underlying: underlying}
}

// SetState wires the pricer to the external persistence layer.
func (w *Waterfall) SetState(state bondSource) { w.state = state }

// Price implements the Policy interface.
func (w *Waterfall) Price(asset common.Address) (*big.Int, error) {
	if w == nil || w.state == nil {
		return nil, errNilState
	}
	if asset == w.underlying {
		return new(big.Int).Set(bond.PriceOne), nil
	}
	bondID, ok, err := w.state.GetTrancheBond(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAsset
	}
	b, err := w.state.GetBond(bondID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrUnknownAsset
	}
	class, ok := b.ClassOf(asset)
	if !ok {
		return nil, ErrUnknownAsset
	}
	if b.Finalized {
		return new(big.Int).Set(b.FinalRates[class]), nil
	}

	escrow, err := w.state.BalanceOf(b.Collateral, b.ID)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Set(escrow)
	for i := 0; i < class; i++ {
		senior, err := w.state.TotalSupply(b.Classes[i].Token)
		if err != nil {
			return nil, err
		}
		remaining.Sub(remaining, senior)
	}
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	supply, err := w.state.TotalSupply(asset)
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return new(big.Int).Set(bond.PriceOne), nil
	}
	covered := new(big.Int).Set(supply)
	if covered.Cmp(remaining) > 0 {
		covered.Set(remaining)
	}
	price := new(big.Int).Mul(covered, bond.PriceOne)
	return price.Quo(price, supply), nil
}
