package perp

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State carries the claim token bookkeeping that survives between
// operations: the single accepted deposit tranche and the claim tokens
// minted against each tranche for cap enforcement.
type State struct {
	// DepositTranche is the only tranche Deposit accepts. The zero address
	// means no tranche has been designated yet.
	DepositTranche common.Address
	// MintedPerTranche counts claim tokens minted per deposit tranche.
	MintedPerTranche map[common.Address]*big.Int
}

// NewState returns an empty claim token state.
func NewState() *State {
	return &State{MintedPerTranche: make(map[common.Address]*big.Int)}
}

// Minted returns the claim tokens minted against the supplied tranche.
func (s *State) Minted(tranche common.Address) *big.Int {
	if s == nil || s.MintedPerTranche == nil {
		return big.NewInt(0)
	}
	if minted, ok := s.MintedPerTranche[tranche]; ok && minted != nil {
		return new(big.Int).Set(minted)
	}
	return big.NewInt(0)
}

// AddMinted records additional claim tokens minted against the tranche.
func (s *State) AddMinted(tranche common.Address, amount *big.Int) {
	if s == nil || amount == nil || amount.Sign() == 0 {
		return
	}
	if s.MintedPerTranche == nil {
		s.MintedPerTranche = make(map[common.Address]*big.Int)
	}
	s.MintedPerTranche[tranche] = new(big.Int).Add(s.Minted(tranche), amount)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{DepositTranche: s.DepositTranche}
	if s.MintedPerTranche != nil {
		clone.MintedPerTranche = make(map[common.Address]*big.Int, len(s.MintedPerTranche))
		for tranche, minted := range s.MintedPerTranche {
			if minted != nil {
				clone.MintedPerTranche[tranche] = new(big.Int).Set(minted)
			}
		}
	}
	return clone
}
