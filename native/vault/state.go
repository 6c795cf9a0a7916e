package vault

import (
	"github.com/ethereum/go-ethereum/common"
)

// State carries the vault bookkeeping that survives between operations: the
// subset of registered assets considered deployed (still changing value with
// their bond until maturity) and the last rebalance timestamp.
type State struct {
	// Deployed lists the tranche tokens currently deployed, in deployment
	// order. Always a subset of the vault registry.
	Deployed []common.Address
	// LastRebalance is the unix timestamp of the last successful rebalance.
	LastRebalance int64
}

// NewState returns an empty vault state.
func NewState() *State {
	return &State{}
}

// IsDeployed reports whether the asset is marked deployed.
func (s *State) IsDeployed(asset common.Address) bool {
	if s == nil {
		return false
	}
	for _, entry := range s.Deployed {
		if entry == asset {
			return true
		}
	}
	return false
}

// AddDeployed marks the asset as deployed if not already tracked.
func (s *State) AddDeployed(asset common.Address) bool {
	if s == nil || s.IsDeployed(asset) {
		return false
	}
	s.Deployed = append(s.Deployed, asset)
	return true
}

// RemoveDeployed clears the deployed mark for the asset.
func (s *State) RemoveDeployed(asset common.Address) bool {
	if s == nil {
		return false
	}
	for i, entry := range s.Deployed {
		if entry == asset {
			s.Deployed = append(s.Deployed[:i], s.Deployed[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		Deployed:      append([]common.Address(nil), s.Deployed...),
		LastRebalance: s.LastRebalance,
	}
}
