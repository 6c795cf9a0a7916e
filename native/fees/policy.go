package fees

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Policy supplies the fee percentages and the signed rebalance amount the
// engines consult. Implementations are read-only collaborators; a failing
// call aborts the whole operation.
type Policy interface {
	// MintFeeBps is withheld from claim tokens minted on deposit.
	MintFeeBps() uint64
	// BurnFeeBps is withheld from every payout of a proportional redemption.
	BurnFeeBps() uint64
	// RolloverFeeBps adjusts the token-out amount of a rollover; a negative
	// value rewards the vault for rotating the reserve.
	RolloverFeeBps() int64
	// RebalanceAmount returns the signed value delta to apply between the
	// claim token and the vault. A negative amount marks the claim token as
	// under-backed and is repaired with a direct underlying transfer; a
	// positive amount is supplied as a freshly tranched senior slice.
	RebalanceAmount(claimValue, vaultValue, claimSupply *big.Int) *big.Int
	// ProtocolShareBps sizes the protocol dilution minted per value moved.
	ProtocolShareBps() uint64
	// ProtocolFeeCollector receives the protocol-share tokens.
	ProtocolFeeCollector() common.Address
}

// Flat is the default Policy: fixed percentages plus a target claim share of
// total system value driving the rebalance amount. The exact functional form
// of the rebalance amount is deliberately swappable; Flat keeps the claim
// value pinned at TargetClaimRatioBps of claim+vault value.
type Flat struct {
	MintBps        uint64
	BurnBps        uint64
	RolloverBps    int64
	ProtocolBps    uint64
	TargetClaimBps uint64
	Collector      common.Address
}

// NewFlat validates the percentages and constructs the policy.
func NewFlat(mintBps, burnBps uint64, rolloverBps int64, protocolBps, targetClaimBps uint64, collector common.Address) (*Flat, error) {
	if mintBps > 10_000 || burnBps > 10_000 || protocolBps > 10_000 || targetClaimBps > 10_000 {
		return nil, fmt.Errorf("fees: percentages must not exceed 10000 bps")
	}
	if rolloverBps > 10_000 || rolloverBps < -10_000 {
		return nil, fmt.Errorf("fees: rollover fee must be within ±10000 bps")
	}
	return &Flat{
		MintBps:        mintBps,
		BurnBps:        burnBps,
		RolloverBps:    rolloverBps,
		ProtocolBps:    protocolBps,
		TargetClaimBps: targetClaimBps,
		Collector:      collector,
	}, nil
}

func (f *Flat) MintFeeBps() uint64       { return f.MintBps }
func (f *Flat) BurnFeeBps() uint64       { return f.BurnBps }
func (f *Flat) RolloverFeeBps() int64    { return f.RolloverBps }
func (f *Flat) ProtocolShareBps() uint64 { return f.ProtocolBps }

func (f *Flat) ProtocolFeeCollector() common.Address { return f.Collector }

// RebalanceAmount implements the Policy interface. Claim supply does not
// enter the flat form; it is part of the signature so richer policies can
// use it.
func (f *Flat) RebalanceAmount(claimValue, vaultValue, claimSupply *big.Int) *big.Int {
	if claimValue == nil {
		claimValue = big.NewInt(0)
	}
	if vaultValue == nil {
		vaultValue = big.NewInt(0)
	}
	total := new(big.Int).Add(claimValue, vaultValue)
	target := new(big.Int).Mul(total, new(big.Int).SetUint64(f.TargetClaimBps))
	target.Quo(target, basisPoints)
	return new(big.Int).Sub(claimValue, target)
}
