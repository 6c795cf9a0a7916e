package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeBondIssued is emitted when the issuer creates a new bond.
	TypeBondIssued = "bond.issued"
	// TypeBondDeposit is emitted when collateral is tranched through a bond.
	TypeBondDeposit = "bond.deposit"
	// TypeBondRedeemed is emitted on a pre-maturity joint redemption.
	TypeBondRedeemed = "bond.redeemed"
	// TypeBondFinalized is emitted once post-maturity recovery rates are fixed.
	TypeBondFinalized = "bond.finalized"
)

// BondIssued records the creation of a bond and its tranche classes.
type BondIssued struct {
	Bond       common.Address
	Collateral common.Address
	Maturity   int64
	Tranches   []common.Address
}

func (BondIssued) EventType() string { return TypeBondIssued }

// BondDeposit records a collateral deposit split into tranche tokens.
type BondDeposit struct {
	Bond      common.Address
	Depositor common.Address
	Amount    *big.Int
}

func (BondDeposit) EventType() string { return TypeBondDeposit }

// BondRedeemed records a pre-maturity redemption of a ratio-complete tranche
// set back into collateral.
type BondRedeemed struct {
	Bond       common.Address
	Holder     common.Address
	Collateral *big.Int
}

func (BondRedeemed) EventType() string { return TypeBondRedeemed }

// BondFinalized records the per-class recovery rates fixed at maturity.
type BondFinalized struct {
	Bond  common.Address
	Rates []*big.Int
}

func (BondFinalized) EventType() string { return TypeBondFinalized }
