package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeClaimMinted is emitted when a tranche deposit mints claim tokens.
	TypeClaimMinted = "perp.claim_minted"
	// TypeClaimRedeemed is emitted when claim tokens are burned for a
	// proportional slice of the reserve basket.
	TypeClaimRedeemed = "perp.claim_redeemed"
	// TypeRolloverExecuted is emitted for every vault-driven reserve exchange.
	TypeRolloverExecuted = "perp.rollover_executed"
	// TypeDepositTrancheUpdated is emitted when the accepted deposit tranche
	// advances to a newer bond.
	TypeDepositTrancheUpdated = "perp.deposit_tranche_updated"
	// TypeReserveTrancheMatured is emitted when a matured reserve tranche is
	// swept into the underlying entry.
	TypeReserveTrancheMatured = "perp.reserve_tranche_matured"
)

// ClaimMinted records a tranche deposit and the claim tokens credited net of
// the mint fee.
type ClaimMinted struct {
	Depositor common.Address
	Tranche   common.Address
	Amount    *big.Int
	Minted    *big.Int
}

func (ClaimMinted) EventType() string { return TypeClaimMinted }

// ClaimRedeemed records a proportional basket withdrawal.
type ClaimRedeemed struct {
	Redeemer common.Address
	Burned   *big.Int
	Tokens   []common.Address
	Payouts  []*big.Int
}

func (ClaimRedeemed) EventType() string { return TypeClaimRedeemed }

// RolloverExecuted records an executed reserve exchange, after any capping.
type RolloverExecuted struct {
	TrancheIn       common.Address
	TokenOut        common.Address
	TrancheInAmt    *big.Int
	TokenOutAmt     *big.Int
	CappedByReserve bool
}

func (RolloverExecuted) EventType() string { return TypeRolloverExecuted }

// DepositTrancheUpdated records the accepted deposit tranche advancing.
type DepositTrancheUpdated struct {
	Previous common.Address
	Current  common.Address
	Bond     common.Address
}

func (DepositTrancheUpdated) EventType() string { return TypeDepositTrancheUpdated }

// ReserveTrancheMatured records a matured tranche converted into underlying.
type ReserveTrancheMatured struct {
	Tranche  common.Address
	Bond     common.Address
	Proceeds *big.Int
}

func (ReserveTrancheMatured) EventType() string { return TypeReserveTrancheMatured }
