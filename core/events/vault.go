package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeNoteMinted is emitted when an underlying deposit mints vault notes.
	TypeNoteMinted = "vault.note_minted"
	// TypeNoteRedeemed is emitted when vault notes are burned for a
	// proportional slice of the vault basket.
	TypeNoteRedeemed = "vault.note_redeemed"
	// TypeVaultDeployed is emitted after idle underlying has been tranched and
	// the senior slice rolled into the claim token reserve.
	TypeVaultDeployed = "vault.deployed"
	// TypeVaultRecovered is emitted when a matured deployed tranche is swept
	// back into underlying.
	TypeVaultRecovered = "vault.recovered"
	// TypeVaultMelded is emitted on a direct multi-class bond redemption.
	TypeVaultMelded = "vault.melded"
	// TypeRebalanced is emitted after a policy-driven value transfer.
	TypeRebalanced = "vault.rebalanced"
	// TypeProtocolFeeMinted is emitted when protocol-share tokens are minted.
	TypeProtocolFeeMinted = "vault.protocol_fee_minted"
)

// NoteMinted records an underlying deposit into the vault.
type NoteMinted struct {
	Depositor common.Address
	Amount    *big.Int
	Minted    *big.Int
}

func (NoteMinted) EventType() string { return TypeNoteMinted }

// NoteRedeemed records a proportional vault withdrawal.
type NoteRedeemed struct {
	Redeemer common.Address
	Burned   *big.Int
	Tokens   []common.Address
	Payouts  []*big.Int
}

func (NoteRedeemed) EventType() string { return TypeNoteRedeemed }

// VaultDeployed summarises a deployment pass.
type VaultDeployed struct {
	Bond         common.Address
	Tranched     *big.Int
	SeniorRolled *big.Int
}

func (VaultDeployed) EventType() string { return TypeVaultDeployed }

// VaultRecovered records a matured deployed tranche swept into underlying.
type VaultRecovered struct {
	Tranche  common.Address
	Bond     common.Address
	Proceeds *big.Int
}

func (VaultRecovered) EventType() string { return TypeVaultRecovered }

// VaultMelded records a direct multi-class redemption and the fee retained.
type VaultMelded struct {
	Bond        common.Address
	Caller      common.Address
	Redeemed    *big.Int
	FeeRetained *big.Int
}

func (VaultMelded) EventType() string { return TypeVaultMelded }

// Rebalanced records the signed value delta applied between the claim token
// and the vault.
type Rebalanced struct {
	Amount     *big.Int
	ValueMoved *big.Int
	Timestamp  int64
}

func (Rebalanced) EventType() string { return TypeRebalanced }

// ProtocolFeeMinted records the protocol-share dilution paid to the collector.
type ProtocolFeeMinted struct {
	Collector   common.Address
	ClaimMinted *big.Int
	NotesMinted *big.Int
}

func (ProtocolFeeMinted) EventType() string { return TypeProtocolFeeMinted }
