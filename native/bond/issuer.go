package bond

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"perpvault/core/events"
)

// ErrNoBondIssued is returned by Latest before the first issuance. Callers
// that tolerate an empty schedule match on it explicitly.
var ErrNoBondIssued = errors.New("bond issuer: no bond issued yet")

var (
	errIssuerState   = errors.New("bond issuer: state not configured")
	errInvalidRatios = errors.New("bond issuer: tranche ratios must be positive and sum to the granularity")
	errInvalidTenor  = errors.New("bond issuer: bond duration must be positive")
)

type issuerState interface {
	GetBond(id common.Address) (*Bond, error)
	PutBond(b *Bond) error
	GetLatestBond() (common.Address, bool, error)
	PutLatestBond(id common.Address) error
	GetBondCount() (uint64, error)
	PutBondCount(count uint64) error
	PutTrancheBond(token, bondID common.Address) error
	GetTrancheBond(token common.Address) (common.Address, bool, error)
}

// Issuer mints bonds from a fixed template: one collateral token, a fixed
// tenor and an ordered ratio schedule. Bond and tranche identities are
// derived deterministically from the issuance sequence number.
type Issuer struct {
	state      issuerState
	collateral common.Address
	duration   int64
	ratios     []uint64
	emitter    events.Emitter
	nowFn      func() int64
}

// NewIssuer constructs an issuer for the supplied collateral template. The
// ratios are listed most-senior first and must sum to the granularity.
func NewIssuer(collateral common.Address, duration int64, ratios []uint64) (*Issuer, error) {
	if duration <= 0 {
		return nil, errInvalidTenor
	}
	var sum uint64
	for _, r := range ratios {
		if r == 0 {
			return nil, errInvalidRatios
		}
		sum += r
	}
	if len(ratios) == 0 || sum != TrancheRatioGranularity {
		return nil, errInvalidRatios
	}
	return &Issuer{
		collateral: collateral,
		duration:   duration,
		ratios:     append([]uint64(nil), ratios...),
		nowFn:      func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the issuer to the external persistence layer.
func (i *Issuer) SetState(state issuerState) { i.state = state }

// SetEmitter wires the downstream event sink.
func (i *Issuer) SetEmitter(emitter events.Emitter) {
	if i == nil {
		return
	}
	i.emitter = emitter
}

// SetNow overrides the clock used to stamp issued bonds.
func (i *Issuer) SetNow(now func() int64) {
	if i == nil || now == nil {
		return
	}
	i.nowFn = now
}

// Collateral returns the collateral token the issuer tranches.
func (i *Issuer) Collateral() common.Address {
	if i == nil {
		return common.Address{}
	}
	return i.collateral
}

// Issue creates, stores and returns the next bond in the sequence.
func (i *Issuer) Issue() (*Bond, error) {
	if i == nil || i.state == nil {
		return nil, errIssuerState
	}
	seq, err := i.state.GetBondCount()
	if err != nil {
		return nil, err
	}

	now := i.nowFn()
	id := deriveAddress("perpvault/bond", i.collateral.Bytes(), seq, 0)
	classes := make([]TrancheClass, len(i.ratios))
	tranches := make([]common.Address, len(i.ratios))
	for class, ratio := range i.ratios {
		token := deriveAddress("perpvault/tranche", id.Bytes(), seq, uint64(class)+1)
		classes[class] = TrancheClass{Token: token, Ratio: ratio}
		tranches[class] = token
	}

	b := &Bond{
		ID:         id,
		Collateral: i.collateral,
		CreatedAt:  now,
		Maturity:   now + i.duration,
		Classes:    classes,
	}
	if err := i.state.PutBond(b); err != nil {
		return nil, err
	}
	for _, class := range classes {
		if err := i.state.PutTrancheBond(class.Token, id); err != nil {
			return nil, err
		}
	}
	if err := i.state.PutLatestBond(id); err != nil {
		return nil, err
	}
	if err := i.state.PutBondCount(seq + 1); err != nil {
		return nil, err
	}

	if i.emitter != nil {
		i.emitter.Emit(events.BondIssued{Bond: id, Collateral: i.collateral, Maturity: b.Maturity, Tranches: tranches})
	}
	return b.Clone(), nil
}

// Latest returns the most recently issued bond.
func (i *Issuer) Latest() (*Bond, error) {
	if i == nil || i.state == nil {
		return nil, errIssuerState
	}
	id, ok, err := i.state.GetLatestBond()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoBondIssued
	}
	b, err := i.state.GetBond(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errUnknownBond
	}
	return b, nil
}

// IsInstance reports whether the supplied bond identity was issued here.
func (i *Issuer) IsInstance(id common.Address) (bool, error) {
	if i == nil || i.state == nil {
		return false, errIssuerState
	}
	b, err := i.state.GetBond(id)
	if err != nil {
		return false, err
	}
	return b != nil && b.Collateral == i.collateral, nil
}

// TrancheBond resolves the bond a tranche token belongs to.
func (i *Issuer) TrancheBond(token common.Address) (common.Address, bool, error) {
	if i == nil || i.state == nil {
		return common.Address{}, false, errIssuerState
	}
	return i.state.GetTrancheBond(token)
}

func deriveAddress(domain string, seed []byte, seq, class uint64) common.Address {
	buf := make([]byte, 0, len(domain)+len(seed)+16)
	buf = append(buf, domain...)
	buf = append(buf, seed...)
	var nums [16]byte
	binary.BigEndian.PutUint64(nums[:8], seq)
	binary.BigEndian.PutUint64(nums[8:], class)
	buf = append(buf, nums[:]...)
	return common.BytesToAddress(gethcrypto.Keccak256(buf)[12:])
}
