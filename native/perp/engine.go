package perp

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/core/events"
	"perpvault/native/bond"
	nativecommon "perpvault/native/common"
	"perpvault/native/fees"
	"perpvault/native/pricing"
	"perpvault/native/reserve"
)

var (
	errNilState                  = errors.New("perp engine: state not configured")
	errNilCollaborator           = errors.New("perp engine: collaborator not configured")
	errInvalidAmount             = errors.New("perp engine: amount must be positive")
	errInsufficientBalance       = errors.New("perp engine: insufficient balance")
	errNoSupply                  = errors.New("perp engine: no claim supply outstanding")
	errNoDepositTranche          = errors.New("perp engine: no deposit tranche designated")
	errUnexpectedAsset           = errors.New("perp engine: unexpected asset")
	errUnrecognizedAsset         = errors.New("perp engine: unrecognized asset")
	errExceededMaxMintPerTranche = errors.New("perp engine: exceeded max mint per tranche")
	errExceededMaxSupply         = errors.New("perp engine: exceeded max supply")
	errUnauthorizedCaller        = errors.New("perp engine: caller is not the vault")
)

const moduleName = nativecommon.ModulePerp

type engineState interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
	TotalSupply(token common.Address) (*big.Int, error)
	GetRegistry(owner common.Address) (*reserve.Registry, error)
	PutRegistry(reg *reserve.Registry) error
	GetPerpState() (*State, error)
	PutPerpState(st *State) error
	GetBond(id common.Address) (*bond.Bond, error)
	GetTrancheBond(token common.Address) (common.Address, bool, error)
}

// BondSource is the issuer surface the claim token consults when advancing
// its deposit tranche.
type BondSource interface {
	Latest() (*bond.Bond, error)
	IsInstance(id common.Address) (bool, error)
}

// BondController is the bond engine surface used to settle matured reserve
// tranches into underlying.
type BondController interface {
	Finalize(id common.Address) error
	RedeemMature(id common.Address, holder, tranche common.Address, amount *big.Int) (*big.Int, error)
}

// Payout pairs a reserve asset with the amount paid out of it.
type Payout struct {
	Token  common.Address
	Amount *big.Int
}

// RolloverResult reports the realized amounts of a reserve exchange after
// capping and the signed rollover fee.
type RolloverResult struct {
	TrancheIn    common.Address
	TokenOut     common.Address
	TrancheInAmt *big.Int
	TokenOutAmt  *big.Int
	Capped       bool
}

// Engine is the perpetual claim token: a fungible claim on a rotating basket
// of bond tranches. The claim token identity doubles as the reserve holder
// account on the ledger.
type Engine struct {
	state             engineState
	token             common.Address
	underlying        common.Address
	vault             common.Address
	issuer            BondSource
	bonds             BondController
	prices            pricing.Policy
	feePolicy         fees.Policy
	toleranceMin      int64
	toleranceMax      int64
	maxMintPerTranche *big.Int
	maxSupply         *big.Int
	pauses            nativecommon.PauseView
	emitter           events.Emitter
	nowFn             func() int64
}

// NewEngine constructs a claim token engine for the supplied token and
// underlying identities.
func NewEngine(token, underlying common.Address) *Engine {
	return &Engine{
		token:      token,
		underlying: underlying,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Guard reports whether the module currently accepts mutating operations.
// Cross-module flows consult it before their first ledger write so a pause
// on this side cannot strand a half-finished exchange.
func (e *Engine) Guard() error {
	if e == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// SetVault registers the only caller permitted to drive rollover, absorb and
// protocol fee minting.
func (e *Engine) SetVault(vault common.Address) {
	if e == nil {
		return
	}
	e.vault = vault
}

// SetIssuer wires the bond issuer consulted by UpdateState.
func (e *Engine) SetIssuer(issuer BondSource) {
	if e == nil {
		return
	}
	e.issuer = issuer
}

// SetBondController wires the bond engine used for maturity settlement.
func (e *Engine) SetBondController(bonds BondController) {
	if e == nil {
		return
	}
	e.bonds = bonds
}

// SetPricing wires the pricing collaborator.
func (e *Engine) SetPricing(p pricing.Policy) {
	if e == nil {
		return
	}
	e.prices = p
}

// SetFeePolicy wires the fee policy collaborator.
func (e *Engine) SetFeePolicy(p fees.Policy) {
	if e == nil {
		return
	}
	e.feePolicy = p
}

// SetTolerance configures the maturity window, in seconds before maturity,
// inside which a tranche is acceptable for the reserve.
func (e *Engine) SetTolerance(min, max int64) {
	if e == nil {
		return
	}
	e.toleranceMin = min
	e.toleranceMax = max
}

// SetMaxMintPerTranche caps the claim tokens minted against any single
// deposit tranche. A nil cap disables the check.
func (e *Engine) SetMaxMintPerTranche(cap *big.Int) {
	if e == nil {
		return
	}
	if cap == nil {
		e.maxMintPerTranche = nil
		return
	}
	e.maxMintPerTranche = new(big.Int).Set(cap)
}

// SetMaxSupply caps the total claim supply. A nil cap disables the check.
func (e *Engine) SetMaxSupply(cap *big.Int) {
	if e == nil {
		return
	}
	if cap == nil {
		e.maxSupply = nil
		return
	}
	e.maxSupply = new(big.Int).Set(cap)
}

// SetEmitter wires the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetNow overrides the clock used for maturity and tolerance checks.
func (e *Engine) SetNow(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(ev)
}

// Token returns the claim token identity.
func (e *Engine) Token() common.Address { return e.token }

// Holder returns the ledger account holding the reserve basket.
func (e *Engine) Holder() common.Address { return e.token }

// Underlying returns the denominator asset identity.
func (e *Engine) Underlying() common.Address { return e.underlying }

// Deposit accepts the designated deposit tranche and mints claim tokens to
// the depositor at the current value-per-token, net of the mint fee. A zero
// amount is a no-op returning zero.
func (e *Engine) Deposit(depositor, tranche common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.prices == nil || e.feePolicy == nil {
		return nil, errNilCollaborator
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}
	if st.DepositTranche == (common.Address{}) {
		return nil, errNoDepositTranche
	}
	if tranche != st.DepositTranche {
		return nil, errUnexpectedAsset
	}

	price, err := e.prices.Price(tranche)
	if err != nil {
		return nil, err
	}
	value := reserve.ValueOf(amount, price)

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	totalBefore, err := reserve.TotalValue(reg, e.state, e.prices)
	if err != nil {
		return nil, err
	}
	supply, err := e.state.TotalSupply(e.token)
	if err != nil {
		return nil, err
	}

	mintAmt := new(big.Int).Set(value)
	if supply.Sign() > 0 && totalBefore.Sign() > 0 {
		mintAmt.Mul(value, supply)
		mintAmt.Quo(mintAmt, totalBefore)
	}
	net := fees.Apply(mintAmt, e.feePolicy.MintFeeBps()).Net

	minted := st.Minted(tranche)
	if e.maxMintPerTranche != nil {
		projected := new(big.Int).Add(minted, net)
		if projected.Cmp(e.maxMintPerTranche) > 0 {
			return nil, errExceededMaxMintPerTranche
		}
	}
	if e.maxSupply != nil {
		projected := new(big.Int).Add(supply, net)
		if projected.Cmp(e.maxSupply) > 0 {
			return nil, errExceededMaxSupply
		}
	}

	balance, err := e.state.BalanceOf(tranche, depositor)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	if err := e.state.Transfer(tranche, depositor, e.Holder(), amount); err != nil {
		return nil, err
	}
	if reg.Register(tranche) {
		if err := e.state.PutRegistry(reg); err != nil {
			return nil, err
		}
	}
	if err := e.state.Mint(e.token, depositor, net); err != nil {
		return nil, err
	}

	st.AddMinted(tranche, net)
	if err := e.state.PutPerpState(st); err != nil {
		return nil, err
	}

	e.emit(events.ClaimMinted{
		Depositor: depositor,
		Tranche:   tranche,
		Amount:    new(big.Int).Set(amount),
		Minted:    new(big.Int).Set(net),
	})
	return net, nil
}

// Redeem burns claim tokens and pays out the redeemer's exact fraction of
// every reserve asset, net of the burn fee. No price is consulted: the
// payout is defined purely by the pre-redemption balances, so it cannot be
// gamed by stale pricing. Assets are traversed most-recently-registered
// first; an asset emptied by the payout is unregistered in the same call.
func (e *Engine) Redeem(redeemer common.Address, burnAmt *big.Int) ([]Payout, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.feePolicy == nil {
		return nil, errNilCollaborator
	}
	if burnAmt == nil || burnAmt.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	supply, err := e.state.TotalSupply(e.token)
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return nil, errNoSupply
	}
	balance, err := e.state.BalanceOf(e.token, redeemer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(burnAmt) < 0 {
		return nil, errInsufficientBalance
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	burnBps := e.feePolicy.BurnFeeBps()

	var payouts []Payout
	regChanged := false
	for _, asset := range reg.NewestFirst() {
		held, err := e.state.BalanceOf(asset, e.Holder())
		if err != nil {
			return nil, err
		}
		share := new(big.Int).Mul(held, burnAmt)
		share.Quo(share, supply)
		net := fees.Apply(share, burnBps).Net
		if net.Sign() == 0 {
			continue
		}
		if err := e.state.Transfer(asset, e.Holder(), redeemer, net); err != nil {
			return nil, err
		}
		remaining := new(big.Int).Sub(held, net)
		if remaining.Sign() == 0 && asset != reg.Underlying {
			if reg.Unregister(asset) {
				regChanged = true
			}
		}
		payouts = append(payouts, Payout{Token: asset, Amount: net})
	}

	if err := e.state.Burn(e.token, redeemer, burnAmt); err != nil {
		return nil, err
	}
	if regChanged {
		if err := e.state.PutRegistry(reg); err != nil {
			return nil, err
		}
	}

	tokens := make([]common.Address, len(payouts))
	amounts := make([]*big.Int, len(payouts))
	for i, p := range payouts {
		tokens[i] = p.Token
		amounts[i] = new(big.Int).Set(p.Amount)
	}
	e.emit(events.ClaimRedeemed{
		Redeemer: redeemer,
		Burned:   new(big.Int).Set(burnAmt),
		Tokens:   tokens,
		Payouts:  amounts,
	})
	return payouts, nil
}

// Rollover exchanges an incoming tranche for a reserve asset at the
// price-implied rate. Only the registered vault may call it. When the
// requested exchange exceeds the available reserve the trade is capped and
// the incoming amount recomputed, so the vault never executes at a worse
// rate than quoted. A signed fee adjusts the amount paid out.
func (e *Engine) Rollover(caller, trancheIn, tokenOut common.Address, trancheInAmt *big.Int) (*RolloverResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.prices == nil || e.feePolicy == nil {
		return nil, errNilCollaborator
	}
	if caller != e.vault || e.vault == (common.Address{}) {
		return nil, errUnauthorizedCaller
	}
	if trancheInAmt == nil || trancheInAmt.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	acceptable, err := e.AcceptableForReserve(trancheIn)
	if err != nil {
		return nil, err
	}
	if !acceptable {
		return nil, errUnexpectedAsset
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	if tokenOut != e.underlying && !reg.Contains(tokenOut) {
		return nil, errUnrecognizedAsset
	}

	// A tranche-for-sibling trade inside one bond could launder value past
	// the deposit caps; both legs sharing a bond is rejected outright.
	bondIn, _, err := e.state.GetTrancheBond(trancheIn)
	if err != nil {
		return nil, err
	}
	if tokenOut != e.underlying {
		bondOut, ok, err := e.state.GetTrancheBond(tokenOut)
		if err != nil {
			return nil, err
		}
		if ok && bondOut == bondIn {
			return nil, errUnexpectedAsset
		}
	}

	priceIn, err := e.prices.Price(trancheIn)
	if err != nil {
		return nil, err
	}
	priceOut := new(big.Int).Set(bond.PriceOne)
	if tokenOut != e.underlying {
		priceOut, err = e.prices.Price(tokenOut)
		if err != nil {
			return nil, err
		}
	}
	result := &RolloverResult{
		TrancheIn:    trancheIn,
		TokenOut:     tokenOut,
		TrancheInAmt: big.NewInt(0),
		TokenOutAmt:  big.NewInt(0),
	}
	if priceIn.Sign() == 0 || priceOut.Sign() == 0 {
		return result, nil
	}

	inAmt := new(big.Int).Set(trancheInAmt)
	rawOut := new(big.Int).Mul(inAmt, priceIn)
	rawOut.Quo(rawOut, priceOut)

	avail, err := e.state.BalanceOf(tokenOut, e.Holder())
	if err != nil {
		return nil, err
	}
	outAmt := rawOut
	if rawOut.Cmp(avail) > 0 {
		result.Capped = true
		outAmt = new(big.Int).Set(avail)
		inAmt = new(big.Int).Mul(outAmt, priceOut)
		inAmt.Quo(inAmt, priceIn)
	}
	if inAmt.Sign() == 0 || outAmt.Sign() == 0 {
		return result, nil
	}

	netOut := fees.ApplySigned(outAmt, e.feePolicy.RolloverFeeBps()).Net
	if netOut.Cmp(avail) > 0 {
		netOut = new(big.Int).Set(avail)
	}

	vaultBalance, err := e.state.BalanceOf(trancheIn, caller)
	if err != nil {
		return nil, err
	}
	if vaultBalance.Cmp(inAmt) < 0 {
		return nil, errInsufficientBalance
	}
	if err := e.state.Transfer(trancheIn, caller, e.Holder(), inAmt); err != nil {
		return nil, err
	}
	regChanged := reg.Register(trancheIn)
	if netOut.Sign() > 0 {
		if err := e.state.Transfer(tokenOut, e.Holder(), caller, netOut); err != nil {
			return nil, err
		}
		remaining, err := e.state.BalanceOf(tokenOut, e.Holder())
		if err != nil {
			return nil, err
		}
		if remaining.Sign() == 0 && tokenOut != reg.Underlying {
			if reg.Unregister(tokenOut) {
				regChanged = true
			}
		}
	}
	if regChanged {
		if err := e.state.PutRegistry(reg); err != nil {
			return nil, err
		}
	}

	result.TrancheInAmt = inAmt
	result.TokenOutAmt = netOut
	e.emit(events.RolloverExecuted{
		TrancheIn:       trancheIn,
		TokenOut:        tokenOut,
		TrancheInAmt:    new(big.Int).Set(inAmt),
		TokenOutAmt:     new(big.Int).Set(netOut),
		CappedByReserve: result.Capped,
	})
	return result, nil
}

// UpdateState advances the accepted deposit tranche to the issuer's latest
// qualifying bond and settles matured reserve tranches into the underlying
// entry. It is callable by anyone and idempotent: repeating it with no
// elapsed time changes nothing. This is the only place maturity transitions
// occur; without regular calls matured tranches stay valued at their
// conservative pre-finalization mark.
func (e *Engine) UpdateState() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.issuer == nil || e.bonds == nil {
		return errNilCollaborator
	}

	st, err := e.ensureState()
	if err != nil {
		return err
	}
	now := e.nowFn()

	latest, err := e.issuer.Latest()
	if err != nil && !errors.Is(err, bond.ErrNoBondIssued) {
		return err
	}
	if latest != nil && latest.Collateral == e.underlying && e.withinTolerance(latest.Maturity, now) {
		senior := latest.Senior().Token
		if senior != (common.Address{}) && senior != st.DepositTranche {
			prev := st.DepositTranche
			st.DepositTranche = senior
			if err := e.state.PutPerpState(st); err != nil {
				return err
			}
			e.emit(events.DepositTrancheUpdated{Previous: prev, Current: senior, Bond: latest.ID})
		}
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return err
	}
	for _, asset := range reg.List() {
		if asset == reg.Underlying {
			continue
		}
		bondID, ok, err := e.state.GetTrancheBond(asset)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := e.state.GetBond(bondID)
		if err != nil {
			return err
		}
		if b == nil || !b.IsMature(now) {
			continue
		}
		if err := e.bonds.Finalize(bondID); err != nil {
			return err
		}
		held, err := e.state.BalanceOf(asset, e.Holder())
		if err != nil {
			return err
		}
		proceeds, err := e.bonds.RedeemMature(bondID, e.Holder(), asset, held)
		if err != nil {
			return err
		}
		// Persist per sweep; a failure settling a later bond must not roll
		// back registry changes for tranches already redeemed.
		if reg.Unregister(asset) {
			if err := e.state.PutRegistry(reg); err != nil {
				return err
			}
		}
		e.emit(events.ReserveTrancheMatured{Tranche: asset, Bond: bondID, Proceeds: proceeds})
	}
	return nil
}

// Absorb takes a tranche transfer from the vault into the reserve without
// minting claim tokens. It backs the rebalance flow that repairs the claim
// token's backing.
func (e *Engine) Absorb(caller, tranche common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.vault || e.vault == (common.Address{}) {
		return errUnauthorizedCaller
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	acceptable, err := e.AcceptableForReserve(tranche)
	if err != nil {
		return err
	}
	if !acceptable {
		return errUnexpectedAsset
	}
	balance, err := e.state.BalanceOf(tranche, caller)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	if err := e.state.Transfer(tranche, caller, e.Holder(), amount); err != nil {
		return err
	}
	reg, err := e.ensureRegistry()
	if err != nil {
		return err
	}
	if reg.Register(tranche) {
		return e.state.PutRegistry(reg)
	}
	return nil
}

// MintProtocolFee mints claim tokens to the protocol fee collector. Only the
// vault may call it, as part of rebalance settlement.
func (e *Engine) MintProtocolFee(caller, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.vault || e.vault == (common.Address{}) {
		return errUnauthorizedCaller
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	return e.state.Mint(e.token, to, amount)
}

// AcceptableForReserve reports whether the tranche may enter the reserve:
// either it is the designated deposit tranche, or it is a recognized tranche
// over the configured underlying maturing inside the tolerance window.
func (e *Engine) AcceptableForReserve(tranche common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	st, err := e.ensureState()
	if err != nil {
		return false, err
	}
	if tranche != (common.Address{}) && tranche == st.DepositTranche {
		return true, nil
	}
	bondID, ok, err := e.state.GetTrancheBond(tranche)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if e.issuer != nil {
		instance, err := e.issuer.IsInstance(bondID)
		if err != nil {
			return false, err
		}
		if !instance {
			return false, nil
		}
	}
	b, err := e.state.GetBond(bondID)
	if err != nil {
		return false, err
	}
	if b == nil || b.Collateral != e.underlying {
		return false, nil
	}
	return e.withinTolerance(b.Maturity, e.nowFn()), nil
}

// DepositTrancheToken returns the currently designated deposit tranche; the
// zero address means none has been designated.
func (e *Engine) DepositTrancheToken() (common.Address, error) {
	st, err := e.ensureState()
	if err != nil {
		return common.Address{}, err
	}
	return st.DepositTranche, nil
}

// Supply returns the outstanding claim token supply.
func (e *Engine) Supply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.TotalSupply(e.token)
}

// TotalValue sums the held value of the reserve basket.
func (e *Engine) TotalValue() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil {
		return nil, errNilCollaborator
	}
	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	return reserve.TotalValue(reg, e.state, e.prices)
}

// ValueOfAsset prices a single registered reserve asset.
func (e *Engine) ValueOfAsset(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil {
		return nil, errNilCollaborator
	}
	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	if !reg.Contains(asset) {
		return nil, errUnrecognizedAsset
	}
	return reserve.AssetValue(reg, asset, e.state, e.prices)
}

// ReserveAssets lists the registered reserve assets, most recently
// registered first.
func (e *Engine) ReserveAssets() ([]common.Address, error) {
	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	return reg.NewestFirst(), nil
}

// RegistryList lists the registered reserve assets in registration order.
func (e *Engine) RegistryList() ([]common.Address, error) {
	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

// ReserveBalance returns the held balance of a reserve asset.
func (e *Engine) ReserveBalance(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BalanceOf(asset, e.Holder())
}

func (e *Engine) withinTolerance(maturity, now int64) bool {
	remaining := maturity - now
	return remaining >= e.toleranceMin && remaining <= e.toleranceMax
}

func (e *Engine) ensureState() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.GetPerpState()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = NewState()
	}
	if st.MintedPerTranche == nil {
		st.MintedPerTranche = make(map[common.Address]*big.Int)
	}
	return st, nil
}

func (e *Engine) ensureRegistry() (*reserve.Registry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reg, err := e.state.GetRegistry(e.Holder())
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = reserve.NewRegistry(e.Holder(), e.underlying)
		if err := e.state.PutRegistry(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
