package vault

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/core/events"
	"perpvault/native/bond"
	nativecommon "perpvault/native/common"
	"perpvault/native/fees"
	"perpvault/native/perp"
	"perpvault/native/pricing"
	"perpvault/native/reserve"
)

var (
	errNilState            = errors.New("vault engine: state not configured")
	errNilCollaborator     = errors.New("vault engine: collaborator not configured")
	errInvalidAmount       = errors.New("vault engine: amount must be positive")
	errInsufficientBalance = errors.New("vault engine: insufficient balance")
	errNoSupply            = errors.New("vault engine: no note supply outstanding")
	errBelowMinDeployment  = errors.New("vault engine: usable underlying below deployment minimum")
	errNoDepositTranche    = errors.New("vault engine: claim token has no deposit tranche")
	errInvalidBond         = errors.New("vault engine: invalid bond")
	errBondNotMature       = errors.New("vault engine: bond not yet mature")
	errValuelessAssets     = errors.New("vault engine: tranche amounts carry no redeemable value")
	errNotDeployed         = errors.New("vault engine: asset not in deployed set")
)

// ErrRebalanceTooRecent is returned while the rebalance cooldown is active.
// Periodic callers treat it as a benign skip.
var ErrRebalanceTooRecent = errors.New("vault engine: last rebalance too recent")

const moduleName = nativecommon.ModuleVault

type engineState interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
	TotalSupply(token common.Address) (*big.Int, error)
	GetRegistry(owner common.Address) (*reserve.Registry, error)
	PutRegistry(reg *reserve.Registry) error
	GetVaultState() (*State, error)
	PutVaultState(st *State) error
	GetBond(id common.Address) (*bond.Bond, error)
	GetTrancheBond(token common.Address) (common.Address, bool, error)
}

// ClaimToken is the claim token surface the vault drives. *perp.Engine
// satisfies it.
type ClaimToken interface {
	Holder() common.Address
	Guard() error
	Rollover(caller, trancheIn, tokenOut common.Address, trancheInAmt *big.Int) (*perp.RolloverResult, error)
	Absorb(caller, tranche common.Address, amount *big.Int) error
	MintProtocolFee(caller, to common.Address, amount *big.Int) error
	DepositTrancheToken() (common.Address, error)
	ReserveAssets() ([]common.Address, error)
	TotalValue() (*big.Int, error)
	Supply() (*big.Int, error)
}

// BondController is the bond engine surface used for tranching, redemption
// and maturity settlement. *bond.Engine satisfies it.
type BondController interface {
	Deposit(id common.Address, depositor common.Address, amount *big.Int) ([]*big.Int, error)
	Redeem(id common.Address, holder common.Address, amounts []*big.Int) (*big.Int, error)
	Finalize(id common.Address) error
	RedeemMature(id common.Address, holder, tranche common.Address, amount *big.Int) (*big.Int, error)
}

// Payout pairs a vault asset with the amount paid out of it.
type Payout struct {
	Token  common.Address
	Amount *big.Int
}

// DeployResult summarises a deployment pass.
type DeployResult struct {
	Bond         common.Address
	Tranched     *big.Int
	SeniorRolled *big.Int
}

// RebalanceResult reports the signed policy amount and the value actually
// moved into the claim token reserve.
type RebalanceResult struct {
	Amount     *big.Int
	ValueMoved *big.Int
}

// Engine is the liquidity vault: it tranches idle underlying through the
// accepted deposit bond, rotates the senior slice into the claim token
// reserve, retires matured holdings and periodically rebalances value
// between the two holders. The note token identity doubles as the vault's
// ledger account.
type Engine struct {
	state         engineState
	note          common.Address
	underlying    common.Address
	claim         ClaimToken
	bonds         BondController
	prices        pricing.Policy
	feePolicy     fees.Policy
	minDeployment *big.Int
	rebalanceFreq int64
	meldMaxFeeBps uint64
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	nowFn         func() int64
}

// NewEngine constructs a vault engine for the supplied note token and
// underlying identities.
func NewEngine(note, underlying common.Address) *Engine {
	return &Engine{
		note:          note,
		underlying:    underlying,
		minDeployment: big.NewInt(0),
		nowFn:         func() int64 { return time.Now().Unix() },
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

// SetClaimToken wires the claim token the vault serves.
func (e *Engine) SetClaimToken(claim ClaimToken) {
	if e == nil {
		return
	}
	e.claim = claim
}

// SetBondController wires the bond engine.
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

// SetMinDeployment configures the smallest usable underlying Deploy accepts.
func (e *Engine) SetMinDeployment(min *big.Int) {
	if e == nil {
		return
	}
	if min == nil {
		e.minDeployment = big.NewInt(0)
		return
	}
	e.minDeployment = new(big.Int).Set(min)
}

// SetRebalanceFreq configures the cooldown between rebalances, in seconds.
func (e *Engine) SetRebalanceFreq(seconds int64) {
	if e == nil {
		return
	}
	e.rebalanceFreq = seconds
}

// SetMeldMaxFeeBps configures the meld fee charged at issuance; the fee
// decays linearly to zero at maturity.
func (e *Engine) SetMeldMaxFeeBps(bps uint64) {
	if e == nil {
		return
	}
	e.meldMaxFeeBps = bps
}

// SetEmitter wires the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetNow overrides the clock used for maturity and cooldown checks.
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

// NoteToken returns the vault note identity.
func (e *Engine) NoteToken() common.Address { return e.note }

// Holder returns the ledger account holding the vault basket.
func (e *Engine) Holder() common.Address { return e.note }

// Deposit moves underlying into the vault and mints note shares at the
// current value-per-note. A zero amount is a no-op returning zero.
func (e *Engine) Deposit(depositor common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.prices == nil {
		return nil, errNilCollaborator
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	totalBefore, err := reserve.TotalValue(reg, e.state, e.prices)
	if err != nil {
		return nil, err
	}
	supply, err := e.state.TotalSupply(e.note)
	if err != nil {
		return nil, err
	}

	minted := new(big.Int).Set(amount)
	if supply.Sign() > 0 && totalBefore.Sign() > 0 {
		minted.Mul(amount, supply)
		minted.Quo(minted, totalBefore)
	}

	balance, err := e.state.BalanceOf(e.underlying, depositor)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	if err := e.state.Transfer(e.underlying, depositor, e.Holder(), amount); err != nil {
		return nil, err
	}
	if err := e.state.Mint(e.note, depositor, minted); err != nil {
		return nil, err
	}

	e.emit(events.NoteMinted{Depositor: depositor, Amount: new(big.Int).Set(amount), Minted: new(big.Int).Set(minted)})
	return minted, nil
}

// Redeem burns note shares and pays out the redeemer's exact fraction of
// every vault asset, traversed most-recently-registered first. Assets
// emptied by the payout are unregistered and dropped from the deployed set.
func (e *Engine) Redeem(redeemer common.Address, burnAmt *big.Int) ([]Payout, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if burnAmt == nil || burnAmt.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	supply, err := e.state.TotalSupply(e.note)
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return nil, errNoSupply
	}
	balance, err := e.state.BalanceOf(e.note, redeemer)
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
	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}

	var payouts []Payout
	regChanged := false
	stChanged := false
	for _, asset := range reg.NewestFirst() {
		held, err := e.state.BalanceOf(asset, e.Holder())
		if err != nil {
			return nil, err
		}
		share := new(big.Int).Mul(held, burnAmt)
		share.Quo(share, supply)
		if share.Sign() == 0 {
			continue
		}
		if err := e.state.Transfer(asset, e.Holder(), redeemer, share); err != nil {
			return nil, err
		}
		remaining := new(big.Int).Sub(held, share)
		if remaining.Sign() == 0 && asset != reg.Underlying {
			if reg.Unregister(asset) {
				regChanged = true
			}
			if st.RemoveDeployed(asset) {
				stChanged = true
			}
		}
		payouts = append(payouts, Payout{Token: asset, Amount: share})
	}

	if err := e.state.Burn(e.note, redeemer, burnAmt); err != nil {
		return nil, err
	}
	if regChanged {
		if err := e.state.PutRegistry(reg); err != nil {
			return nil, err
		}
	}
	if stChanged {
		if err := e.state.PutVaultState(st); err != nil {
			return nil, err
		}
	}

	tokens := make([]common.Address, len(payouts))
	amounts := make([]*big.Int, len(payouts))
	for i, p := range payouts {
		tokens[i] = p.Token
		amounts[i] = new(big.Int).Set(p.Amount)
	}
	e.emit(events.NoteRedeemed{Redeemer: redeemer, Burned: new(big.Int).Set(burnAmt), Tokens: tokens, Payouts: amounts})
	return payouts, nil
}

// Deploy tranches the vault's entire usable underlying through the accepted
// deposit bond, then rolls the senior slice into the claim token reserve,
// walking that reserve most-recently-registered first until the senior
// supply or the exchangeable reserve is exhausted. Junior classes and any
// senior remainder stay registered as deployed.
func (e *Engine) Deploy() (*DeployResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.claim == nil || e.bonds == nil {
		return nil, errNilCollaborator
	}
	// The claim side participates mid-flow; refuse to start while it is
	// paused rather than abort between ledger writes.
	if err := e.claim.Guard(); err != nil {
		return nil, err
	}

	usable, err := e.state.BalanceOf(e.underlying, e.Holder())
	if err != nil {
		return nil, err
	}
	if usable.Sign() == 0 || usable.Cmp(e.minDeployment) < 0 {
		return nil, errBelowMinDeployment
	}

	b, err := e.depositBond()
	if err != nil {
		return nil, err
	}

	if _, err := e.bonds.Deposit(b.ID, e.Holder(), usable); err != nil {
		return nil, err
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}
	for _, class := range b.Classes {
		reg.Register(class.Token)
		st.AddDeployed(class.Token)
	}
	// Persist before rolling so an abort mid-exchange cannot leave held
	// tranches unregistered.
	if err := e.state.PutRegistry(reg); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	senior := b.Senior().Token
	rolled := big.NewInt(0)
	assets, err := e.claim.ReserveAssets()
	if err != nil {
		return nil, err
	}
	for _, asset := range assets {
		seniorHeld, err := e.state.BalanceOf(senior, e.Holder())
		if err != nil {
			return nil, err
		}
		if seniorHeld.Sign() == 0 {
			break
		}
		if asset != e.underlying {
			assetBond, ok, err := e.state.GetTrancheBond(asset)
			if err != nil {
				return nil, err
			}
			if ok && assetBond == b.ID {
				continue
			}
		}
		res, err := e.claim.Rollover(e.Holder(), senior, asset, seniorHeld)
		if err != nil {
			return nil, err
		}
		if res.TrancheInAmt.Sign() == 0 {
			continue
		}
		rolled.Add(rolled, res.TrancheInAmt)
		if asset != e.underlying && res.TokenOutAmt.Sign() > 0 {
			changed := reg.Register(asset)
			if st.AddDeployed(asset) {
				changed = true
			}
			if changed {
				if err := e.state.PutRegistry(reg); err != nil {
					return nil, err
				}
				if err := e.state.PutVaultState(st); err != nil {
					return nil, err
				}
			}
		}
	}

	// Classes fully rolled out leave a zero balance behind; reconcile the
	// registry before returning.
	for _, class := range b.Classes {
		held, err := e.state.BalanceOf(class.Token, e.Holder())
		if err != nil {
			return nil, err
		}
		if held.Sign() == 0 {
			reg.Unregister(class.Token)
			st.RemoveDeployed(class.Token)
		}
	}

	if err := e.state.PutRegistry(reg); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	e.emit(events.VaultDeployed{Bond: b.ID, Tranched: new(big.Int).Set(usable), SeniorRolled: new(big.Int).Set(rolled)})
	return &DeployResult{Bond: b.ID, Tranched: usable, SeniorRolled: rolled}, nil
}

// Recover settles every deployed asset whose bond has matured back into
// underlying.
func (e *Engine) Recover() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.bonds == nil {
		return errNilCollaborator
	}
	st, err := e.ensureState()
	if err != nil {
		return err
	}
	now := e.nowFn()
	for _, asset := range append([]common.Address(nil), st.Deployed...) {
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
		if err := e.recoverAsset(asset, bondID); err != nil {
			return err
		}
	}
	return nil
}

// RecoverOne settles a single deployed asset, bounding cost when the
// deployed set is large.
func (e *Engine) RecoverOne(asset common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.bonds == nil {
		return errNilCollaborator
	}
	st, err := e.ensureState()
	if err != nil {
		return err
	}
	if !st.IsDeployed(asset) {
		return errNotDeployed
	}
	bondID, ok, err := e.state.GetTrancheBond(asset)
	if err != nil {
		return err
	}
	if !ok {
		return errNotDeployed
	}
	b, err := e.state.GetBond(bondID)
	if err != nil {
		return err
	}
	if b == nil {
		return errInvalidBond
	}
	if !b.IsMature(e.nowFn()) {
		return errBondNotMature
	}
	return e.recoverAsset(asset, bondID)
}

// RecoverAndRedeploy recovers matured holdings and immediately redeploys the
// freed underlying. Deployment is skipped when the recovered underlying
// stays below the configured minimum.
func (e *Engine) RecoverAndRedeploy() (*DeployResult, error) {
	if err := e.Recover(); err != nil {
		return nil, err
	}
	res, err := e.Deploy()
	if errors.Is(err, errBelowMinDeployment) {
		return nil, nil
	}
	return res, err
}

func (e *Engine) recoverAsset(asset, bondID common.Address) error {
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
	reg, err := e.ensureRegistry()
	if err != nil {
		return err
	}
	st, err := e.ensureState()
	if err != nil {
		return err
	}
	reg.Unregister(asset)
	st.RemoveDeployed(asset)
	if err := e.state.PutRegistry(reg); err != nil {
		return err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return err
	}
	e.emit(events.VaultRecovered{Tranche: asset, Bond: bondID, Proceeds: proceeds})
	return nil
}

// Meld redeems a ratio-complete combination of the caller's tranches of a
// deployed, unmatured bond directly for underlying. The combination is
// capped to the class with the smallest relative contribution. A fee that
// decays linearly to zero at maturity is retained by the vault.
func (e *Engine) Meld(caller, bondID common.Address, amounts []*big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.bonds == nil {
		return nil, errNilCollaborator
	}

	b, err := e.state.GetBond(bondID)
	if err != nil {
		return nil, err
	}
	if b == nil || len(b.Classes) == 0 || b.Collateral != e.underlying {
		return nil, errInvalidBond
	}
	now := e.nowFn()
	if b.IsMature(now) {
		return nil, errInvalidBond
	}
	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}
	deployed := false
	for _, class := range b.Classes {
		if st.IsDeployed(class.Token) {
			deployed = true
			break
		}
	}
	if !deployed {
		return nil, errInvalidBond
	}
	if len(amounts) != len(b.Classes) {
		return nil, errInvalidBond
	}

	// The redeemable multiplier is set by the class contributing the least
	// relative to its ratio; everything beyond it stays with the caller.
	var multiplier *big.Int
	for i, amt := range amounts {
		if amt == nil || amt.Sign() < 0 {
			return nil, errInvalidAmount
		}
		m := new(big.Int).Quo(amt, new(big.Int).SetUint64(b.Classes[i].Ratio))
		if multiplier == nil || m.Cmp(multiplier) < 0 {
			multiplier = m
		}
	}
	if multiplier == nil || multiplier.Sign() == 0 {
		return nil, errValuelessAssets
	}

	capped := make([]*big.Int, len(b.Classes))
	total := new(big.Int)
	for i, class := range b.Classes {
		capped[i] = new(big.Int).Mul(multiplier, new(big.Int).SetUint64(class.Ratio))
		total.Add(total, capped[i])
	}
	for i, class := range b.Classes {
		balance, err := e.state.BalanceOf(class.Token, caller)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(capped[i]) < 0 {
			return nil, errInsufficientBalance
		}
	}
	for i, class := range b.Classes {
		if err := e.state.Transfer(class.Token, caller, e.Holder(), capped[i]); err != nil {
			return nil, err
		}
	}

	redeemed, err := e.bonds.Redeem(bondID, e.Holder(), capped)
	if err != nil {
		return nil, err
	}

	feeBps := e.meldFeeBps(b, now)
	res := fees.Apply(redeemed, feeBps)
	if res.Net.Sign() > 0 {
		if err := e.state.Transfer(e.underlying, e.Holder(), caller, res.Net); err != nil {
			return nil, err
		}
	}

	e.emit(events.VaultMelded{Bond: bondID, Caller: caller, Redeemed: redeemed, FeeRetained: res.Fee})
	return res.Net, nil
}

// Rebalance applies the fee policy's signed value delta between the claim
// token and the vault, then mints the configured protocol share. Gated by
// the rebalance cooldown.
func (e *Engine) Rebalance() (*RebalanceResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.claim == nil || e.bonds == nil || e.prices == nil || e.feePolicy == nil {
		return nil, errNilCollaborator
	}
	// Both sides mutate during a rebalance; a paused claim module must stop
	// the flow before the first ledger write.
	if err := e.claim.Guard(); err != nil {
		return nil, err
	}

	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	if now-st.LastRebalance < e.rebalanceFreq {
		return nil, ErrRebalanceTooRecent
	}

	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	claimValue, err := e.claim.TotalValue()
	if err != nil {
		return nil, err
	}
	vaultValue, err := reserve.TotalValue(reg, e.state, e.prices)
	if err != nil {
		return nil, err
	}
	claimSupply, err := e.claim.Supply()
	if err != nil {
		return nil, err
	}

	amount := e.feePolicy.RebalanceAmount(claimValue, vaultValue, claimSupply)
	if amount == nil {
		amount = big.NewInt(0)
	}
	moved := big.NewInt(0)

	usable, err := e.state.BalanceOf(e.underlying, e.Holder())
	if err != nil {
		return nil, err
	}
	switch {
	case amount.Sign() < 0:
		// Under-backed claim token: pure backing repair with underlying,
		// no supply change on either side.
		spend := new(big.Int).Neg(amount)
		if spend.Cmp(usable) > 0 {
			spend.Set(usable)
		}
		if spend.Sign() > 0 {
			if err := e.state.Transfer(e.underlying, e.Holder(), e.claim.Holder(), spend); err != nil {
				return nil, err
			}
			moved = spend
		}
	case amount.Sign() > 0:
		spend := new(big.Int).Set(amount)
		if spend.Cmp(usable) > 0 {
			spend.Set(usable)
		}
		if spend.Sign() > 0 {
			value, err := e.rebalanceSeniorSlice(spend, reg, st)
			if err != nil {
				return nil, err
			}
			moved = value
		}
	}

	if err := e.mintProtocolShare(moved, claimValue, vaultValue, claimSupply); err != nil {
		return nil, err
	}

	st.LastRebalance = now
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	e.emit(events.Rebalanced{Amount: new(big.Int).Set(amount), ValueMoved: new(big.Int).Set(moved), Timestamp: now})
	return &RebalanceResult{Amount: amount, ValueMoved: moved}, nil
}

// rebalanceSeniorSlice tranches the supplied underlying through the deposit
// bond and pushes the senior slice into the claim reserve without a supply
// change. Junior classes stay deployed in the vault.
func (e *Engine) rebalanceSeniorSlice(spend *big.Int, reg *reserve.Registry, st *State) (*big.Int, error) {
	b, err := e.depositBond()
	if err != nil {
		return nil, err
	}
	minted, err := e.bonds.Deposit(b.ID, e.Holder(), spend)
	if err != nil {
		return nil, err
	}
	for _, class := range b.Classes {
		reg.Register(class.Token)
		st.AddDeployed(class.Token)
	}
	// Persist before handing the senior slice over so an abort on the claim
	// side cannot leave held tranches unregistered.
	if err := e.state.PutRegistry(reg); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	senior := b.Senior().Token
	seniorAmt := minted[0]
	if seniorAmt.Sign() > 0 {
		if err := e.claim.Absorb(e.Holder(), senior, seniorAmt); err != nil {
			return nil, err
		}
	}
	held, err := e.state.BalanceOf(senior, e.Holder())
	if err != nil {
		return nil, err
	}
	if held.Sign() == 0 {
		reg.Unregister(senior)
		st.RemoveDeployed(senior)
	}
	if err := e.state.PutRegistry(reg); err != nil {
		return nil, err
	}
	if err := e.state.PutVaultState(st); err != nil {
		return nil, err
	}

	price, err := e.prices.Price(senior)
	if err != nil {
		return nil, err
	}
	return reserve.ValueOf(seniorAmt, price), nil
}

func (e *Engine) mintProtocolShare(moved, claimValue, vaultValue, claimSupply *big.Int) error {
	shareBps := e.feePolicy.ProtocolShareBps()
	if shareBps == 0 || moved.Sign() == 0 {
		return nil
	}
	collector := e.feePolicy.ProtocolFeeCollector()
	feeValue := new(big.Int).Mul(moved, new(big.Int).SetUint64(shareBps))
	feeValue.Quo(feeValue, big.NewInt(10_000))
	if feeValue.Sign() == 0 {
		return nil
	}

	claimFee := new(big.Int).Set(feeValue)
	if claimSupply.Sign() > 0 && claimValue.Sign() > 0 {
		claimFee.Mul(feeValue, claimSupply)
		claimFee.Quo(claimFee, claimValue)
	}
	noteSupply, err := e.state.TotalSupply(e.note)
	if err != nil {
		return err
	}
	noteFee := new(big.Int).Set(feeValue)
	if noteSupply.Sign() > 0 && vaultValue.Sign() > 0 {
		noteFee.Mul(feeValue, noteSupply)
		noteFee.Quo(noteFee, vaultValue)
	}

	if claimFee.Sign() > 0 {
		if err := e.claim.MintProtocolFee(e.Holder(), collector, claimFee); err != nil {
			return err
		}
	}
	if noteFee.Sign() > 0 {
		if err := e.state.Mint(e.note, collector, noteFee); err != nil {
			return err
		}
	}
	e.emit(events.ProtocolFeeMinted{Collector: collector, ClaimMinted: claimFee, NotesMinted: noteFee})
	return nil
}

func (e *Engine) meldFeeBps(b *bond.Bond, now int64) uint64 {
	if e.meldMaxFeeBps == 0 {
		return 0
	}
	duration := b.Maturity - b.CreatedAt
	if duration <= 0 {
		return e.meldMaxFeeBps
	}
	remaining := b.Maturity - now
	if remaining <= 0 {
		return 0
	}
	if remaining > duration {
		remaining = duration
	}
	return e.meldMaxFeeBps * uint64(remaining) / uint64(duration)
}

func (e *Engine) depositBond() (*bond.Bond, error) {
	tranche, err := e.claim.DepositTrancheToken()
	if err != nil {
		return nil, err
	}
	if tranche == (common.Address{}) {
		return nil, errNoDepositTranche
	}
	bondID, ok, err := e.state.GetTrancheBond(tranche)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoDepositTranche
	}
	b, err := e.state.GetBond(bondID)
	if err != nil {
		return nil, err
	}
	if b == nil || b.IsMature(e.nowFn()) {
		return nil, errInvalidBond
	}
	return b, nil
}

// Supply returns the outstanding note supply.
func (e *Engine) Supply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.TotalSupply(e.note)
}

// TotalValue sums the held value of the vault basket.
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

// ValueOfAsset prices a single registered vault asset.
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
		return nil, errNotDeployed
	}
	return reserve.AssetValue(reg, asset, e.state, e.prices)
}

// RegistryList lists the registered vault assets in registration order.
func (e *Engine) RegistryList() ([]common.Address, error) {
	reg, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

// DeployedAssets lists the assets currently marked deployed.
func (e *Engine) DeployedAssets() ([]common.Address, error) {
	st, err := e.ensureState()
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), st.Deployed...), nil
}

func (e *Engine) ensureState() (*State, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.state.GetVaultState()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = NewState()
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
