package bond

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/core/events"
	nativecommon "perpvault/native/common"
)

var (
	errNilState            = errors.New("bond engine: state not configured")
	errUnknownBond         = errors.New("bond engine: unknown bond")
	errInvalidAmount       = errors.New("bond engine: amount must be positive")
	errInsufficientBalance = errors.New("bond engine: insufficient balance")
	errBondMature          = errors.New("bond engine: bond past maturity")
	errBondNotMature       = errors.New("bond engine: bond not yet mature")
	errBondNotFinalized    = errors.New("bond engine: bond not finalized")
	errAmountsMismatch     = errors.New("bond engine: tranche amounts do not match classes")
	errAmountsNotInRatio   = errors.New("bond engine: tranche amounts not in seniority ratio")
	errNotTranche          = errors.New("bond engine: token is not a class of this bond")
)

const moduleName = nativecommon.ModuleBond

type engineState interface {
	GetBond(id common.Address) (*Bond, error)
	PutBond(b *Bond) error
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
	TotalSupply(token common.Address) (*big.Int, error)
}

// Engine executes the collateral and tranche token movements for issued
// bonds. The bond identity doubles as its escrow account on the ledger.
type Engine struct {
	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a bond engine.
func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter wires the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetNow overrides the clock used for maturity checks.
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

// Bond loads the stored bond for the supplied identity.
func (e *Engine) Bond(id common.Address) (*Bond, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	b, err := e.state.GetBond(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errUnknownBond
	}
	return b, nil
}

// Deposit moves collateral from the depositor into the bond escrow and mints
// tranche tokens per class in seniority ratio. The minted amounts are
// returned in class order.
func (e *Engine) Deposit(id common.Address, depositor common.Address, amount *big.Int) ([]*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	b, err := e.Bond(id)
	if err != nil {
		return nil, err
	}
	if b.IsMature(e.nowFn()) {
		return nil, errBondMature
	}

	balance, err := e.state.BalanceOf(b.Collateral, depositor)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	if err := e.state.Transfer(b.Collateral, depositor, b.ID, amount); err != nil {
		return nil, err
	}

	granularity := big.NewInt(TrancheRatioGranularity)
	minted := make([]*big.Int, len(b.Classes))
	for i, class := range b.Classes {
		trancheAmt := new(big.Int).Mul(amount, new(big.Int).SetUint64(class.Ratio))
		trancheAmt = trancheAmt.Quo(trancheAmt, granularity)
		if err := e.state.Mint(class.Token, depositor, trancheAmt); err != nil {
			return nil, err
		}
		minted[i] = trancheAmt
	}

	e.emit(events.BondDeposit{Bond: b.ID, Depositor: depositor, Amount: new(big.Int).Set(amount)})
	return minted, nil
}

// Redeem burns a ratio-complete set of tranche tokens before maturity and
// returns the combined collateral to the holder. The amounts must be supplied
// in class order and be exactly proportional to the seniority ratios.
func (e *Engine) Redeem(id common.Address, holder common.Address, amounts []*big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	b, err := e.Bond(id)
	if err != nil {
		return nil, err
	}
	if b.IsMature(e.nowFn()) {
		return nil, errBondMature
	}
	if len(amounts) != len(b.Classes) {
		return nil, errAmountsMismatch
	}

	total := new(big.Int)
	for _, amt := range amounts {
		if amt == nil || amt.Sign() < 0 {
			return nil, errInvalidAmount
		}
		total.Add(total, amt)
	}
	if total.Sign() == 0 {
		return nil, errInvalidAmount
	}
	// Proportionality: amounts[i]*ratio[j] == amounts[j]*ratio[i] for all
	// pairs; checking every class against the first suffices.
	first := amounts[0]
	firstRatio := new(big.Int).SetUint64(b.Classes[0].Ratio)
	for i := 1; i < len(amounts); i++ {
		left := new(big.Int).Mul(first, new(big.Int).SetUint64(b.Classes[i].Ratio))
		right := new(big.Int).Mul(amounts[i], firstRatio)
		if left.Cmp(right) != 0 {
			return nil, errAmountsNotInRatio
		}
	}

	for i, class := range b.Classes {
		if amounts[i].Sign() == 0 {
			continue
		}
		balance, err := e.state.BalanceOf(class.Token, holder)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(amounts[i]) < 0 {
			return nil, errInsufficientBalance
		}
	}
	for i, class := range b.Classes {
		if amounts[i].Sign() == 0 {
			continue
		}
		if err := e.state.Burn(class.Token, holder, amounts[i]); err != nil {
			return nil, err
		}
	}
	if err := e.state.Transfer(b.Collateral, b.ID, holder, total); err != nil {
		return nil, err
	}

	e.emit(events.BondRedeemed{Bond: b.ID, Holder: holder, Collateral: new(big.Int).Set(total)})
	return total, nil
}

// Finalize fixes the per-class recovery rates once the bond is mature. The
// remaining escrow collateral is promised senior-first: each class is covered
// at par until the escrow runs out, and the resulting rate is stored in price
// fixed point. Calling Finalize on an already finalized bond is a no-op.
func (e *Engine) Finalize(id common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	b, err := e.Bond(id)
	if err != nil {
		return err
	}
	if b.Finalized {
		return nil
	}
	if !b.IsMature(e.nowFn()) {
		return errBondNotMature
	}

	remaining, err := e.state.BalanceOf(b.Collateral, b.ID)
	if err != nil {
		return err
	}
	remaining = new(big.Int).Set(remaining)

	rates := make([]*big.Int, len(b.Classes))
	for i, class := range b.Classes {
		supply, err := e.state.TotalSupply(class.Token)
		if err != nil {
			return err
		}
		if supply.Sign() == 0 {
			rates[i] = new(big.Int).Set(PriceOne)
			continue
		}
		covered := new(big.Int).Set(supply)
		if covered.Cmp(remaining) > 0 {
			covered.Set(remaining)
		}
		rate := new(big.Int).Mul(covered, PriceOne)
		rates[i] = rate.Quo(rate, supply)
		remaining.Sub(remaining, covered)
	}

	b.Finalized = true
	b.FinalRates = rates
	if err := e.state.PutBond(b); err != nil {
		return err
	}

	e.emit(events.BondFinalized{Bond: b.ID, Rates: rates})
	return nil
}

// RedeemMature burns a single tranche class at its finalized recovery rate
// and pays the holder the corresponding collateral. The collateral paid out
// is returned.
func (e *Engine) RedeemMature(id common.Address, holder, tranche common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	b, err := e.Bond(id)
	if err != nil {
		return nil, err
	}
	if !b.Finalized {
		return nil, errBondNotFinalized
	}
	class, ok := b.ClassOf(tranche)
	if !ok {
		return nil, errNotTranche
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	balance, err := e.state.BalanceOf(tranche, holder)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}

	payout := new(big.Int).Mul(amount, b.FinalRates[class])
	payout = payout.Quo(payout, PriceOne)

	escrow, err := e.state.BalanceOf(b.Collateral, b.ID)
	if err != nil {
		return nil, err
	}
	if payout.Cmp(escrow) > 0 {
		payout = new(big.Int).Set(escrow)
	}

	if err := e.state.Burn(tranche, holder, amount); err != nil {
		return nil, err
	}
	if payout.Sign() > 0 {
		if err := e.state.Transfer(b.Collateral, b.ID, holder, payout); err != nil {
			return nil, err
		}
	}
	return payout, nil
}
