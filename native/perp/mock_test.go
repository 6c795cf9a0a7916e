package perp

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/native/bond"
	"perpvault/native/reserve"
)

// mockState is an in-memory ledger satisfying the engine state interface
// plus the bond engine, issuer and pricing state interfaces, so tests can
// run the real collaborators against one shared store.
type mockState struct {
	balances   map[common.Address]map[common.Address]*big.Int
	supplies   map[common.Address]*big.Int
	bonds      map[common.Address]*bond.Bond
	tranches   map[common.Address]common.Address
	latest     common.Address
	hasLatest  bool
	count      uint64
	registries map[common.Address]*reserve.Registry
	perpState  *State

	// failBurnOf makes Burn fail for one token, for abort-path tests.
	failBurnOf common.Address
}

func newMockState() *mockState {
	return &mockState{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		supplies:   make(map[common.Address]*big.Int),
		bonds:      make(map[common.Address]*bond.Bond),
		tranches:   make(map[common.Address]common.Address),
		registries: make(map[common.Address]*reserve.Registry),
	}
}

func (m *mockState) BalanceOf(token, holder common.Address) (*big.Int, error) {
	if holders, ok := m.balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return big.NewInt(0), nil
}

func (m *mockState) Transfer(token, from, to common.Address, amount *big.Int) error {
	bal, _ := m.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return errors.New("mock: insufficient balance")
	}
	m.setBalance(token, from, bal.Sub(bal, amount))
	toBal, _ := m.BalanceOf(token, to)
	m.setBalance(token, to, toBal.Add(toBal, amount))
	return nil
}

func (m *mockState) Mint(token, to common.Address, amount *big.Int) error {
	bal, _ := m.BalanceOf(token, to)
	m.setBalance(token, to, bal.Add(bal, amount))
	supply, _ := m.TotalSupply(token)
	m.supplies[token] = supply.Add(supply, amount)
	return nil
}

func (m *mockState) Burn(token, from common.Address, amount *big.Int) error {
	if m.failBurnOf != (common.Address{}) && token == m.failBurnOf {
		return errors.New("mock: burn unavailable")
	}
	bal, _ := m.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return errors.New("mock: insufficient balance")
	}
	m.setBalance(token, from, bal.Sub(bal, amount))
	supply, _ := m.TotalSupply(token)
	m.supplies[token] = supply.Sub(supply, amount)
	return nil
}

func (m *mockState) TotalSupply(token common.Address) (*big.Int, error) {
	if supply, ok := m.supplies[token]; ok {
		return new(big.Int).Set(supply), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) GetRegistry(owner common.Address) (*reserve.Registry, error) {
	return m.registries[owner].Clone(), nil
}

func (m *mockState) PutRegistry(reg *reserve.Registry) error {
	m.registries[reg.Owner] = reg.Clone()
	return nil
}

func (m *mockState) GetPerpState() (*State, error) {
	if m.perpState == nil {
		return nil, nil
	}
	return m.perpState.Clone(), nil
}

func (m *mockState) PutPerpState(st *State) error {
	m.perpState = st.Clone()
	return nil
}

func (m *mockState) GetBond(id common.Address) (*bond.Bond, error) {
	b, ok := m.bonds[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (m *mockState) PutBond(b *bond.Bond) error {
	m.bonds[b.ID] = b.Clone()
	return nil
}

func (m *mockState) GetLatestBond() (common.Address, bool, error) {
	return m.latest, m.hasLatest, nil
}

func (m *mockState) PutLatestBond(id common.Address) error {
	m.latest = id
	m.hasLatest = true
	return nil
}

func (m *mockState) GetBondCount() (uint64, error) { return m.count, nil }

func (m *mockState) PutBondCount(count uint64) error {
	m.count = count
	return nil
}

func (m *mockState) PutTrancheBond(token, bondID common.Address) error {
	m.tranches[token] = bondID
	return nil
}

func (m *mockState) GetTrancheBond(token common.Address) (common.Address, bool, error) {
	id, ok := m.tranches[token]
	return id, ok, nil
}

func (m *mockState) setBalance(token, holder common.Address, amount *big.Int) {
	holders, ok := m.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		m.balances[token] = holders
	}
	if amount.Sign() == 0 {
		delete(holders, holder)
		return
	}
	holders[holder] = new(big.Int).Set(amount)
}
