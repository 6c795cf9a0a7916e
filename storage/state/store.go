// Package state provides the durable ledger backing the native engines:
// token balances and supplies, the two asset registries, the bond records
// and the claim token and vault bookkeeping. Values are RLP encoded over a
// small KV abstraction with goleveldb and in-memory backends.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"perpvault/native/bond"
	"perpvault/native/perp"
	"perpvault/native/reserve"
	"perpvault/native/vault"
)

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrNegativeAmount is returned for nil or negative ledger amounts.
	ErrNegativeAmount = errors.New("state: amount must not be negative")
)

// KV is the byte-level store the ledger is built on.
type KV interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Store implements the engine state interfaces over a KV backend. Every
// method performs a single logical read or write; atomicity across an
// operation is provided by the single-threaded execution model.
type Store struct {
	kv KV
}

// NewStore wraps the supplied KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// NewMemory returns a store over a fresh in-memory backend.
func NewMemory() *Store {
	return NewStore(NewMemoryKV())
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.kv.Put(key, raw)
}

// BalanceOf returns the holder's balance of the token, zero when untracked.
func (s *Store) BalanceOf(token, holder common.Address) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := s.get(balanceKey(token, holder), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// TotalSupply returns the outstanding supply of the token.
func (s *Store) TotalSupply(token common.Address) (*big.Int, error) {
	supply := new(big.Int)
	if _, err := s.get(supplyKey(token), supply); err != nil {
		return nil, err
	}
	return supply, nil
}

func (s *Store) setBalance(token, holder common.Address, balance *big.Int) error {
	if balance.Sign() == 0 {
		return s.kv.Delete(balanceKey(token, holder))
	}
	return s.put(balanceKey(token, holder), balance)
}

// Transfer moves tokens between holders, failing on insufficient balance
// without any partial write.
func (s *Store) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := s.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := s.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := s.setBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return s.setBalance(token, to, new(big.Int).Add(toBal, amount))
}

// Mint credits new tokens to the holder and grows the supply.
func (s *Store) Mint(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := s.BalanceOf(token, to)
	if err != nil {
		return err
	}
	supply, err := s.TotalSupply(token)
	if err != nil {
		return err
	}
	if err := s.setBalance(token, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return s.put(supplyKey(token), new(big.Int).Add(supply, amount))
}

// Burn debits tokens from the holder and shrinks the supply.
func (s *Store) Burn(token, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := s.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := s.TotalSupply(token)
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := s.setBalance(token, from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return s.put(supplyKey(token), new(big.Int).Sub(supply, amount))
}

type storedRegistry struct {
	Owner      common.Address
	Underlying common.Address
	Entries    []common.Address
}

// GetRegistry loads the registry owned by the supplied holder, nil when no
// registry exists yet.
func (s *Store) GetRegistry(owner common.Address) (*reserve.Registry, error) {
	var rec storedRegistry
	ok, err := s.get(registryKey(owner), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &reserve.Registry{Owner: rec.Owner, Underlying: rec.Underlying, Entries: rec.Entries}, nil
}

// PutRegistry stores the registry keyed by its owner.
func (s *Store) PutRegistry(reg *reserve.Registry) error {
	if reg == nil {
		return nil
	}
	return s.put(registryKey(reg.Owner), &storedRegistry{
		Owner:      reg.Owner,
		Underlying: reg.Underlying,
		Entries:    reg.Entries,
	})
}

type storedBond struct {
	ID         common.Address
	Collateral common.Address
	CreatedAt  uint64
	Maturity   uint64
	Tokens     []common.Address
	Ratios     []uint64
	Finalized  bool
	FinalRates []*big.Int
}

// GetBond loads a bond record, nil when unknown.
func (s *Store) GetBond(id common.Address) (*bond.Bond, error) {
	var rec storedBond
	ok, err := s.get(bondKey(id), &rec)
	if err != nil || !ok {
		return nil, err
	}
	classes := make([]bond.TrancheClass, len(rec.Tokens))
	for i, token := range rec.Tokens {
		classes[i] = bond.TrancheClass{Token: token, Ratio: rec.Ratios[i]}
	}
	return &bond.Bond{
		ID:         rec.ID,
		Collateral: rec.Collateral,
		CreatedAt:  int64(rec.CreatedAt),
		Maturity:   int64(rec.Maturity),
		Classes:    classes,
		Finalized:  rec.Finalized,
		FinalRates: rec.FinalRates,
	}, nil
}

// PutBond stores a bond record keyed by its identity.
func (s *Store) PutBond(b *bond.Bond) error {
	if b == nil {
		return nil
	}
	rec := storedBond{
		ID:         b.ID,
		Collateral: b.Collateral,
		CreatedAt:  uint64(b.CreatedAt),
		Maturity:   uint64(b.Maturity),
		Finalized:  b.Finalized,
		FinalRates: b.FinalRates,
	}
	for _, class := range b.Classes {
		rec.Tokens = append(rec.Tokens, class.Token)
		rec.Ratios = append(rec.Ratios, class.Ratio)
	}
	if rec.FinalRates == nil {
		rec.FinalRates = []*big.Int{}
	}
	return s.put(bondKey(b.ID), &rec)
}

// GetLatestBond returns the most recently issued bond identity.
func (s *Store) GetLatestBond() (common.Address, bool, error) {
	var id common.Address
	ok, err := s.get(latestBondKey, &id)
	return id, ok, err
}

// PutLatestBond records the most recently issued bond identity.
func (s *Store) PutLatestBond(id common.Address) error {
	return s.put(latestBondKey, &id)
}

// GetBondCount returns the number of bonds issued so far.
func (s *Store) GetBondCount() (uint64, error) {
	var count uint64
	if _, err := s.get(bondSeqKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// PutBondCount stores the issuance counter.
func (s *Store) PutBondCount(count uint64) error {
	return s.put(bondSeqKey, count)
}

// PutTrancheBond records which bond a tranche token belongs to.
func (s *Store) PutTrancheBond(token, bondID common.Address) error {
	return s.put(trancheKey(token), &bondID)
}

// GetTrancheBond resolves the bond a tranche token belongs to.
func (s *Store) GetTrancheBond(token common.Address) (common.Address, bool, error) {
	var id common.Address
	ok, err := s.get(trancheKey(token), &id)
	return id, ok, err
}

type storedPerpState struct {
	DepositTranche common.Address
	Tranches       []common.Address
	Minted         []*big.Int
}

// GetPerpState loads the claim token bookkeeping, nil when unset.
func (s *Store) GetPerpState() (*perp.State, error) {
	var rec storedPerpState
	ok, err := s.get(perpStateKey, &rec)
	if err != nil || !ok {
		return nil, err
	}
	st := perp.NewState()
	st.DepositTranche = rec.DepositTranche
	for i, tranche := range rec.Tranches {
		st.MintedPerTranche[tranche] = rec.Minted[i]
	}
	return st, nil
}

// PutPerpState stores the claim token bookkeeping. The per-tranche mint map
// is flattened into parallel slices sorted by tranche for deterministic
// encoding.
func (s *Store) PutPerpState(st *perp.State) error {
	if st == nil {
		return nil
	}
	rec := storedPerpState{DepositTranche: st.DepositTranche}
	tranches := make([]common.Address, 0, len(st.MintedPerTranche))
	for tranche := range st.MintedPerTranche {
		tranches = append(tranches, tranche)
	}
	for i := 1; i < len(tranches); i++ {
		for j := i; j > 0 && tranches[j].Cmp(tranches[j-1]) < 0; j-- {
			tranches[j], tranches[j-1] = tranches[j-1], tranches[j]
		}
	}
	for _, tranche := range tranches {
		rec.Tranches = append(rec.Tranches, tranche)
		rec.Minted = append(rec.Minted, st.MintedPerTranche[tranche])
	}
	return s.put(perpStateKey, &rec)
}

type storedVaultState struct {
	Deployed      []common.Address
	LastRebalance uint64
}

// GetVaultState loads the vault bookkeeping, nil when unset.
func (s *Store) GetVaultState() (*vault.State, error) {
	var rec storedVaultState
	ok, err := s.get(vaultStateKey, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.State{Deployed: rec.Deployed, LastRebalance: int64(rec.LastRebalance)}, nil
}

// PutVaultState stores the vault bookkeeping.
func (s *Store) PutVaultState(st *vault.State) error {
	if st == nil {
		return nil
	}
	return s.put(vaultStateKey, &storedVaultState{
		Deployed:      st.Deployed,
		LastRebalance: uint64(st.LastRebalance),
	})
}
