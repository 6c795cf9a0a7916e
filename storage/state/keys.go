package state

import "github.com/ethereum/go-ethereum/common"

var (
	balancePrefix  = []byte("ledger/bal/")
	supplyPrefix   = []byte("ledger/sup/")
	registryPrefix = []byte("reserve/reg/")
	bondPrefix     = []byte("bond/rec/")
	tranchePrefix  = []byte("bond/tranche/")
	latestBondKey  = []byte("bond/latest")
	bondSeqKey     = []byte("bond/seq")
	perpStateKey   = []byte("perp/state")
	vaultStateKey  = []byte("vault/state")
)

func balanceKey(token, holder common.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.AddressLength)
	key = append(key, balancePrefix...)
	key = append(key, token.Bytes()...)
	key = append(key, holder.Bytes()...)
	return key
}

func supplyKey(token common.Address) []byte {
	return append(append([]byte(nil), supplyPrefix...), token.Bytes()...)
}

func registryKey(owner common.Address) []byte {
	return append(append([]byte(nil), registryPrefix...), owner.Bytes()...)
}

func bondKey(id common.Address) []byte {
	return append(append([]byte(nil), bondPrefix...), id.Bytes()...)
}

func trancheKey(token common.Address) []byte {
	return append(append([]byte(nil), tranchePrefix...), token.Bytes()...)
}
