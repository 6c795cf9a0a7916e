package reserve

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/native/bond"
)

// BalanceSource resolves the tracked balance of a token for a holder.
type BalanceSource interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
}

// PriceSource resolves the normalized price of a backing asset in price
// fixed point. The underlying always prices at par: its balance already
// reflects any supply rebasing.
type PriceSource interface {
	Price(asset common.Address) (*big.Int, error)
}

// ValueOf computes balance×price in collateral units.
func ValueOf(balance, price *big.Int) *big.Int {
	if balance == nil || price == nil || balance.Sign() == 0 || price.Sign() == 0 {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(balance, price)
	return value.Quo(value, bond.PriceOne)
}

// AssetValue resolves and prices a single registered asset.
func AssetValue(r *Registry, asset common.Address, balances BalanceSource, prices PriceSource) (*big.Int, error) {
	balance, err := balances.BalanceOf(asset, r.Owner)
	if err != nil {
		return nil, err
	}
	if asset == r.Underlying {
		return new(big.Int).Set(balance), nil
	}
	price, err := prices.Price(asset)
	if err != nil {
		return nil, err
	}
	return ValueOf(balance, price), nil
}

// TotalValue sums the held value of every registered asset.
func TotalValue(r *Registry, balances BalanceSource, prices PriceSource) (*big.Int, error) {
	total := big.NewInt(0)
	if r == nil {
		return total, nil
	}
	for _, asset := range r.Entries {
		value, err := AssetValue(r, asset, balances, prices)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}
