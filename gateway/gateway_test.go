package gateway

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type stubClaim struct {
	token    common.Address
	supply   *big.Int
	value    *big.Int
	registry []common.Address
	balances map[common.Address]*big.Int
	values   map[common.Address]*big.Int
	tranche  common.Address
}

func (s *stubClaim) Token() common.Address         { return s.token }
func (s *stubClaim) Supply() (*big.Int, error)     { return s.supply, nil }
func (s *stubClaim) TotalValue() (*big.Int, error) { return s.value, nil }

func (s *stubClaim) ValueOfAsset(asset common.Address) (*big.Int, error) {
	if v, ok := s.values[asset]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (s *stubClaim) ReserveBalance(asset common.Address) (*big.Int, error) {
	if v, ok := s.balances[asset]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (s *stubClaim) RegistryList() ([]common.Address, error) { return s.registry, nil }

func (s *stubClaim) DepositTrancheToken() (common.Address, error) { return s.tranche, nil }

func (s *stubClaim) AcceptableForReserve(tranche common.Address) (bool, error) {
	return tranche == s.tranche, nil
}

type stubVault struct {
	note     common.Address
	supply   *big.Int
	value    *big.Int
	registry []common.Address
	deployed []common.Address
	values   map[common.Address]*big.Int
}

func (s *stubVault) NoteToken() common.Address     { return s.note }
func (s *stubVault) Supply() (*big.Int, error)     { return s.supply, nil }
func (s *stubVault) TotalValue() (*big.Int, error) { return s.value, nil }

func (s *stubVault) ValueOfAsset(asset common.Address) (*big.Int, error) {
	if v, ok := s.values[asset]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (s *stubVault) RegistryList() ([]common.Address, error)   { return s.registry, nil }
func (s *stubVault) DeployedAssets() ([]common.Address, error) { return s.deployed, nil }

var (
	underlying = common.HexToAddress("0x01")
	claimToken = common.HexToAddress("0xCC")
	noteToken  = common.HexToAddress("0xDD")
	seniorTok  = common.HexToAddress("0xA1")
	juniorTok  = common.HexToAddress("0xA2")
)

func testHandler() http.Handler {
	claim := &stubClaim{
		token:    claimToken,
		supply:   big.NewInt(1000),
		value:    big.NewInt(1200),
		registry: []common.Address{seniorTok, underlying},
		balances: map[common.Address]*big.Int{seniorTok: big.NewInt(200)},
		values:   map[common.Address]*big.Int{seniorTok: big.NewInt(200), underlying: big.NewInt(1000)},
		tranche:  seniorTok,
	}
	vault := &stubVault{
		note:     noteToken,
		supply:   big.NewInt(500),
		value:    big.NewInt(800),
		registry: []common.Address{juniorTok, underlying},
		deployed: []common.Address{juniorTok},
		values:   map[common.Address]*big.Int{juniorTok: big.NewInt(300), underlying: big.NewInt(500)},
	}
	return New(Config{Claim: claim, Vault: vault})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, testHandler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestPerpStatus(t *testing.T) {
	rec := get(t, testHandler(), "/v1/perp/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, claimToken.Hex(), resp.Token)
	require.Equal(t, "1000", resp.Supply)
	require.Equal(t, "1200", resp.TotalValue)
	require.Equal(t, []string{seniorTok.Hex(), underlying.Hex()}, resp.Registry)
	require.Equal(t, seniorTok.Hex(), resp.DepositTranche)
}

func TestPerpRegistry(t *testing.T) {
	rec := get(t, testHandler(), "/v1/perp/registry")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []registryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, seniorTok.Hex(), entries[0].Asset)
	require.Equal(t, "200", entries[0].Value)
	require.Equal(t, underlying.Hex(), entries[1].Asset)
	require.Equal(t, "1000", entries[1].Value)
}

func TestPerpAsset(t *testing.T) {
	rec := get(t, testHandler(), "/v1/perp/asset/"+seniorTok.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp assetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, seniorTok.Hex(), resp.Asset)
	require.Equal(t, "200", resp.Balance)
	require.Equal(t, "200", resp.Value)
	require.True(t, resp.Registered)
	require.True(t, resp.Acceptable)
}

func TestPerpAssetUnregistered(t *testing.T) {
	rec := get(t, testHandler(), "/v1/perp/asset/"+juniorTok.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp assetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "0", resp.Balance)
	require.Equal(t, "0", resp.Value)
	require.False(t, resp.Registered)
	require.False(t, resp.Acceptable)
}

func TestPerpAssetBadAddress(t *testing.T) {
	rec := get(t, testHandler(), "/v1/perp/asset/not-an-address")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVaultStatus(t *testing.T) {
	rec := get(t, testHandler(), "/v1/vault/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, noteToken.Hex(), resp.Token)
	require.Equal(t, "500", resp.Supply)
	require.Equal(t, "800", resp.TotalValue)
	require.Equal(t, []string{juniorTok.Hex()}, resp.Deployed)
}

func TestVaultRegistry(t *testing.T) {
	rec := get(t, testHandler(), "/v1/vault/registry")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []registryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "300", entries[0].Value)
}

func TestUnconfiguredEnginesReturn503(t *testing.T) {
	h := New(Config{})
	for _, path := range []string{
		"/v1/perp/status",
		"/v1/perp/registry",
		"/v1/perp/asset/" + seniorTok.Hex(),
		"/v1/vault/status",
		"/v1/vault/registry",
	} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
