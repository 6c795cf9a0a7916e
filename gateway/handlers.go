package gateway

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

type statusResponse struct {
	Token          string   `json:"token"`
	Supply         string   `json:"supply"`
	TotalValue     string   `json:"totalValue"`
	Registry       []string `json:"registry"`
	DepositTranche string   `json:"depositTranche,omitempty"`
	Deployed       []string `json:"deployed,omitempty"`
}

type assetResponse struct {
	Asset      string `json:"asset"`
	Balance    string `json:"balance"`
	Value      string `json:"value"`
	Registered bool   `json:"registered"`
	Acceptable bool   `json:"acceptable"`
}

type registryEntry struct {
	Asset string `json:"asset"`
	Value string `json:"value"`
}

func (s *server) perpStatus(w http.ResponseWriter, _ *http.Request) {
	if s.claim == nil {
		writeError(w, http.StatusServiceUnavailable, "claim engine not configured")
		return
	}
	supply, err := s.claim.Supply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	value, err := s.claim.TotalValue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	assets, err := s.claim.RegistryList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Token:      s.claim.Token().Hex(),
		Supply:     bigString(supply),
		TotalValue: bigString(value),
		Registry:   hexList(assets),
	}
	if tranche, err := s.claim.DepositTrancheToken(); err == nil && tranche != (common.Address{}) {
		resp.DepositTranche = tranche.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) perpRegistry(w http.ResponseWriter, _ *http.Request) {
	if s.claim == nil {
		writeError(w, http.StatusServiceUnavailable, "claim engine not configured")
		return
	}
	assets, err := s.claim.RegistryList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries := make([]registryEntry, 0, len(assets))
	for _, asset := range assets {
		value, err := s.claim.ValueOfAsset(asset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, registryEntry{Asset: asset.Hex(), Value: bigString(value)})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) perpAsset(w http.ResponseWriter, r *http.Request) {
	if s.claim == nil {
		writeError(w, http.StatusServiceUnavailable, "claim engine not configured")
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}
	asset := common.HexToAddress(raw)
	assets, err := s.claim.RegistryList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	registered := false
	for _, a := range assets {
		if a == asset {
			registered = true
			break
		}
	}
	balance, err := s.claim.ReserveBalance(asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	value := big.NewInt(0)
	if registered {
		if value, err = s.claim.ValueOfAsset(asset); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	acceptable, err := s.claim.AcceptableForReserve(asset)
	if err != nil {
		acceptable = false
	}
	writeJSON(w, http.StatusOK, assetResponse{
		Asset:      asset.Hex(),
		Balance:    bigString(balance),
		Value:      bigString(value),
		Registered: registered,
		Acceptable: acceptable,
	})
}

func (s *server) vaultStatus(w http.ResponseWriter, _ *http.Request) {
	if s.vault == nil {
		writeError(w, http.StatusServiceUnavailable, "vault engine not configured")
		return
	}
	supply, err := s.vault.Supply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	value, err := s.vault.TotalValue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	assets, err := s.vault.RegistryList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	deployed, err := s.vault.DeployedAssets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Token:      s.vault.NoteToken().Hex(),
		Supply:     bigString(supply),
		TotalValue: bigString(value),
		Registry:   hexList(assets),
		Deployed:   hexList(deployed),
	})
}

func (s *server) vaultRegistry(w http.ResponseWriter, _ *http.Request) {
	if s.vault == nil {
		writeError(w, http.StatusServiceUnavailable, "vault engine not configured")
		return
	}
	assets, err := s.vault.RegistryList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries := make([]registryEntry, 0, len(assets))
	for _, asset := range assets {
		value, err := s.vault.ValueOfAsset(asset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, registryEntry{Asset: asset.Hex(), Value: bigString(value)})
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hexList(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}
