package gateway

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClaimReader is the read-only surface of the claim token engine the
// gateway serves.
type ClaimReader interface {
	Token() common.Address
	Supply() (*big.Int, error)
	TotalValue() (*big.Int, error)
	ValueOfAsset(asset common.Address) (*big.Int, error)
	ReserveBalance(asset common.Address) (*big.Int, error)
	RegistryList() ([]common.Address, error)
	DepositTrancheToken() (common.Address, error)
	AcceptableForReserve(tranche common.Address) (bool, error)
}

// VaultReader is the read-only surface of the vault engine the gateway serves.
type VaultReader interface {
	NoteToken() common.Address
	Supply() (*big.Int, error)
	TotalValue() (*big.Int, error)
	ValueOfAsset(asset common.Address) (*big.Int, error)
	RegistryList() ([]common.Address, error)
	DeployedAssets() ([]common.Address, error)
}

// Config carries the collaborators the router exposes.
type Config struct {
	Claim ClaimReader
	Vault VaultReader
}

// New builds the HTTP handler for the read-only API.
func New(cfg Config) http.Handler {
	s := &server{claim: cfg.Claim, vault: cfg.Vault}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/perp", func(pr chi.Router) {
		pr.Get("/status", s.perpStatus)
		pr.Get("/registry", s.perpRegistry)
		pr.Get("/asset/{address}", s.perpAsset)
	})
	r.Route("/v1/vault", func(vr chi.Router) {
		vr.Get("/status", s.vaultStatus)
		vr.Get("/registry", s.vaultRegistry)
	})

	return r
}

type server struct {
	claim ClaimReader
	vault VaultReader
}
