package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/config"
	"perpvault/gateway"
	"perpvault/native/bond"
	nativecommon "perpvault/native/common"
	"perpvault/native/fees"
	"perpvault/native/perp"
	"perpvault/native/pricing"
	"perpvault/native/vault"
	"perpvault/observability/logging"
	"perpvault/observability/metrics"
	"perpvault/services/keeper"
	"perpvault/storage/state"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("perpvaultd", "").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("perpvaultd", cfg.Env)

	db, err := state.OpenLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := state.NewStore(db)

	underlying := common.HexToAddress(cfg.Tokens.Underlying)
	claimToken := common.HexToAddress(cfg.Tokens.ClaimToken)
	vaultNote := common.HexToAddress(cfg.Tokens.VaultNote)
	collector := common.HexToAddress(cfg.Fees.ProtocolFeeCollector)

	issuer, err := bond.NewIssuer(underlying, cfg.Bond.DurationSec, cfg.Bond.TrancheRatios)
	if err != nil {
		logger.Error("configure issuer", "error", err)
		os.Exit(1)
	}
	issuer.SetState(store)

	bonds := bond.NewEngine()
	bonds.SetState(store)

	prices := pricing.NewWaterfall(underlying)
	prices.SetState(store)

	feePolicy, err := fees.NewFlat(
		cfg.Fees.MintFeeBps,
		cfg.Fees.BurnFeeBps,
		cfg.Fees.RolloverFeeBps,
		cfg.Fees.ProtocolShareBps,
		cfg.Fees.TargetClaimRatioBps,
		collector,
	)
	if err != nil {
		logger.Error("configure fee policy", "error", err)
		os.Exit(1)
	}

	pauses := nativecommon.NewPauses()
	emitter := metrics.NewEmitter()
	issuer.SetEmitter(emitter)
	bonds.SetEmitter(emitter)

	claim := perp.NewEngine(claimToken, underlying)
	claim.SetState(store)
	claim.SetEmitter(emitter)
	claim.SetPauses(pauses)
	claim.SetIssuer(issuer)
	claim.SetBondController(bonds)
	claim.SetPricing(prices)
	claim.SetFeePolicy(feePolicy)
	claim.SetVault(vaultNote)
	claim.SetTolerance(cfg.Perp.ToleranceMinSec, cfg.Perp.ToleranceMaxSec)
	if limit, err := config.ParseWei(cfg.Perp.MaxSupplyWei, "perp.MaxSupplyWei"); err == nil && limit != nil {
		claim.SetMaxSupply(limit)
	}
	if limit, err := config.ParseWei(cfg.Perp.MaxMintPerTrancheWei, "perp.MaxMintPerTrancheWei"); err == nil && limit != nil {
		claim.SetMaxMintPerTranche(limit)
	}

	vlt := vault.NewEngine(vaultNote, underlying)
	vlt.SetState(store)
	vlt.SetEmitter(emitter)
	vlt.SetPauses(pauses)
	vlt.SetClaimToken(claim)
	vlt.SetBondController(bonds)
	vlt.SetPricing(prices)
	vlt.SetFeePolicy(feePolicy)
	vlt.SetRebalanceFreq(cfg.Vault.RebalanceFreqSec)
	vlt.SetMeldMaxFeeBps(cfg.Vault.MeldMaxFeeBps)
	if min, err := config.ParseWei(cfg.Vault.MinDeploymentWei, "vault.MinDeploymentWei"); err == nil && min != nil {
		vlt.SetMinDeployment(min)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maintainer := keeper.New(keeper.Config{
		IssueInterval:       time.Duration(cfg.Bond.IssueEverySec) * time.Second,
		UpdateStateInterval: time.Duration(cfg.Keeper.UpdateStateIntervalSec) * time.Second,
		RecoverInterval:     time.Duration(cfg.Keeper.RecoverIntervalSec) * time.Second,
		RebalanceInterval:   time.Duration(cfg.Keeper.RebalanceIntervalSec) * time.Second,
	}, issuer, claim, vlt, logger)
	go maintainer.Run(ctx)

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      gateway.New(gateway.Config{Claim: claim, Vault: vlt}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen and serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
