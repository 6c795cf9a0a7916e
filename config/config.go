package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`

	Tokens TokensConfig `toml:"tokens"`
	Bond   BondConfig   `toml:"bond"`
	Perp   PerpConfig   `toml:"perp"`
	Vault  VaultConfig  `toml:"vault"`
	Fees   FeesConfig   `toml:"fees"`
	Keeper KeeperConfig `toml:"keeper"`
}

// TokensConfig names the three token identities the system is built around.
type TokensConfig struct {
	Underlying string `toml:"Underlying"`
	ClaimToken string `toml:"ClaimToken"`
	VaultNote  string `toml:"VaultNote"`
}

// BondConfig parameterises the issuer template.
type BondConfig struct {
	DurationSec   int64    `toml:"DurationSec"`
	TrancheRatios []uint64 `toml:"TrancheRatios"`
	IssueEverySec int64    `toml:"IssueEverySec"`
}

// PerpConfig parameterises the claim token engine.
type PerpConfig struct {
	ToleranceMinSec      int64  `toml:"ToleranceMinSec"`
	ToleranceMaxSec      int64  `toml:"ToleranceMaxSec"`
	MaxSupplyWei         string `toml:"MaxSupplyWei"`
	MaxMintPerTrancheWei string `toml:"MaxMintPerTrancheWei"`
}

// VaultConfig parameterises the vault engine.
type VaultConfig struct {
	MinDeploymentWei string `toml:"MinDeploymentWei"`
	RebalanceFreqSec int64  `toml:"RebalanceFreqSec"`
	MeldMaxFeeBps    uint64 `toml:"MeldMaxFeeBps"`
}

// FeesConfig parameterises the default flat fee policy.
type FeesConfig struct {
	MintFeeBps           uint64 `toml:"MintFeeBps"`
	BurnFeeBps           uint64 `toml:"BurnFeeBps"`
	RolloverFeeBps       int64  `toml:"RolloverFeeBps"`
	ProtocolShareBps     uint64 `toml:"ProtocolShareBps"`
	TargetClaimRatioBps  uint64 `toml:"TargetClaimRatioBps"`
	ProtocolFeeCollector string `toml:"ProtocolFeeCollector"`
}

// KeeperConfig drives the daemon's periodic maintenance loop.
type KeeperConfig struct {
	UpdateStateIntervalSec int64 `toml:"UpdateStateIntervalSec"`
	RecoverIntervalSec     int64 `toml:"RecoverIntervalSec"`
	RebalanceIntervalSec   int64 `toml:"RebalanceIntervalSec"`
}

// Load reads the configuration at the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8681"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./perpvault-data"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Bond.DurationSec == 0 {
		cfg.Bond.DurationSec = 28 * 24 * 3600
	}
	if len(cfg.Bond.TrancheRatios) == 0 {
		cfg.Bond.TrancheRatios = []uint64{200, 800}
	}
	if cfg.Bond.IssueEverySec == 0 {
		cfg.Bond.IssueEverySec = 7 * 24 * 3600
	}
	if cfg.Perp.ToleranceMaxSec == 0 {
		cfg.Perp.ToleranceMaxSec = cfg.Bond.DurationSec
	}
	if cfg.Vault.RebalanceFreqSec == 0 {
		cfg.Vault.RebalanceFreqSec = 24 * 3600
	}
	if cfg.Fees.TargetClaimRatioBps == 0 {
		cfg.Fees.TargetClaimRatioBps = 5000
	}
	if cfg.Keeper.UpdateStateIntervalSec == 0 {
		cfg.Keeper.UpdateStateIntervalSec = 3600
	}
	if cfg.Keeper.RecoverIntervalSec == 0 {
		cfg.Keeper.RecoverIntervalSec = 3600
	}
	if cfg.Keeper.RebalanceIntervalSec == 0 {
		cfg.Keeper.RebalanceIntervalSec = cfg.Vault.RebalanceFreqSec
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}
