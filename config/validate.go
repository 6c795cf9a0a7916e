package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/native/bond"
	"perpvault/native/fees"
)

// Validate rejects configurations the engines would refuse at runtime.
func (c *Config) Validate() error {
	if c.Tokens.Underlying != "" && !common.IsHexAddress(c.Tokens.Underlying) {
		return fmt.Errorf("config: tokens.Underlying %q is not a hex address", c.Tokens.Underlying)
	}
	if c.Tokens.ClaimToken != "" && !common.IsHexAddress(c.Tokens.ClaimToken) {
		return fmt.Errorf("config: tokens.ClaimToken %q is not a hex address", c.Tokens.ClaimToken)
	}
	if c.Tokens.VaultNote != "" && !common.IsHexAddress(c.Tokens.VaultNote) {
		return fmt.Errorf("config: tokens.VaultNote %q is not a hex address", c.Tokens.VaultNote)
	}
	if c.Bond.DurationSec <= 0 {
		return fmt.Errorf("config: bond.DurationSec must be positive")
	}
	var ratioSum uint64
	for _, r := range c.Bond.TrancheRatios {
		ratioSum += r
	}
	if ratioSum != bond.TrancheRatioGranularity {
		return fmt.Errorf("config: bond.TrancheRatios must sum to %d, got %d", bond.TrancheRatioGranularity, ratioSum)
	}
	if c.Perp.ToleranceMinSec < 0 || c.Perp.ToleranceMaxSec < c.Perp.ToleranceMinSec {
		return fmt.Errorf("config: perp tolerance window [%d, %d] is not ordered", c.Perp.ToleranceMinSec, c.Perp.ToleranceMaxSec)
	}
	if _, err := parseWei(c.Perp.MaxSupplyWei, "perp.MaxSupplyWei"); err != nil {
		return err
	}
	if _, err := parseWei(c.Perp.MaxMintPerTrancheWei, "perp.MaxMintPerTrancheWei"); err != nil {
		return err
	}
	if _, err := parseWei(c.Vault.MinDeploymentWei, "vault.MinDeploymentWei"); err != nil {
		return err
	}
	if c.Vault.RebalanceFreqSec < 0 {
		return fmt.Errorf("config: vault.RebalanceFreqSec must not be negative")
	}
	for name, bps := range map[string]uint64{
		"vault.MeldMaxFeeBps":      c.Vault.MeldMaxFeeBps,
		"fees.MintFeeBps":          c.Fees.MintFeeBps,
		"fees.BurnFeeBps":          c.Fees.BurnFeeBps,
		"fees.ProtocolShareBps":    c.Fees.ProtocolShareBps,
		"fees.TargetClaimRatioBps": c.Fees.TargetClaimRatioBps,
	} {
		if bps > fees.BpsDenominator {
			return fmt.Errorf("config: %s %d exceeds %d", name, bps, fees.BpsDenominator)
		}
	}
	if c.Fees.RolloverFeeBps > int64(fees.BpsDenominator) || c.Fees.RolloverFeeBps < -int64(fees.BpsDenominator) {
		return fmt.Errorf("config: fees.RolloverFeeBps %d out of range", c.Fees.RolloverFeeBps)
	}
	if c.Fees.ProtocolFeeCollector != "" && !common.IsHexAddress(c.Fees.ProtocolFeeCollector) {
		return fmt.Errorf("config: fees.ProtocolFeeCollector %q is not a hex address", c.Fees.ProtocolFeeCollector)
	}
	return nil
}

// parseWei accepts an empty string as nil.
func parseWei(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: %s %q is not a non-negative decimal amount", field, s)
	}
	return v, nil
}

// ParseWei exposes the amount parser for wiring code.
func ParseWei(s, field string) (*big.Int, error) { return parseWei(s, field) }
