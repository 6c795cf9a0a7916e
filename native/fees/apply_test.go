package fees

import (
	"math/big"
	"testing"
)

func TestApply(t *testing.T) {
	res := Apply(big.NewInt(10_000), 250)
	if res.Fee.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected fee 250, got %s", res.Fee)
	}
	if res.Net.Cmp(big.NewInt(9_750)) != 0 {
		t.Fatalf("expected net 9750, got %s", res.Net)
	}
}

func TestApplyZeroBps(t *testing.T) {
	res := Apply(big.NewInt(500), 0)
	if res.Fee.Sign() != 0 || res.Net.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected passthrough, got fee=%s net=%s", res.Fee, res.Net)
	}
}

func TestApplyFullConsumption(t *testing.T) {
	res := Apply(big.NewInt(500), 10_000)
	if res.Net.Sign() != 0 || res.Fee.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected full consumption, got fee=%s net=%s", res.Fee, res.Net)
	}
}

func TestApplyNilAndNonPositive(t *testing.T) {
	for _, gross := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		res := Apply(gross, 100)
		if res.Fee.Sign() != 0 || res.Net.Sign() != 0 {
			t.Fatalf("expected zero result for gross=%v", gross)
		}
	}
}

func TestApplyRoundsFeeDown(t *testing.T) {
	// 1 bps of 999 rounds to zero fee.
	res := Apply(big.NewInt(999), 1)
	if res.Fee.Sign() != 0 {
		t.Fatalf("expected zero fee, got %s", res.Fee)
	}
	if res.Net.Cmp(big.NewInt(999)) != 0 {
		t.Fatalf("expected net unchanged, got %s", res.Net)
	}
}

func TestApplySignedNegativeRewards(t *testing.T) {
	res := ApplySigned(big.NewInt(10_000), -100)
	if res.Fee.Cmp(big.NewInt(-100)) != 0 {
		t.Fatalf("expected fee -100, got %s", res.Fee)
	}
	if res.Net.Cmp(big.NewInt(10_100)) != 0 {
		t.Fatalf("expected net 10100, got %s", res.Net)
	}
}

func TestApplySignedPositiveMatchesApply(t *testing.T) {
	signed := ApplySigned(big.NewInt(10_000), 250)
	plain := Apply(big.NewInt(10_000), 250)
	if signed.Fee.Cmp(plain.Fee) != 0 || signed.Net.Cmp(plain.Net) != 0 {
		t.Fatalf("expected signed/unsigned parity, got fee=%s net=%s", signed.Fee, signed.Net)
	}
}
