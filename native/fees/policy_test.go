package fees

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewFlatValidatesRanges(t *testing.T) {
	collector := common.HexToAddress("0xFE")
	if _, err := NewFlat(10_001, 0, 0, 0, 5000, collector); err == nil {
		t.Fatal("expected error for mint bps above scale")
	}
	if _, err := NewFlat(0, 0, 10_001, 0, 5000, collector); err == nil {
		t.Fatal("expected error for rollover bps above scale")
	}
	if _, err := NewFlat(0, 0, -10_001, 0, 5000, collector); err == nil {
		t.Fatal("expected error for rollover bps below scale")
	}
	if _, err := NewFlat(25, 25, -50, 1000, 5000, collector); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}
}

func TestFlatRebalanceAmountSign(t *testing.T) {
	policy, err := NewFlat(0, 0, 0, 0, 5000, common.Address{})
	if err != nil {
		t.Fatalf("new flat: %v", err)
	}

	// Claim at exactly half of total value: no move.
	amount := policy.RebalanceAmount(big.NewInt(500), big.NewInt(500), nil)
	if amount.Sign() != 0 {
		t.Fatalf("expected balanced, got %s", amount)
	}

	// Claim over-weighted: positive surplus.
	amount = policy.RebalanceAmount(big.NewInt(800), big.NewInt(200), nil)
	if amount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected surplus 300, got %s", amount)
	}

	// Claim under-backed: negative deficit.
	amount = policy.RebalanceAmount(big.NewInt(200), big.NewInt(800), nil)
	if amount.Cmp(big.NewInt(-300)) != 0 {
		t.Fatalf("expected deficit -300, got %s", amount)
	}
}

func TestFlatRebalanceAmountNilValues(t *testing.T) {
	policy, err := NewFlat(0, 0, 0, 0, 5000, common.Address{})
	if err != nil {
		t.Fatalf("new flat: %v", err)
	}
	if amount := policy.RebalanceAmount(nil, nil, nil); amount.Sign() != 0 {
		t.Fatalf("expected zero for empty system, got %s", amount)
	}
}
