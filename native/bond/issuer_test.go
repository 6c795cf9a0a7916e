package bond

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewIssuerValidatesTemplate(t *testing.T) {
	collateral := common.HexToAddress("0x01")
	if _, err := NewIssuer(collateral, 0, []uint64{200, 800}); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if _, err := NewIssuer(collateral, 100, []uint64{200, 700}); err == nil {
		t.Fatal("expected error for ratios not summing to granularity")
	}
	if _, err := NewIssuer(collateral, 100, []uint64{0, 1000}); err == nil {
		t.Fatal("expected error for zero ratio class")
	}
	if _, err := NewIssuer(collateral, 100, nil); err == nil {
		t.Fatal("expected error for empty ratios")
	}
	if _, err := NewIssuer(collateral, 100, []uint64{200, 800}); err != nil {
		t.Fatalf("expected valid template, got %v", err)
	}
}

func TestIssueSequence(t *testing.T) {
	state := newMockState()
	issuer, err := NewIssuer(common.HexToAddress("0x01"), 100, []uint64{200, 800})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	issuer.SetState(state)
	issuer.SetNow(func() int64 { return 50 })

	if _, err := issuer.Latest(); !errors.Is(err, ErrNoBondIssued) {
		t.Fatalf("expected ErrNoBondIssued before first issuance, got %v", err)
	}

	first, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first.Maturity != 150 {
		t.Fatalf("expected maturity 150, got %d", first.Maturity)
	}
	if len(first.Classes) != 2 {
		t.Fatalf("expected two classes, got %d", len(first.Classes))
	}

	second, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct bond identities per sequence")
	}

	latest, err := issuer.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("expected latest %s, got %s", second.ID.Hex(), latest.ID.Hex())
	}

	ok, err := issuer.IsInstance(first.ID)
	if err != nil || !ok {
		t.Fatalf("expected first bond recognized, ok=%t err=%v", ok, err)
	}
	ok, err = issuer.IsInstance(common.HexToAddress("0xdead"))
	if err != nil || ok {
		t.Fatalf("expected unknown identity rejected, ok=%t err=%v", ok, err)
	}

	bondID, ok, err := issuer.TrancheBond(second.Classes[1].Token)
	if err != nil || !ok || bondID != second.ID {
		t.Fatalf("expected tranche mapped to bond, ok=%t err=%v", ok, err)
	}
}
