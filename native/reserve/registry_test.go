package reserve

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRegistryPinsUnderlying(t *testing.T) {
	owner := common.HexToAddress("0xA1")
	underlying := common.HexToAddress("0x01")
	r := NewRegistry(owner, underlying)

	if !r.Contains(underlying) {
		t.Fatal("expected underlying registered from construction")
	}
	if r.Unregister(underlying) {
		t.Fatal("expected underlying to be irremovable")
	}
	if got := r.List()[0]; got != underlying {
		t.Fatalf("expected underlying at index zero, got %s", got.Hex())
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(common.HexToAddress("0xA1"), common.HexToAddress("0x01"))
	asset := common.HexToAddress("0x02")

	if !r.Register(asset) {
		t.Fatal("expected first registration to add")
	}
	if r.Register(asset) {
		t.Fatal("expected duplicate registration to be a no-op")
	}
	if r.Len() != 2 {
		t.Fatalf("expected two entries, got %d", r.Len())
	}

	if !r.Unregister(asset) {
		t.Fatal("expected unregister to remove")
	}
	if r.Unregister(asset) {
		t.Fatal("expected second unregister to be a no-op")
	}
	if r.Len() != 1 {
		t.Fatalf("expected one entry, got %d", r.Len())
	}
}

func TestNewestFirstOrder(t *testing.T) {
	underlying := common.HexToAddress("0x01")
	r := NewRegistry(common.HexToAddress("0xA1"), underlying)
	a := common.HexToAddress("0x02")
	b := common.HexToAddress("0x03")
	r.Register(a)
	r.Register(b)

	order := r.NewestFirst()
	if len(order) != 3 {
		t.Fatalf("expected three entries, got %d", len(order))
	}
	if order[0] != b || order[1] != a || order[2] != underlying {
		t.Fatalf("expected [b a underlying], got %v", order)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewRegistry(common.HexToAddress("0xA1"), common.HexToAddress("0x01"))
	r.Register(common.HexToAddress("0x02"))

	c := r.Clone()
	c.Register(common.HexToAddress("0x03"))
	if r.Len() != 2 {
		t.Fatalf("expected original unchanged, got %d entries", r.Len())
	}
	if c.Len() != 3 {
		t.Fatalf("expected clone grown to 3, got %d", c.Len())
	}
}
