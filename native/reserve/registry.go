package reserve

import (
	"github.com/ethereum/go-ethereum/common"
)

// Registry is an ordered, de-duplicated list of backing-token identities for
// a single holder. The underlying entry is pinned at index zero and is never
// removed; every other entry is meant to exist only while the holder's
// tracked balance is nonzero. Two independent instances exist in the system,
// one per holder, and entries move between them only via explicit ledger
// transfers followed by registration on the receiving side.
type Registry struct {
	// Owner is the ledger account whose balances the registry tracks.
	Owner common.Address
	// Underlying is the denominator asset, always present.
	Underlying common.Address
	// Entries lists the registered assets in registration order, with the
	// underlying first.
	Entries []common.Address
}

// NewRegistry constructs a registry seeded with the pinned underlying entry.
func NewRegistry(owner, underlying common.Address) *Registry {
	return &Registry{
		Owner:      owner,
		Underlying: underlying,
		Entries:    []common.Address{underlying},
	}
}

// Contains reports whether the asset is currently registered.
func (r *Registry) Contains(asset common.Address) bool {
	if r == nil {
		return false
	}
	for _, entry := range r.Entries {
		if entry == asset {
			return true
		}
	}
	return false
}

// Register appends the asset if absent and reports whether it was added.
// Recognition and balance preconditions are enforced by the owning engine.
func (r *Registry) Register(asset common.Address) bool {
	if r == nil || r.Contains(asset) {
		return false
	}
	r.Entries = append(r.Entries, asset)
	return true
}

// Unregister removes the asset and reports whether it was present. The
// underlying entry cannot be removed.
func (r *Registry) Unregister(asset common.Address) bool {
	if r == nil || asset == r.Underlying {
		return false
	}
	for i, entry := range r.Entries {
		if entry == asset {
			r.Entries = append(r.Entries[:i], r.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the entries in registration order.
func (r *Registry) List() []common.Address {
	if r == nil {
		return nil
	}
	return append([]common.Address(nil), r.Entries...)
}

// NewestFirst returns a copy of the entries ordered most-recently-registered
// first, leaving the underlying last. This is the traversal order used when
// walking a reserve during rollover and deployment; it is a documented
// tie-break, not a correctness requirement.
func (r *Registry) NewestFirst() []common.Address {
	if r == nil {
		return nil
	}
	out := make([]common.Address, 0, len(r.Entries))
	for i := len(r.Entries) - 1; i >= 0; i-- {
		out = append(out, r.Entries[i])
	}
	return out
}

// Len returns the number of registered entries, underlying included.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Entries)
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	return &Registry{
		Owner:      r.Owner,
		Underlying: r.Underlying,
		Entries:    append([]common.Address(nil), r.Entries...),
	}
}
