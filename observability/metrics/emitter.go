package metrics

import "perpvault/core/events"

// Emitter bridges engine events onto the prometheus collectors. It satisfies
// the events.Emitter interface and ignores event types with no counter.
type Emitter struct {
	metrics *VaultMetrics
}

// NewEmitter returns an emitter feeding the shared collectors.
func NewEmitter() *Emitter {
	return &Emitter{metrics: Vault()}
}

// Emit implements the events.Emitter interface.
func (e *Emitter) Emit(ev events.Event) {
	if e == nil {
		return
	}
	switch ev.(type) {
	case events.ClaimMinted:
		e.metrics.ObserveDeposit("perp")
	case events.ClaimRedeemed:
		e.metrics.ObserveRedeem("perp")
	case events.NoteMinted:
		e.metrics.ObserveDeposit("vault")
	case events.NoteRedeemed:
		e.metrics.ObserveRedeem("vault")
	case events.RolloverExecuted:
		e.metrics.ObserveRollover()
	case events.VaultMelded:
		e.metrics.ObserveMeld()
	}
}
