package costs

import (
	"fmt"
	"time"

	"emoseum/internal/util"
	"emoseum/pkg/domain"
	"emoseum/pkg/store"
)

// Ledger is the append-only external-call cost log. Every attempted
// capability call gets a record, success or failure, keyed by the owning
// journey or training job.
type Ledger struct {
	store store.Store
}

// NewLedger builds a Ledger over the given store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Record appends one cost entry. Pure append, no business logic.
func (l *Ledger) Record(ownerID, capability string, unitCost float64) error {
	rec := domain.CostRecord{
		ID:         util.NewID(),
		OwnerID:    ownerID,
		Capability: capability,
		UnitCost:   unitCost,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.store.AppendCost(rec); err != nil {
		return fmt.Errorf("append cost: %w", err)
	}
	return nil
}

// Total sums an owner's unit costs inside [from, to]. Zero bounds are open.
func (l *Ledger) Total(ownerID string, from, to time.Time) (float64, error) {
	records, err := l.store.ListCostsByOwner(ownerID, from, to)
	if err != nil {
		return 0, fmt.Errorf("list costs: %w", err)
	}
	var total float64
	for _, r := range records {
		total += r.UnitCost
	}
	return total, nil
}

// ByCapability sums an owner's unit costs per capability inside [from, to].
func (l *Ledger) ByCapability(ownerID string, from, to time.Time) (map[string]float64, error) {
	records, err := l.store.ListCostsByOwner(ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list costs: %w", err)
	}
	out := make(map[string]float64, 4)
	for _, r := range records {
		out[r.Capability] += r.UnitCost
	}
	return out, nil
}
