package signals

import (
	"fmt"
	"time"

	"emoseum/internal/util"
	"emoseum/pkg/domain"
	"emoseum/pkg/store"
)

// Ledger is the append-only behavioral signal log. Summaries are pure folds
// over the per-user event list, so promotion decisions are reproducible from
// the log alone.
type Ledger struct {
	store store.Store
}

// NewLedger builds a Ledger over the given store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Record appends one event for the user. Weight <= 0 defaults to 1.
func (l *Ledger) Record(userID string, kind domain.SignalKind, weight float64) (domain.SignalEvent, error) {
	_, ok, err := l.store.GetUser(userID)
	if err != nil {
		return domain.SignalEvent{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.SignalEvent{}, fmt.Errorf("record signal for %s: %w", userID, domain.ErrUnknownUser)
	}
	if weight <= 0 {
		weight = 1
	}
	event := domain.SignalEvent{
		ID:        util.NewID(),
		UserID:    userID,
		Kind:      kind,
		Weight:    weight,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.AppendSignal(event); err != nil {
		return domain.SignalEvent{}, fmt.Errorf("append signal: %w", err)
	}
	return event, nil
}

// Summarize folds the user's event log into per-kind counts and the weighted
// engagement score.
func (l *Ledger) Summarize(userID string) (domain.SignalSummary, error) {
	_, ok, err := l.store.GetUser(userID)
	if err != nil {
		return domain.SignalSummary{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.SignalSummary{}, fmt.Errorf("summarize %s: %w", userID, domain.ErrUnknownUser)
	}
	events, err := l.store.ListSignalsByUser(userID)
	if err != nil {
		return domain.SignalSummary{}, fmt.Errorf("list signals: %w", err)
	}
	return Fold(events), nil
}

// Fold reduces an event list to its summary. Pure: same events in, same
// summary out, regardless of when it runs.
func Fold(events []domain.SignalEvent) domain.SignalSummary {
	var s domain.SignalSummary
	for _, e := range events {
		switch e.Kind {
		case domain.SignalPositiveReaction:
			s.PositiveReactions++
		case domain.SignalJourneyCompleted:
			s.CompletedJourneys++
		case domain.SignalMessageEngaged:
			s.MessagesEngaged++
		}
		s.Engagement += e.Weight
	}
	return s
}
