package store

import (
	"sync"
	"time"

	"emoseum/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests and local dev.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	journeys map[string]domain.Journey
	order    []string // journey IDs in insertion order
	signals  map[string][]domain.SignalEvent
	personal map[string]domain.PersonalizationState
	costs    map[string][]domain.CostRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		journeys: make(map[string]domain.Journey),
		signals:  make(map[string][]domain.SignalEvent),
		personal: make(map[string]domain.PersonalizationState),
		costs:    make(map[string][]domain.CostRecord),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ArchiveUser flags a user as archived.
func (m *MemoryStore) ArchiveUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.Archived = true
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

// SetUserTier updates the user's personalization tier.
func (m *MemoryStore) SetUserTier(id string, tier domain.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.Tier = tier
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

// SaveJourney stores or replaces a journey and tracks insertion order.
func (m *MemoryStore) SaveJourney(j domain.Journey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.journeys[j.ID]; !exists {
		m.order = append(m.order, j.ID)
	}
	m.journeys[j.ID] = j
	return nil
}

// GetJourney returns a journey by ID.
func (m *MemoryStore) GetJourney(id string) (domain.Journey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.journeys[id]
	return j, ok, nil
}

// ListJourneysByUser returns a user's journeys newest-first.
func (m *MemoryStore) ListJourneysByUser(userID string, q JourneyQuery) ([]domain.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.Journey, 0)
	// insertion order approximates started_at order; walk backwards for newest-first
	for i := len(m.order) - 1; i >= 0; i-- {
		j, ok := m.journeys[m.order[i]]
		if !ok || j.UserID != userID {
			continue
		}
		if !q.From.IsZero() && j.StartedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && j.StartedAt.After(q.To) {
			continue
		}
		matched = append(matched, j)
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []domain.Journey{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// AppendSignal appends one signal event in arrival order.
func (m *MemoryStore) AppendSignal(e domain.SignalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[e.UserID] = append(m.signals[e.UserID], e)
	return nil
}

// ListSignalsByUser returns a copy of a user's events in arrival order.
func (m *MemoryStore) ListSignalsByUser(userID string) ([]domain.SignalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.signals[userID]
	out := make([]domain.SignalEvent, len(events))
	copy(out, events)
	return out, nil
}

// GetPersonalization returns the per-user tier record.
func (m *MemoryStore) GetPersonalization(userID string) (domain.PersonalizationState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.personal[userID]
	return p, ok, nil
}

// SavePersonalization stores or replaces the per-user tier record.
func (m *MemoryStore) SavePersonalization(p domain.PersonalizationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personal[p.UserID] = p
	return nil
}

// AppendCost appends one cost record.
func (m *MemoryStore) AppendCost(c domain.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs[c.OwnerID] = append(m.costs[c.OwnerID], c)
	return nil
}

// ListCostsByOwner returns cost records for an owner inside [from, to].
func (m *MemoryStore) ListCostsByOwner(ownerID string, from, to time.Time) ([]domain.CostRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CostRecord, 0)
	for _, c := range m.costs[ownerID] {
		if !from.IsZero() && c.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && c.CreatedAt.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
