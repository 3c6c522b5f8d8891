package store

import (
	"time"

	"emoseum/pkg/domain"
)

// JourneyQuery filters per-user gallery reads. Zero time bounds are open.
type JourneyQuery struct {
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

// Store defines persistence for users, journeys, signals, personalization
// state, and cost records. Signal and cost tables are append-only: there is
// no update or delete path for them.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUser(id string) (domain.User, bool, error)
	ArchiveUser(id string) error
	SetUserTier(id string, tier domain.Tier) error

	// journeys
	SaveJourney(domain.Journey) error
	GetJourney(id string) (domain.Journey, bool, error)
	ListJourneysByUser(userID string, q JourneyQuery) ([]domain.Journey, error)

	// signal events (append-only)
	AppendSignal(domain.SignalEvent) error
	ListSignalsByUser(userID string) ([]domain.SignalEvent, error)

	// personalization
	GetPersonalization(userID string) (domain.PersonalizationState, bool, error)
	SavePersonalization(domain.PersonalizationState) error

	// cost records (append-only)
	AppendCost(domain.CostRecord) error
	ListCostsByOwner(ownerID string, from, to time.Time) ([]domain.CostRecord, error)
}
