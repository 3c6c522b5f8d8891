package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"emoseum/internal/costs"
	"emoseum/internal/signals"
	"emoseum/pkg/domain"
	"emoseum/pkg/storage"
	"emoseum/pkg/store"
)

// Reactions that count as positive sentiment toward a curator message.
// Anything else still counts as engagement.
var positiveReactions = map[string]bool{
	"like":     true,
	"heart":    true,
	"moved":    true,
	"grateful": true,
}

// Gallery is the read side of the journey archive plus reaction intake.
type Gallery struct {
	store         store.Store
	objects       storage.ObjectStore
	signals       *signals.Ledger
	costs         *costs.Ledger
	presignExpiry time.Duration
	logger        *slog.Logger
}

// New builds the gallery service.
func New(s store.Store, objects storage.ObjectStore, sig *signals.Ledger, c *costs.Ledger, presignExpiry time.Duration, logger *slog.Logger) *Gallery {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gallery{
		store:         s,
		objects:       objects,
		signals:       sig,
		costs:         c,
		presignExpiry: presignExpiry,
		logger:        logger,
	}
}

// List returns a user's journeys newest-first with optional date bounds and
// offset/limit paging.
func (g *Gallery) List(userID string, q store.JourneyQuery) ([]domain.Journey, error) {
	if _, ok, err := g.store.GetUser(userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("gallery for %s: %w", userID, domain.ErrUnknownUser)
	}
	journeys, err := g.store.ListJourneysByUser(userID, q)
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	return journeys, nil
}

// Get returns one journey and, when its image is approved, a pre-signed URL
// for the reflection image. Unapproved artifacts never get a URL.
func (g *Gallery) Get(ctx context.Context, journeyID string) (domain.Journey, string, error) {
	j, ok, err := g.store.GetJourney(journeyID)
	if err != nil {
		return domain.Journey{}, "", fmt.Errorf("load journey: %w", err)
	}
	if !ok {
		return domain.Journey{}, "", fmt.Errorf("journey %s: %w", journeyID, domain.ErrUnknownJourney)
	}
	if j.ImageKey == "" || j.ImageStatus != domain.SafetyApproved {
		return j, "", nil
	}
	url, err := g.objects.PresignGet(ctx, j.ImageKey, g.presignExpiry)
	if err != nil {
		// the journey itself is still servable
		g.logger.Warn("presign reflection image failed", "journeyId", journeyID, "err", err)
		return j, "", nil
	}
	return j, url, nil
}

// React records a reaction to a closed journey's curator message. Positive
// reactions feed tier promotion; every reaction counts as engagement.
func (g *Gallery) React(journeyID, reaction string) error {
	if reaction == "" {
		return fmt.Errorf("reaction required: %w", domain.ErrInvalidInput)
	}
	j, ok, err := g.store.GetJourney(journeyID)
	if err != nil {
		return fmt.Errorf("load journey: %w", err)
	}
	if !ok {
		return fmt.Errorf("journey %s: %w", journeyID, domain.ErrUnknownJourney)
	}
	if j.Stage != domain.StageClosure {
		return fmt.Errorf("journey %s not closed: %w", journeyID, domain.ErrInvalidTransition)
	}

	j.Reactions = append(j.Reactions, reaction)
	j.UpdatedAt = time.Now().UTC()
	if err := g.store.SaveJourney(j); err != nil {
		return fmt.Errorf("save reaction: %w", err)
	}

	// the reaction is committed; a lost signal only delays tier promotion
	kind := domain.SignalMessageEngaged
	if positiveReactions[reaction] {
		kind = domain.SignalPositiveReaction
	}
	if _, err := g.signals.Record(j.UserID, kind, 1); err != nil {
		g.logger.Error("record reaction signal failed", "journeyId", journeyID, "err", err)
	}
	return nil
}

// UsageSummary sums a journey's external-call costs per capability.
func (g *Gallery) UsageSummary(journeyID string) (map[string]float64, error) {
	if _, ok, err := g.store.GetJourney(journeyID); err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("journey %s: %w", journeyID, domain.ErrUnknownJourney)
	}
	return g.costs.ByCapability(journeyID, time.Time{}, time.Time{})
}
