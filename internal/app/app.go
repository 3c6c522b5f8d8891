package app

import (
	"fmt"
	"strings"
	"time"

	"emoseum/internal/costs"
	"emoseum/internal/gallery"
	"emoseum/internal/journey"
	"emoseum/internal/personalization"
	"emoseum/internal/signals"
	"emoseum/internal/util"
	"emoseum/pkg/domain"
	"emoseum/pkg/store"
)

// App bundles the core services the transport layer mounts. The HTTP surface
// itself lives outside this module.
type App struct {
	Machine *journey.Machine
	Gallery *gallery.Gallery
	Engine  *personalization.Engine
	Signals *signals.Ledger
	Costs   *costs.Ledger

	store store.Store
}

// New builds the facade over already-wired services.
func New(s store.Store, m *journey.Machine, g *gallery.Gallery, e *personalization.Engine, sig *signals.Ledger, c *costs.Ledger) *App {
	return &App{
		Machine: m,
		Gallery: g,
		Engine:  e,
		Signals: sig,
		Costs:   c,
		store:   s,
	}
}

// Onboard creates a user at Tier1 with the given coping style and visual
// preference.
func (a *App) Onboard(nickname string, coping domain.CopingStyle, style domain.StyleProfile) (domain.User, error) {
	if strings.TrimSpace(nickname) == "" {
		return domain.User{}, fmt.Errorf("nickname required: %w", domain.ErrInvalidInput)
	}
	if !domain.ValidCopingStyle(coping) {
		return domain.User{}, fmt.Errorf("coping style %q: %w", coping, domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:          util.NewID(),
		Nickname:    nickname,
		Tier:        domain.TierBaseline,
		CopingStyle: coping,
		Style:       style,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Archive flags a user as archived. Users are never deleted; their gallery
// stays readable.
func (a *App) Archive(userID string) error {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return fmt.Errorf("load user: %w", err)
	} else if !ok {
		return fmt.Errorf("archive %s: %w", userID, domain.ErrUnknownUser)
	}
	return a.store.ArchiveUser(userID)
}
