package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"emoseum/internal/costs"
	"emoseum/internal/personalization"
	"emoseum/internal/safety"
	"emoseum/internal/signals"
	"emoseum/internal/util"
	"emoseum/pkg/ai"
	"emoseum/pkg/domain"
	"emoseum/pkg/storage"
	"emoseum/pkg/store"
)

// Config holds the machine's tunables, all sourced from configuration.
type Config struct {
	MaxAttempts       int           // regeneration budget for AI-generated content
	Backoff           time.Duration // base backoff, doubled per attempt
	CapabilityTimeout time.Duration // per external call
	MaxConcurrentGens int           // generation calls in flight across all journeys
}

// Machine drives journeys through Moment → Reflection → Defusion → Closure.
// Stages only move forward; every artifact passes the safety gate before its
// stage is considered complete; operations on one journey id are serialized
// and fail fast on contention.
type Machine struct {
	store   store.Store
	objects storage.ObjectStore
	gate    *safety.Gate
	textGen ai.TextGenerator
	imgGen  ai.ImageGenerator
	signals *signals.Ledger
	costs   *costs.Ledger
	engine  *personalization.Engine
	locks   *lockRegistry
	gens    *semaphore.Weighted
	cfg     Config
	logger  *slog.Logger
}

// NewMachine wires the state machine.
func NewMachine(
	s store.Store,
	objects storage.ObjectStore,
	gate *safety.Gate,
	textGen ai.TextGenerator,
	imgGen ai.ImageGenerator,
	sig *signals.Ledger,
	c *costs.Ledger,
	engine *personalization.Engine,
	cfg Config,
	logger *slog.Logger,
) *Machine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrentGens <= 0 {
		cfg.MaxConcurrentGens = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:   s,
		objects: objects,
		gate:    gate,
		textGen: textGen,
		imgGen:  imgGen,
		signals: sig,
		costs:   c,
		engine:  engine,
		locks:   newLockRegistry(),
		gens:    semaphore.NewWeighted(int64(cfg.MaxConcurrentGens)),
		cfg:     cfg,
		logger:  logger,
	}
}

// Start creates a journey in the Moment stage from a diary entry.
func (m *Machine) Start(userID, diaryText string, vad domain.VADScore, emotionKeywords []string) (domain.Journey, error) {
	if strings.TrimSpace(diaryText) == "" {
		return domain.Journey{}, fmt.Errorf("diary text is empty: %w", domain.ErrInvalidInput)
	}
	if !vad.InRange() {
		return domain.Journey{}, fmt.Errorf("vad score outside [%g, %g]: %w",
			domain.VADMin, domain.VADMax, domain.ErrInvalidInput)
	}
	user, ok, err := m.store.GetUser(userID)
	if err != nil {
		return domain.Journey{}, fmt.Errorf("load user: %w", err)
	}
	if !ok || user.Archived {
		return domain.Journey{}, fmt.Errorf("start journey for %s: %w", userID, domain.ErrUnknownUser)
	}

	now := time.Now().UTC()
	j := domain.Journey{
		ID:              util.NewID(),
		UserID:          userID,
		Stage:           domain.StageMoment,
		DiaryText:       diaryText,
		EmotionKeywords: emotionKeywords,
		VAD:             vad,
		PromptStatus:    domain.SafetyPending,
		ImageStatus:     domain.SafetyPending,
		GuestbookStatus: domain.SafetyPending,
		CuratorStatus:   domain.SafetyPending,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.SaveJourney(j); err != nil {
		return domain.Journey{}, fmt.Errorf("save journey: %w", err)
	}
	m.logger.Info("journey started", "journeyId", j.ID, "userId", userID)
	return j, nil
}

// AdvanceToReflection generates the reflection prompt and image, validates
// both, and moves the journey from Moment to Reflection. Transient generation
// failures and safety rejections consume the automatic regeneration budget.
func (m *Machine) AdvanceToReflection(ctx context.Context, journeyID string, copingStyle domain.CopingStyle) (domain.Journey, error) {
	if !domain.ValidCopingStyle(copingStyle) {
		return domain.Journey{}, fmt.Errorf("coping style %q: %w", copingStyle, domain.ErrInvalidInput)
	}
	if !m.locks.acquire(journeyID) {
		return domain.Journey{}, fmt.Errorf("journey %s busy: %w", journeyID, domain.ErrConcurrentModification)
	}
	defer m.locks.release(journeyID)

	j, user, err := m.loadForAdvance(journeyID, domain.StageMoment)
	if err != nil {
		return domain.Journey{}, err
	}

	style, err := m.engine.StyleFor(user)
	if err != nil {
		return domain.Journey{}, err
	}
	genCtx := ai.GenerationContext{
		Diary:       j.DiaryText,
		VAD:         j.VAD,
		Stage:       domain.StageReflection,
		CopingStyle: copingStyle,
	}

	var lastRejection *safety.Decision
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.cfg.Backoff<<(attempt-1)); err != nil {
				return domain.Journey{}, err
			}
		}

		prompt, err := m.generateText(ctx, j.ID, genCtx)
		if err != nil {
			if errors.Is(err, domain.ErrServiceUnavailable) {
				lastErr = err
				continue
			}
			return domain.Journey{}, err
		}

		decision := m.gate.Validate(j.UserID, j.ID, prompt, safety.KindReflectionPrompt)
		if frozen, ferr := m.applyVerdict(&j, &j.PromptStatus, decision); ferr != nil {
			return domain.Journey{}, ferr
		} else if frozen {
			return domain.Journey{}, fmt.Errorf("reflection prompt: %w", domain.ErrEscalated)
		}
		if decision.Verdict == safety.VerdictRejected {
			lastRejection = &decision
			continue
		}

		// the image is validated through the rendered txt2img prompt (base
		// prompt plus style tags), which can carry content the bare prompt
		// does not; a disallowed style profile fails here, not at the prompt
		imagePrompt := ai.ImagePrompt(prompt, style)
		decision = m.gate.Validate(j.UserID, j.ID, imagePrompt, safety.KindImageRef)
		if frozen, ferr := m.applyVerdict(&j, &j.ImageStatus, decision); ferr != nil {
			return domain.Journey{}, ferr
		} else if frozen {
			return domain.Journey{}, fmt.Errorf("reflection image: %w", domain.ErrEscalated)
		}
		if decision.Verdict == safety.VerdictRejected {
			lastRejection = &decision
			continue
		}

		png, err := m.generateImage(ctx, j.ID, prompt, style)
		if err != nil {
			if errors.Is(err, domain.ErrServiceUnavailable) {
				lastErr = err
				continue
			}
			return domain.Journey{}, err
		}

		key := storage.ReflectionKey(j.UserID, j.ID)
		putCtx, cancel := context.WithTimeout(ctx, m.cfg.CapabilityTimeout)
		err = m.objects.PutImage(putCtx, key, png)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("store reflection image: %w", domain.ErrServiceUnavailable)
			continue
		}

		now := time.Now().UTC()
		j.ReflectionPrompt = prompt
		j.PromptStatus = domain.SafetyApproved
		j.ImageKey = key
		j.ImageStatus = domain.SafetyApproved
		j.Stage = domain.StageReflection
		j.ReflectedAt = now
		j.UpdatedAt = now
		if err := m.store.SaveJourney(j); err != nil {
			return domain.Journey{}, fmt.Errorf("save journey: %w", err)
		}
		m.logger.Info("journey advanced", "journeyId", j.ID, "stage", string(j.Stage))
		return j, nil
	}

	if lastRejection != nil {
		return domain.Journey{}, &domain.RejectionError{
			Category:   lastRejection.Category,
			RetryToken: util.NewID(),
		}
	}
	return domain.Journey{}, fmt.Errorf("reflection after %d attempts (%v): %w",
		m.cfg.MaxAttempts, lastErr, domain.ErrGenerationUnavailable)
}

// AdvanceToDefusion attaches the user-authored guestbook entry and moves the
// journey from Reflection to Defusion. User-authored text is never auto
// retried: a rejection returns without state change and the caller resubmits
// edited text as often as needed.
func (m *Machine) AdvanceToDefusion(journeyID, title string, tags []string, text string) (domain.Journey, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(text) == "" {
		return domain.Journey{}, fmt.Errorf("guestbook title and text are required: %w", domain.ErrInvalidInput)
	}
	if !m.locks.acquire(journeyID) {
		return domain.Journey{}, fmt.Errorf("journey %s busy: %w", journeyID, domain.ErrConcurrentModification)
	}
	defer m.locks.release(journeyID)

	j, _, err := m.loadForAdvance(journeyID, domain.StageReflection)
	if err != nil {
		return domain.Journey{}, err
	}

	combined := title + "\n" + strings.Join(tags, " ") + "\n" + text
	decision := m.gate.Validate(j.UserID, j.ID, combined, safety.KindGuestbook)
	if frozen, ferr := m.applyVerdict(&j, &j.GuestbookStatus, decision); ferr != nil {
		return domain.Journey{}, ferr
	} else if frozen {
		return domain.Journey{}, fmt.Errorf("guestbook: %w", domain.ErrEscalated)
	}
	if decision.Verdict == safety.VerdictRejected {
		// no retry token: resubmission of edited text is unbounded
		return domain.Journey{}, &domain.RejectionError{Category: decision.Category}
	}

	now := time.Now().UTC()
	j.GuestbookTitle = title
	j.GuestbookTags = tags
	j.GuestbookText = text
	j.GuestbookStatus = domain.SafetyApproved
	j.Stage = domain.StageDefusion
	j.DefusedAt = now
	j.UpdatedAt = now
	if err := m.store.SaveJourney(j); err != nil {
		return domain.Journey{}, fmt.Errorf("save journey: %w", err)
	}
	m.logger.Info("journey advanced", "journeyId", j.ID, "stage", string(j.Stage))
	return j, nil
}

// AdvanceToClosure generates the curator message from the full journey
// context, validates it, closes the journey, and emits the completion
// signal. Tier eligibility is re-evaluated after every completion.
func (m *Machine) AdvanceToClosure(ctx context.Context, journeyID string) (domain.Journey, error) {
	if !m.locks.acquire(journeyID) {
		return domain.Journey{}, fmt.Errorf("journey %s busy: %w", journeyID, domain.ErrConcurrentModification)
	}
	defer m.locks.release(journeyID)

	j, user, err := m.loadForAdvance(journeyID, domain.StageDefusion)
	if err != nil {
		return domain.Journey{}, err
	}

	genCtx := ai.GenerationContext{
		Diary:       j.DiaryText,
		VAD:         j.VAD,
		Stage:       domain.StageClosure,
		CopingStyle: user.CopingStyle,
		History: []string{
			"reflection prompt: " + j.ReflectionPrompt,
			"guestbook title: " + j.GuestbookTitle,
			"guestbook: " + j.GuestbookText,
		},
	}

	var lastRejection *safety.Decision
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.cfg.Backoff<<(attempt-1)); err != nil {
				return domain.Journey{}, err
			}
		}

		message, err := m.generateText(ctx, j.ID, genCtx)
		if err != nil {
			if errors.Is(err, domain.ErrServiceUnavailable) {
				lastErr = err
				continue
			}
			return domain.Journey{}, err
		}

		decision := m.gate.Validate(j.UserID, j.ID, message, safety.KindCuratorMessage)
		if frozen, ferr := m.applyVerdict(&j, &j.CuratorStatus, decision); ferr != nil {
			return domain.Journey{}, ferr
		} else if frozen {
			return domain.Journey{}, fmt.Errorf("curator message: %w", domain.ErrEscalated)
		}
		if decision.Verdict == safety.VerdictRejected {
			lastRejection = &decision
			continue
		}

		now := time.Now().UTC()
		j.CuratorMessage = message
		j.CuratorStatus = domain.SafetyApproved
		j.Stage = domain.StageClosure
		j.ClosedAt = now
		j.UpdatedAt = now
		if err := m.store.SaveJourney(j); err != nil {
			return domain.Journey{}, fmt.Errorf("save journey: %w", err)
		}
		m.logger.Info("journey closed", "journeyId", j.ID, "userId", j.UserID)

		m.afterClosure(ctx, j.UserID)
		return j, nil
	}

	if lastRejection != nil {
		return domain.Journey{}, &domain.RejectionError{
			Category:   lastRejection.Category,
			RetryToken: util.NewID(),
		}
	}
	return domain.Journey{}, fmt.Errorf("curator message after %d attempts (%v): %w",
		m.cfg.MaxAttempts, lastErr, domain.ErrGenerationUnavailable)
}

// afterClosure records the completion signal and re-evaluates tier
// eligibility. The journey is already closed; failures here are logged, not
// surfaced, so the caller still sees the closure.
func (m *Machine) afterClosure(ctx context.Context, userID string) {
	if _, err := m.signals.Record(userID, domain.SignalJourneyCompleted, 1); err != nil {
		m.logger.Error("record completion signal failed", "userId", userID, "err", err)
		return
	}
	if _, err := m.engine.Evaluate(userID); err != nil {
		m.logger.Error("tier evaluation failed", "userId", userID, "err", err)
		return
	}
	if jobID, requested, err := m.engine.MaybeRequestTraining(ctx, userID); err != nil {
		m.logger.Error("training request failed", "userId", userID, "err", err)
	} else if requested {
		m.logger.Info("training requested", "userId", userID, "jobId", jobID)
	}
}

// loadForAdvance fetches the journey and its owner and checks the stage
// precondition. Escalated journeys are frozen: every further advance returns
// the escalation, never a fresh generation attempt.
func (m *Machine) loadForAdvance(journeyID string, requires domain.Stage) (domain.Journey, domain.User, error) {
	j, ok, err := m.store.GetJourney(journeyID)
	if err != nil {
		return domain.Journey{}, domain.User{}, fmt.Errorf("load journey: %w", err)
	}
	if !ok {
		return domain.Journey{}, domain.User{}, fmt.Errorf("journey %s: %w", journeyID, domain.ErrUnknownJourney)
	}
	if j.Escalated() {
		return domain.Journey{}, domain.User{}, fmt.Errorf("journey %s frozen: %w", journeyID, domain.ErrEscalated)
	}
	if j.Stage != requires {
		return domain.Journey{}, domain.User{}, fmt.Errorf("journey %s at %s, requires %s: %w",
			journeyID, j.Stage, requires, domain.ErrInvalidTransition)
	}
	user, ok, err := m.store.GetUser(j.UserID)
	if err != nil {
		return domain.Journey{}, domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.Journey{}, domain.User{}, fmt.Errorf("user %s: %w", j.UserID, domain.ErrUnknownUser)
	}
	return j, user, nil
}

// applyVerdict maps a gate decision onto an artifact status. Escalations are
// persisted before the call returns so the freeze survives a crash; the
// returned bool reports whether the journey is now frozen.
func (m *Machine) applyVerdict(j *domain.Journey, status *domain.SafetyStatus, d safety.Decision) (bool, error) {
	switch d.Verdict {
	case safety.VerdictEscalated:
		*status = domain.SafetyEscalated
		j.UpdatedAt = time.Now().UTC()
		if err := m.store.SaveJourney(*j); err != nil {
			return true, fmt.Errorf("persist escalation: %w", err)
		}
		return true, nil
	case safety.VerdictRejected:
		*status = domain.SafetyRejected
		return false, nil
	default:
		return false, nil
	}
}

// generateText calls the text capability with a timeout, recording the cost
// of the attempt whether or not it succeeds.
func (m *Machine) generateText(ctx context.Context, journeyID string, genCtx ai.GenerationContext) (string, error) {
	if err := m.gens.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer m.gens.Release(1)
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CapabilityTimeout)
	defer cancel()
	text, err := m.textGen.GenerateText(callCtx, genCtx)
	if cerr := m.costs.Record(journeyID, "generate_text", 1); cerr != nil {
		m.logger.Error("record cost failed", "journeyId", journeyID, "err", cerr)
	}
	return text, err
}

// generateImage mirrors generateText for the image capability.
func (m *Machine) generateImage(ctx context.Context, journeyID, prompt string, style domain.StyleProfile) ([]byte, error) {
	if err := m.gens.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.gens.Release(1)
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CapabilityTimeout)
	defer cancel()
	png, err := m.imgGen.GenerateImage(callCtx, prompt, style)
	if cerr := m.costs.Record(journeyID, "generate_image", 1); cerr != nil {
		m.logger.Error("record cost failed", "journeyId", journeyID, "err", cerr)
	}
	return png, err
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
