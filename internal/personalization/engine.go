package personalization

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"emoseum/internal/costs"
	"emoseum/internal/signals"
	"emoseum/pkg/ai"
	"emoseum/pkg/domain"
	"emoseum/pkg/store"
)

// Thresholds are the promotion constants, supplied from configuration.
type Thresholds struct {
	Tier2MinCompletedJourneys int
	Tier2EngagementFloor      float64
	Tier3MinPositiveReactions int
	Tier3MinCompletedJourneys int
}

// Evaluation is the outcome of one eligibility pass.
type Evaluation struct {
	Tier          domain.Tier
	Tier2Eligible bool
	Tier3Eligible bool
	Summary       domain.SignalSummary
}

// AdaptiveParams are the Tier2 generation biases. They are recomputed from
// the signal summary on every read; nothing intermediate is persisted.
type AdaptiveParams struct {
	StyleStrength float64 // 0..1, how hard to push the preferred style
	PaletteWarmth float64 // 0..1, warm-palette bias from reaction ratio
	Complexity    float64 // 0..1, visual density tolerance
}

// Engine owns the per-user tier state machine: Tier1(Baseline) →
// Tier2(Adaptive) → Tier3(FineTuned), monotonic, no automatic demotion.
type Engine struct {
	store      store.Store
	signals    *signals.Ledger
	costs      *costs.Ledger
	trainer    ai.Trainer
	thresholds Thresholds
	logger     *slog.Logger

	userLocks sync.Map // userID -> *sync.Mutex
}

// NewEngine wires the engine. The trainer is the external fine-tune
// capability; at-most-one-in-flight is enforced here, not by the trainer.
func NewEngine(s store.Store, sig *signals.Ledger, c *costs.Ledger, trainer ai.Trainer, th Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      s,
		signals:    sig,
		costs:      c,
		trainer:    trainer,
		thresholds: th,
		logger:     logger,
	}
}

func (e *Engine) lock(userID string) *sync.Mutex {
	v, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Evaluate reads the signal summary and compares it against the thresholds.
// Tier2 needs no training run, so an eligible Tier1 user is promoted here;
// Tier3 promotion only happens in OnTrainingComplete.
func (e *Engine) Evaluate(userID string) (Evaluation, error) {
	summary, err := e.signals.Summarize(userID)
	if err != nil {
		return Evaluation{}, err
	}

	mu := e.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.loadState(userID)
	if err != nil {
		return Evaluation{}, err
	}

	eval := Evaluation{
		Tier:    state.Tier,
		Summary: summary,
		Tier2Eligible: summary.CompletedJourneys >= e.thresholds.Tier2MinCompletedJourneys &&
			summary.Engagement >= e.thresholds.Tier2EngagementFloor,
		Tier3Eligible: summary.PositiveReactions >= e.thresholds.Tier3MinPositiveReactions &&
			summary.CompletedJourneys >= e.thresholds.Tier3MinCompletedJourneys,
	}

	if eval.Tier2Eligible && state.Tier < domain.TierAdaptive {
		state.Tier = domain.TierAdaptive
		state.UpdatedAt = time.Now().UTC()
		if err := e.saveState(state); err != nil {
			return Evaluation{}, err
		}
		eval.Tier = state.Tier
		e.logger.Info("tier promoted", "userId", userID, "tier", int(state.Tier))
	}
	return eval, nil
}

// MaybeRequestTraining submits a training job when the user is Tier3
// eligible and no job is outstanding. Idempotent: an outstanding job makes
// this a no-op that returns the existing job id.
func (e *Engine) MaybeRequestTraining(ctx context.Context, userID string) (string, bool, error) {
	eval, err := e.Evaluate(userID)
	if err != nil {
		return "", false, err
	}

	mu := e.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.loadState(userID)
	if err != nil {
		return "", false, err
	}
	if state.TrainingJobID != "" {
		return state.TrainingJobID, false, nil
	}
	if !eval.Tier3Eligible || state.Tier >= domain.TierFineTuned {
		return "", false, nil
	}

	datasetRef := fmt.Sprintf("datasets/%s/%s", userID, uuid.NewString())
	// cost records are owned by a job id; a failed submission has none, so it
	// is costed under a synthetic attempt id
	attemptID := "training-attempt/" + uuid.NewString()
	jobID, err := e.trainer.SubmitTrainingJob(ctx, userID, datasetRef)
	if cerr := e.costs.Record(orOwner(jobID, attemptID), "submit_training_job", 1); cerr != nil {
		e.logger.Error("record training cost failed", "userId", userID, "err", cerr)
	}
	if err != nil {
		return "", false, fmt.Errorf("submit training job: %w", err)
	}

	state.TrainingJobID = jobID
	state.UpdatedAt = time.Now().UTC()
	if err := e.saveState(state); err != nil {
		return "", false, err
	}
	e.logger.Info("training job submitted", "userId", userID, "jobId", jobID)
	return jobID, true, nil
}

// OnTrainingComplete clears the outstanding job and, on success, promotes to
// Tier3. Failures keep the current tier and are recorded for observability;
// resubmission is a human decision, never automatic.
func (e *Engine) OnTrainingComplete(userID, jobID string, success bool, failureReason string) error {
	mu := e.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.loadState(userID)
	if err != nil {
		return err
	}
	if state.TrainingJobID != jobID {
		e.logger.Warn("stale training completion ignored",
			"userId", userID, "jobId", jobID, "outstanding", state.TrainingJobID)
		return nil
	}

	state.TrainingJobID = ""
	state.UpdatedAt = time.Now().UTC()
	if success {
		state.LastTrainingError = ""
		if state.Tier < domain.TierFineTuned {
			state.Tier = domain.TierFineTuned
		}
	} else {
		state.LastTrainingError = failureReason
		e.logger.Warn("training job failed", "userId", userID, "jobId", jobID, "reason", failureReason)
	}
	if err := e.saveState(state); err != nil {
		return err
	}
	if success {
		e.logger.Info("tier promoted", "userId", userID, "tier", int(state.Tier))
	}
	return nil
}

// StyleFor returns the generation style for a user: the stored preference at
// Tier1, biased by adaptive parameters from Tier2 up.
func (e *Engine) StyleFor(user domain.User) (domain.StyleProfile, error) {
	state, err := func() (domain.PersonalizationState, error) {
		mu := e.lock(user.ID)
		mu.Lock()
		defer mu.Unlock()
		return e.loadState(user.ID)
	}()
	if err != nil {
		return domain.StyleProfile{}, err
	}
	style := user.Style
	if state.Tier < domain.TierAdaptive {
		return style, nil
	}
	summary, err := e.signals.Summarize(user.ID)
	if err != nil {
		return domain.StyleProfile{}, err
	}
	params := DeriveAdaptiveParams(summary)
	style.Complexity = params.Complexity
	if params.PaletteWarmth >= 0.5 && style.Palette == "" {
		style.Palette = "warm"
	}
	return style, nil
}

// AdaptiveParamsFor recomputes the Tier2 biases from the current summary.
func (e *Engine) AdaptiveParamsFor(userID string) (AdaptiveParams, error) {
	summary, err := e.signals.Summarize(userID)
	if err != nil {
		return AdaptiveParams{}, err
	}
	return DeriveAdaptiveParams(summary), nil
}

// DeriveAdaptiveParams maps a signal summary to generation biases. Pure, so
// identical summaries always produce identical biases.
func DeriveAdaptiveParams(s domain.SignalSummary) AdaptiveParams {
	total := s.PositiveReactions + s.CompletedJourneys + s.MessagesEngaged
	if total == 0 {
		return AdaptiveParams{StyleStrength: 0.5, PaletteWarmth: 0.5, Complexity: 0.5}
	}
	reactionRatio := float64(s.PositiveReactions) / float64(total)
	engagementNorm := s.Engagement / (s.Engagement + 10)
	return AdaptiveParams{
		StyleStrength: clamp01(0.3 + 0.7*engagementNorm),
		PaletteWarmth: clamp01(0.25 + 0.75*reactionRatio),
		Complexity:    clamp01(0.2 + 0.6*engagementNorm),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (e *Engine) loadState(userID string) (domain.PersonalizationState, error) {
	_, ok, err := e.store.GetUser(userID)
	if err != nil {
		return domain.PersonalizationState{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.PersonalizationState{}, fmt.Errorf("personalization for %s: %w", userID, domain.ErrUnknownUser)
	}
	state, ok, err := e.store.GetPersonalization(userID)
	if err != nil {
		return domain.PersonalizationState{}, fmt.Errorf("load personalization: %w", err)
	}
	if !ok {
		state = domain.PersonalizationState{
			UserID:    userID,
			Tier:      domain.TierBaseline,
			UpdatedAt: time.Now().UTC(),
		}
	}
	return state, nil
}

func (e *Engine) saveState(state domain.PersonalizationState) error {
	if err := e.store.SavePersonalization(state); err != nil {
		return fmt.Errorf("save personalization: %w", err)
	}
	if err := e.store.SetUserTier(state.UserID, state.Tier); err != nil {
		return fmt.Errorf("sync user tier: %w", err)
	}
	return nil
}

func orOwner(jobID, fallback string) string {
	if jobID != "" {
		return jobID
	}
	return fallback
}
