package ai

import (
	"context"
	"errors"

	"emoseum/pkg/domain"
)

// ErrInvalidContext indicates the generation backend refused the request
// payload itself (as opposed to being unavailable). Not retryable.
var ErrInvalidContext = errors.New("invalid generation context")

// GenerationContext carries journey context into text generation.
type GenerationContext struct {
	Diary       string
	VAD         domain.VADScore
	Stage       domain.Stage
	CopingStyle domain.CopingStyle
	History     []string
}

// TextGenerator produces stage-appropriate therapeutic text: a reflection
// image prompt at Reflection, a curator message at Closure.
type TextGenerator interface {
	GenerateText(ctx context.Context, genCtx GenerationContext) (string, error)
}

// ImageGenerator renders a reflection image for an approved prompt. The
// returned bytes are PNG; the caller owns persistence.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, style domain.StyleProfile) ([]byte, error)
}

// Trainer submits a fine-tuning job for a user's accumulated dataset and
// returns the job id. The at-most-one-in-flight rule is enforced by the
// caller, not here.
type Trainer interface {
	SubmitTrainingJob(ctx context.Context, userID, datasetRef string) (string, error)
}
