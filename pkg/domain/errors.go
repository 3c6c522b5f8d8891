package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the core. Callers branch with errors.Is; the
// API layer maps these onto user-facing responses.
var (
	// ErrInvalidInput indicates malformed caller input, rejected before any
	// external call is attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates a transient external-capability failure
	// that survived the local retry budget.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrGenerationUnavailable indicates the automatic regeneration budget for
	// AI-generated content was exhausted without an approved artifact.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrContentRejected is the safety gate's rejection verdict. Wrapped by
	// RejectionError, which carries the categorical reason and retry token.
	ErrContentRejected = errors.New("content rejected")

	// ErrEscalated is the safety gate's crisis verdict. Fatal to the artifact
	// and to the journey stage it was destined for; never retried.
	ErrEscalated = errors.New("content escalated for review")

	// ErrConcurrentModification indicates a second in-flight operation on the
	// same journey or personalization record. The caller retries the whole
	// operation.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidTransition indicates the journey is not in the stage the
	// requested advance requires.
	ErrInvalidTransition = errors.New("invalid stage transition")

	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownJourney = errors.New("unknown journey")

	// ErrInsufficientData indicates training prerequisites were not met even
	// though thresholds passed (for example a malformed dataset).
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrConfiguration indicates missing or invalid configuration. Fatal at
	// startup, never returned per-request.
	ErrConfiguration = errors.New("invalid configuration")
)

// RejectionError carries the categorical reason for a safety rejection and a
// token the caller may present to retry. The category is coarse; raw rule
// text never crosses the boundary.
type RejectionError struct {
	Category   string
	RetryToken string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("content rejected: %s", e.Category)
}

func (e *RejectionError) Unwrap() error { return ErrContentRejected }
