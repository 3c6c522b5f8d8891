package domain

import "time"

// Stage is the position of a journey in the four-step ACT sequence.
type Stage string

const (
	StageMoment     Stage = "moment"
	StageReflection Stage = "reflection"
	StageDefusion   Stage = "defusion"
	StageClosure    Stage = "closure"
)

// next returns the stage that follows s, or "" for the terminal stage.
func (s Stage) Next() Stage {
	switch s {
	case StageMoment:
		return StageReflection
	case StageReflection:
		return StageDefusion
	case StageDefusion:
		return StageClosure
	}
	return ""
}

// SafetyStatus is the validation state of one generated or user-authored artifact.
type SafetyStatus string

const (
	SafetyPending   SafetyStatus = "pending"
	SafetyApproved  SafetyStatus = "approved"
	SafetyRejected  SafetyStatus = "rejected"
	SafetyEscalated SafetyStatus = "escalated"
)

// Tier is a personalization level. Tiers only ever increase for a user.
type Tier int

const (
	TierBaseline  Tier = 1
	TierAdaptive  Tier = 2
	TierFineTuned Tier = 3
)

// CopingStyle classifies how a user tends to process distress.
type CopingStyle string

const (
	CopingAvoidant    CopingStyle = "avoidant"
	CopingConfrontive CopingStyle = "confrontive"
	CopingBalanced    CopingStyle = "balanced"
)

// ValidCopingStyle reports whether s is one of the known styles.
func ValidCopingStyle(s CopingStyle) bool {
	switch s {
	case CopingAvoidant, CopingConfrontive, CopingBalanced:
		return true
	}
	return false
}

// SignalKind identifies a behavioral signal recorded for a user.
type SignalKind string

const (
	SignalPositiveReaction SignalKind = "positive_reaction"
	SignalJourneyCompleted SignalKind = "journey_completed"
	SignalMessageEngaged   SignalKind = "message_engaged"
)

// VAD bounds for each score component.
const (
	VADMin = -1.0
	VADMax = 1.0
)

// VADScore is a valence/arousal/dominance emotional descriptor, supplied by
// the upstream emotion analyzer.
type VADScore struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// InRange reports whether every component is inside [VADMin, VADMax].
func (v VADScore) InRange() bool {
	for _, c := range []float64{v.Valence, v.Arousal, v.Dominance} {
		if c < VADMin || c > VADMax {
			return false
		}
	}
	return true
}

// StyleProfile is a user's visual preference, consumed by image generation.
type StyleProfile struct {
	Style      string  `json:"style"`
	Palette    string  `json:"palette"`
	Complexity float64 `json:"complexity"`
}

type User struct {
	ID          string       `json:"id"`
	Nickname    string       `json:"nickname"`
	Tier        Tier         `json:"tier"`
	CopingStyle CopingStyle  `json:"copingStyle"`
	Style       StyleProfile `json:"style"`
	Archived    bool         `json:"archived"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Journey is one diary entry's lifecycle through the four stages. A journey
// that has reached Closure is immutable except for reaction appends.
type Journey struct {
	ID              string   `json:"id"`
	UserID          string   `json:"userId"`
	Stage           Stage    `json:"stage"`
	DiaryText       string   `json:"diaryText"`
	EmotionKeywords []string `json:"emotionKeywords,omitempty"`
	VAD             VADScore `json:"vad"`

	ReflectionPrompt string       `json:"reflectionPrompt,omitempty"`
	PromptStatus     SafetyStatus `json:"promptStatus"`
	ImageKey         string       `json:"imageKey,omitempty"`
	ImageStatus      SafetyStatus `json:"imageStatus"`

	GuestbookTitle  string       `json:"guestbookTitle,omitempty"`
	GuestbookTags   []string     `json:"guestbookTags,omitempty"`
	GuestbookText   string       `json:"guestbookText,omitempty"`
	GuestbookStatus SafetyStatus `json:"guestbookStatus"`

	CuratorMessage string       `json:"curatorMessage,omitempty"`
	CuratorStatus  SafetyStatus `json:"curatorStatus"`

	Reactions []string `json:"reactions,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	ReflectedAt time.Time `json:"reflectedAt,omitzero"`
	DefusedAt   time.Time `json:"defusedAt,omitzero"`
	ClosedAt    time.Time `json:"closedAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Escalated reports whether any artifact on the journey carries a crisis
// verdict. An escalated journey is frozen for normal advancement.
func (j Journey) Escalated() bool {
	for _, s := range []SafetyStatus{j.PromptStatus, j.ImageStatus, j.GuestbookStatus, j.CuratorStatus} {
		if s == SafetyEscalated {
			return true
		}
	}
	return false
}

// SignalEvent is one append-only behavioral signal. Events are never mutated
// or deleted; summaries are folds over the per-user log.
type SignalEvent struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      SignalKind `json:"kind"`
	Weight    float64    `json:"weight"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SignalSummary is the fold of a user's event log.
type SignalSummary struct {
	PositiveReactions int     `json:"positiveReactions"`
	CompletedJourneys int     `json:"completedJourneys"`
	MessagesEngaged   int     `json:"messagesEngaged"`
	Engagement        float64 `json:"engagement"`
}

// PersonalizationState is the per-user tier record. TrainingJobID is empty
// when no job is outstanding; at most one job is outstanding at any time.
type PersonalizationState struct {
	UserID            string    `json:"userId"`
	Tier              Tier      `json:"tier"`
	TrainingJobID     string    `json:"trainingJobId,omitempty"`
	LastTrainingError string    `json:"lastTrainingError,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CostRecord is one append-only entry for an attempted external call.
// OwnerID is a journey id or training job id.
type CostRecord struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Capability string    `json:"capability"`
	UnitCost   float64   `json:"unitCost"`
	CreatedAt  time.Time `json:"createdAt"`
}
