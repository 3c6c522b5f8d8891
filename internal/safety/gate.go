package safety

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"emoseum/pkg/domain"
)

// Severity classifies a matched rule. Crisis always wins over unsafe.
type Severity string

const (
	SeverityCrisis Severity = "crisis"
	SeverityUnsafe Severity = "unsafe"
)

// ContentKind identifies what is being validated.
type ContentKind string

const (
	KindReflectionPrompt ContentKind = "reflection_prompt"
	KindImageRef         ContentKind = "image_ref"
	KindGuestbook        ContentKind = "guestbook"
	KindCuratorMessage   ContentKind = "curator_message"
)

// Verdict is the gate's decision for one artifact.
type Verdict string

const (
	VerdictApproved  Verdict = "approved"
	VerdictRejected  Verdict = "rejected"
	VerdictEscalated Verdict = "escalated"
)

// Decision is the full gate output. Category is the only reason detail that
// may cross the external boundary; RuleID stays internal.
type Decision struct {
	Verdict  Verdict
	RuleID   string
	Category string
}

// Rule is one operator-tunable safety rule.
type Rule struct {
	ID       string   `yaml:"id"`
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity"`
	Category string   `yaml:"category"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// EscalationRecord is what human review receives for a crisis match.
type EscalationRecord struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	JourneyID string      `json:"journeyId"`
	Kind      ContentKind `json:"kind"`
	RuleID    string      `json:"ruleId"`
	Category  string      `json:"category"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Notifier delivers escalation records to the human-review collaborator.
type Notifier interface {
	Notify(rec EscalationRecord) error
}

// Gate validates generated and user-authored content against the rule table.
// It never mutates journey state; callers act on the decision.
type Gate struct {
	rules    []compiledRule
	notifier Notifier
	logger   *slog.Logger
}

// LoadRules reads the YAML rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read safety rules: %v", domain.ErrConfiguration, err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse safety rules: %v", domain.ErrConfiguration, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: safety rule file has no rules", domain.ErrConfiguration)
	}
	return f.Rules, nil
}

// NewGate compiles the rule table. Invalid patterns or severities are
// configuration errors, fatal at startup.
func NewGate(rules []Rule, notifier Notifier, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: safety rule without id", domain.ErrConfiguration)
		}
		if r.Severity != SeverityCrisis && r.Severity != SeverityUnsafe {
			return nil, fmt.Errorf("%w: safety rule %s: unknown severity %q", domain.ErrConfiguration, r.ID, r.Severity)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: safety rule %s: %v", domain.ErrConfiguration, r.ID, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &Gate{rules: compiled, notifier: notifier, logger: logger}, nil
}

// Validate checks content of the given kind for user/journey context.
// Crisis matches escalate regardless of any other match and trigger the
// human-review notification; the notification never blocks or changes the
// verdict. Unsafe matches reject. No match approves.
func (g *Gate) Validate(userID, journeyID, content string, kind ContentKind) Decision {
	var rejected *compiledRule
	for i := range g.rules {
		r := &g.rules[i]
		if !r.re.MatchString(content) {
			continue
		}
		if r.Severity == SeverityCrisis {
			g.escalate(userID, journeyID, content, kind, r)
			return Decision{Verdict: VerdictEscalated, RuleID: r.ID, Category: r.Category}
		}
		if rejected == nil {
			rejected = r
		}
	}
	if rejected != nil {
		return Decision{Verdict: VerdictRejected, RuleID: rejected.ID, Category: rejected.Category}
	}
	return Decision{Verdict: VerdictApproved}
}

func (g *Gate) escalate(userID, journeyID, content string, kind ContentKind, r *compiledRule) {
	rec := EscalationRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		JourneyID: journeyID,
		Kind:      kind,
		RuleID:    r.ID,
		Category:  r.Category,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	g.logger.Warn("safety escalation",
		"escalationId", rec.ID, "userId", userID, "journeyId", journeyID,
		"kind", string(kind), "rule", r.ID)
	if g.notifier == nil {
		return
	}
	// fire-and-forget: review delivery must never block the verdict
	go func() {
		if err := g.notifier.Notify(rec); err != nil {
			g.logger.Error("escalation notify failed", "escalationId", rec.ID, "err", err)
		}
	}()
}
