package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// TemplateContentKind tags which variant a TemplateContent holds.
type TemplateContentKind string

const (
	TemplateContentStructured TemplateContentKind = "structured"
	TemplateContentFreeform   TemplateContentKind = "freeform"
)

// TemplateSource records where a template came from.
type TemplateSource string

const (
	TemplateSourceSeeded TemplateSource = "seeded"
	TemplateSourceCrowd  TemplateSource = "crowd"
)

// StructuredContent is the flag-based template variant.
type StructuredContent struct {
	HasIntroduction bool `json:"has_introduction"`
	HasExplanation  bool `json:"has_explanation"`
	HasAnalogy      bool `json:"has_analogy"`
	HasExample      bool `json:"has_example"`
	HasKeyTakeaways bool `json:"has_key_takeaways"`
	IsStructured    bool `json:"is_structured"`
}

// TemplateContent is a tagged variant. Exactly one of Structured or
// Freeform is meaningful, as selected by Kind.
type TemplateContent struct {
	Kind       TemplateContentKind
	Structured StructuredContent
	Freeform   string
}

// NewStructuredContent builds a structured content variant.
func NewStructuredContent(s StructuredContent) TemplateContent {
	return TemplateContent{Kind: TemplateContentStructured, Structured: s}
}

// NewFreeformContent builds a freeform content variant.
func NewFreeformContent(text string) TemplateContent {
	return TemplateContent{Kind: TemplateContentFreeform, Freeform: text}
}

// ParseTemplateContent decides the variant once, at write time. Raw input
// that decodes as a JSON object with at least one known flag is structured;
// anything else is freeform text.
func ParseTemplateContent(raw string) TemplateContent {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &probe); err == nil && hasStructuredKey(probe) {
			var s StructuredContent
			if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
				return NewStructuredContent(s)
			}
		}
	}
	return NewFreeformContent(trimmed)
}

func hasStructuredKey(m map[string]json.RawMessage) bool {
	for _, k := range []string{"has_introduction", "has_explanation", "has_analogy", "has_example", "has_key_takeaways", "is_structured"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// Payload returns the stored representation of the content body.
func (c TemplateContent) Payload() (string, error) {
	switch c.Kind {
	case TemplateContentStructured:
		b, err := json.Marshal(c.Structured)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case TemplateContentFreeform:
		return c.Freeform, nil
	}
	return "", ErrInvalidTemplateContent
}

// DecodeTemplateContent rebuilds content from its stored kind and payload.
// Malformed structured payloads degrade to an empty freeform variant so
// readers never fail on bad rows.
func DecodeTemplateContent(kind TemplateContentKind, payload string) TemplateContent {
	switch kind {
	case TemplateContentStructured:
		var s StructuredContent
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return TemplateContent{Kind: TemplateContentFreeform}
		}
		return NewStructuredContent(s)
	case TemplateContentFreeform:
		return NewFreeformContent(payload)
	}
	return TemplateContent{Kind: kind, Freeform: payload}
}

// Template is a reusable response-shaping pattern with tracked performance.
type Template struct {
	ID                    string
	Topic                 string
	Content               TemplateContent
	Source                TemplateSource
	EfficacyScore         float64 // running mean of ratings, 0-5
	UsageCount            int64
	QualityScore          float64
	ConfusionScore        float64 // 0-1, higher is more confusing
	FollowUpRate          float64 // 0-1
	ConfidenceScore       float64 // 0-1
	RatingCount           int64
	RatingSum             float64
	RatingSumSquares      float64
	ComponentRating       map[string]float64
	CompositeQualityScore float64
	CompositeBreakdown    *CompositeBreakdown
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CompositeBreakdown is persisted next to the composite score for auditing.
type CompositeBreakdown struct {
	Weights    map[string]float64 `json:"weights"`
	Signals    map[string]float64 `json:"signals"`
	Score      float64            `json:"score"`
	ComputedAt time.Time          `json:"computed_at"`
}

// RatingStddev returns the population standard deviation of recorded ratings.
func (t *Template) RatingStddev() float64 {
	if t.RatingCount <= 1 {
		return 0
	}
	n := float64(t.RatingCount)
	mean := t.RatingSum / n
	variance := t.RatingSumSquares/n - mean*mean
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// ValidateTemplate validates a Template instance
func ValidateTemplate(t *Template) error {
	if t == nil {
		return fmt.Errorf("template cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("template ID is required")
	}

	if t.Topic == "" {
		return fmt.Errorf("template Topic is required")
	}

	switch t.Content.Kind {
	case TemplateContentStructured:
	case TemplateContentFreeform:
		if strings.TrimSpace(t.Content.Freeform) == "" {
			return fmt.Errorf("template Content freeform text is required")
		}
	default:
		return fmt.Errorf("template Content kind is invalid: %s", t.Content.Kind)
	}

	if !isValidTemplateSource(t.Source) {
		return fmt.Errorf("template Source is invalid: %s", t.Source)
	}

	if t.UsageCount < 0 {
		return fmt.Errorf("template UsageCount cannot be negative")
	}

	for name, v := range t.ComponentRating {
		if v < 0 || v > 5 {
			return fmt.Errorf("template ComponentRating %q out of range: %v", name, v)
		}
	}

	return nil
}

func isValidTemplateSource(s TemplateSource) bool {
	switch s {
	case TemplateSourceSeeded, TemplateSourceCrowd:
		return true
	}
	return false
}

// ClusterTemplateStat tracks one template's bandit statistics inside one cluster.
type ClusterTemplateStat struct {
	ClusterID  string
	TemplateID string
	UsageCount int64
	RewardSum  float64
}

// MeanReward returns the average reward observed for the arm.
func (s ClusterTemplateStat) MeanReward() float64 {
	if s.UsageCount <= 0 {
		return 0
	}
	return Clamp01(s.RewardSum / float64(s.UsageCount))
}
