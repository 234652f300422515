package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

const (
	maxTopicRunes     = 40
	maxStrengths      = 5
	maxEnhancementLen = 800
)

const topicSystemPrompt = `You label the academic topic of a student's question.
Reply with a JSON object {"topic": "<label>"}.
Reuse one of the known topics when it fits. Otherwise propose a short lowercase label of one to three words.
Use "general" only when the question has no academic subject.`

const feedbackSystemPrompt = `You read a student's reaction to a tutoring answer.
Reply with a JSON object:
{"sentiment": "positive" | "negative" | "neutral", "confidence": <0..1>, "follow_up": <bool>, "confused": <bool>}
"follow_up" is true when the student asks a further question. "confused" is true when the student signals they did not understand.`

const factorsSystemPrompt = `You analyze why a tutoring answer worked for a student.
Given the question, the answer and the student's feedback, reply with a JSON object:
{"used_analogy": <bool>, "clear_structure": <bool>, "step_by_step": <bool>, "appropriate_depth": <bool>, "concrete_examples": <bool>, "strengths": [<short phrases>]}`

const synthesisSystemPrompt = `You maintain a short instruction that tells a tutor how to answer a family of similar questions.
Write two or three sentences in the imperative mood. Keep what still applies from the previous instruction and fold in the observed strengths.
Reply with the instruction text only.`

// completer is satisfied by *Client.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

// TopicClassifier labels queries with a topic using a chat model.
type TopicClassifier struct {
	llm completer
}

func NewTopicClassifier(llm completer) *TopicClassifier {
	return &TopicClassifier{llm: llm}
}

// ClassifyTopic returns a normalized topic label. The label may be new.
func (t *TopicClassifier) ClassifyTopic(ctx context.Context, query string, known []string) (string, error) {
	prompt := fmt.Sprintf("Known topics: %s\n\nQuestion: %s", strings.Join(known, ", "), query)

	var out struct {
		Topic string `json:"topic"`
	}
	if err := t.llm.CompleteJSON(ctx, topicSystemPrompt, prompt, &out); err != nil {
		return "", err
	}

	topic := NormalizeTopic(out.Topic)
	if topic == "" {
		return "", domain.ErrMalformedLLMOutput.WithCause(fmt.Errorf("unusable topic label %q", out.Topic))
	}
	return topic, nil
}

// NormalizeTopic lowercases a label, keeps letters, digits, spaces and
// hyphens, and caps its length.
func NormalizeTopic(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '_':
			b.WriteRune(' ')
		}
	}

	topic := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(topic); len(runes) > maxTopicRunes {
		topic = strings.TrimSpace(string(runes[:maxTopicRunes]))
	}
	return topic
}

// FeedbackAnalyzer runs the language-model steps of the learning loop.
type FeedbackAnalyzer struct {
	llm completer
}

func NewFeedbackAnalyzer(llm completer) *FeedbackAnalyzer {
	return &FeedbackAnalyzer{llm: llm}
}

// ClassifyFeedback reads sentiment and soft signals from feedback text.
// Out-of-range confidence is clamped and unknown labels become neutral.
func (f *FeedbackAnalyzer) ClassifyFeedback(ctx context.Context, feedback string) (domain.FeedbackClassification, error) {
	var out struct {
		Sentiment  string  `json:"sentiment"`
		Confidence float64 `json:"confidence"`
		FollowUp   bool    `json:"follow_up"`
		Confused   bool    `json:"confused"`
	}
	if err := f.llm.CompleteJSON(ctx, feedbackSystemPrompt, "Feedback: "+feedback, &out); err != nil {
		return domain.FeedbackClassification{}, err
	}

	return domain.FeedbackClassification{
		Outcome:    domain.ParseFeedbackOutcome(strings.ToLower(strings.TrimSpace(out.Sentiment))),
		Confidence: domain.Clamp01(out.Confidence),
		FollowUp:   out.FollowUp,
		Confused:   out.Confused,
	}, nil
}

// ExtractSuccessFactors asks which traits made an answer land.
func (f *FeedbackAnalyzer) ExtractSuccessFactors(ctx context.Context, query, response, feedback string) (domain.SuccessFactors, error) {
	prompt := fmt.Sprintf("Question: %s\n\nAnswer: %s\n\nFeedback: %s", query, response, feedback)

	var factors domain.SuccessFactors
	if err := f.llm.CompleteJSON(ctx, factorsSystemPrompt, prompt, &factors); err != nil {
		return domain.SuccessFactors{}, err
	}

	strengths := factors.Strengths[:0]
	for _, s := range factors.Strengths {
		if s = strings.TrimSpace(s); s != "" && len(strengths) < maxStrengths {
			strengths = append(strengths, s)
		}
	}
	factors.Strengths = strengths
	return factors, nil
}

// SynthesizeEnhancement writes the replacement cluster guidance.
func (f *FeedbackAnalyzer) SynthesizeEnhancement(ctx context.Context, previous, query string, factors domain.SuccessFactors) (string, error) {
	encoded, err := json.Marshal(factors)
	if err != nil {
		return "", fmt.Errorf("failed to encode success factors: %w", err)
	}

	if strings.TrimSpace(previous) == "" {
		previous = "(none)"
	}
	prompt := fmt.Sprintf("Previous instruction: %s\n\nExample question: %s\n\nObserved success factors: %s",
		previous, query, encoded)

	text, err := f.llm.Complete(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > maxEnhancementLen {
		text = string(runes[:maxEnhancementLen])
	}
	return text, nil
}
