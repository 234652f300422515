// Package render turns a selected template into prompt-augmentation text.
package render

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

// MaxExcerptRunes caps the freeform guidance excerpt.
const MaxExcerptRunes = 200

// GenericInstruction is rendered when a template's content cannot be used.
const GenericInstruction = "Adapt a proven successful approach for this kind of question."

const (
	structuredHeader = "Shape the answer as follows:"
	guidanceHeader   = "Guidance learned from this group of questions:"
)

var flagInstructions = []struct {
	enabled func(domain.StructuredContent) bool
	text    string
}{
	{func(s domain.StructuredContent) bool { return s.HasIntroduction }, "Open with a short introduction that frames the question."},
	{func(s domain.StructuredContent) bool { return s.HasExplanation }, "Give a clear explanation of the underlying concept."},
	{func(s domain.StructuredContent) bool { return s.HasAnalogy }, "Include a relatable analogy."},
	{func(s domain.StructuredContent) bool { return s.HasExample }, "Work through a concrete example."},
	{func(s domain.StructuredContent) bool { return s.HasKeyTakeaways }, "Close with the key takeaways."},
	{func(s domain.StructuredContent) bool { return s.IsStructured }, "Organize the answer into clearly separated sections."},
}

// Template renders the enhancement text for t. A nil template renders as
// the empty string. Malformed content degrades to GenericInstruction.
func Template(t *domain.Template) string {
	if t == nil {
		return ""
	}

	switch t.Content.Kind {
	case domain.TemplateContentStructured:
		return structured(t.Content.Structured)
	case domain.TemplateContentFreeform:
		return freeform(t.Content.Freeform, t.Topic)
	}
	return GenericInstruction
}

// WithCluster renders t and appends the cluster's learned guidance when the
// cluster has one.
func WithCluster(t *domain.Template, c *domain.Cluster) string {
	text := Template(t)
	if c == nil || strings.TrimSpace(c.PromptEnhancement) == "" {
		return text
	}

	guidance := guidanceHeader + "\n" + strings.TrimSpace(c.PromptEnhancement)
	if text == "" {
		return guidance
	}
	return text + "\n\n" + guidance
}

func structured(s domain.StructuredContent) string {
	var b strings.Builder
	for _, f := range flagInstructions {
		if !f.enabled(s) {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(structuredHeader)
		}
		b.WriteString("\n- ")
		b.WriteString(f.text)
	}
	if b.Len() == 0 {
		return GenericInstruction
	}
	return b.String()
}

func freeform(text, topic string) string {
	excerpt := Excerpt(text, MaxExcerptRunes)
	if excerpt == "" {
		return GenericInstruction
	}

	topic = strings.TrimSpace(topic)
	if topic == "" || topic == domain.GeneralTopic {
		return "Follow this proven approach: " + excerpt
	}
	return "For this " + topic + " question, follow this proven approach: " + excerpt
}

// Excerpt collapses whitespace and shortens text to at most max runes,
// cutting at a word boundary when one exists.
func Excerpt(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if max <= 0 || len(runes) <= max {
		return collapsed
	}

	cut := max - 1 // room for the ellipsis
	for i := cut; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}
