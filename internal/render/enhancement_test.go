package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

func TestTemplate_Nil(t *testing.T) {
	assert.Equal(t, "", Template(nil))
}

func TestTemplate_Structured(t *testing.T) {
	tpl := &domain.Template{
		Topic:   "physics",
		Content: domain.NewStructuredContent(domain.StructuredContent{HasAnalogy: true, HasKeyTakeaways: true}),
	}

	got := Template(tpl)
	assert.True(t, strings.HasPrefix(got, "Shape the answer as follows:"))
	assert.Contains(t, got, "relatable analogy")
	assert.Contains(t, got, "key takeaways")
	assert.NotContains(t, got, "concrete example")
	assert.Equal(t, 2, strings.Count(got, "\n- "))
}

func TestTemplate_StructuredWithoutFlags(t *testing.T) {
	tpl := &domain.Template{Content: domain.NewStructuredContent(domain.StructuredContent{})}
	assert.Equal(t, GenericInstruction, Template(tpl))
}

func TestTemplate_Freeform(t *testing.T) {
	tpl := &domain.Template{
		Topic:   "mathematics",
		Content: domain.NewFreeformContent("Start from a picture,\n then   formalize it."),
	}
	assert.Equal(t,
		"For this mathematics question, follow this proven approach: Start from a picture, then formalize it.",
		Template(tpl))

	tpl.Topic = domain.GeneralTopic
	assert.Equal(t, "Follow this proven approach: Start from a picture, then formalize it.", Template(tpl))
}

func TestTemplate_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content domain.TemplateContent
	}{
		{"unknown kind", domain.TemplateContent{Kind: "xml", Freeform: "<a/>"}},
		{"empty kind", domain.TemplateContent{}},
		{"blank freeform", domain.NewFreeformContent("   ")},
		{"decoded garbage", domain.DecodeTemplateContent(domain.TemplateContentStructured, "{oops")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, GenericInstruction, Template(&domain.Template{Content: tt.content}))
			})
		})
	}
}

func TestWithCluster(t *testing.T) {
	tpl := &domain.Template{Content: domain.NewStructuredContent(domain.StructuredContent{HasExample: true})}
	cluster := &domain.Cluster{PromptEnhancement: "Lead with a diagram."}

	got := WithCluster(tpl, cluster)
	assert.Contains(t, got, "concrete example")
	assert.True(t, strings.HasSuffix(got, "Lead with a diagram."))

	assert.Equal(t, "Guidance learned from this group of questions:\nLead with a diagram.", WithCluster(nil, cluster))
	assert.Equal(t, "", WithCluster(nil, &domain.Cluster{}))
	assert.Equal(t, Template(tpl), WithCluster(tpl, nil))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("  short   text ", 200))

	long := strings.Repeat("word ", 100)
	got := Excerpt(long, 50)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.True(t, strings.HasSuffix(got, "word…"))

	// no whitespace to cut on
	unbroken := strings.Repeat("é", 300)
	got = Excerpt(unbroken, MaxExcerptRunes)
	assert.Equal(t, MaxExcerptRunes, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
