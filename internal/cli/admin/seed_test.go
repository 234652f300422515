package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeeds(t *testing.T) {
	data := []byte(`
templates:
  - topic: physics
    content: "Start from an everyday example."
    metadata:
      author: staff
  - topic: chemistry
    content:
      has_analogy: true
`)

	seeds, err := parseSeeds(data)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "physics", seeds[0].Topic)
	assert.Equal(t, "Start from an everyday example.", seeds[0].Content)
	assert.Equal(t, "staff", seeds[0].Metadata["author"])

	assert.JSONEq(t, `{"has_analogy": true}`, seeds[1].Content)
}

func TestParseSeeds_MissingContent(t *testing.T) {
	_, err := parseSeeds([]byte("templates:\n  - topic: physics\n"))
	assert.ErrorContains(t, err, "content is required")
}

func TestParseSeeds_InvalidYAML(t *testing.T) {
	_, err := parseSeeds([]byte("templates: ["))
	assert.Error(t, err)
}
