package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string", "description": "stem"},
			"options": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"correctAnswer": map[string]any{"type": "integer"},
		},
		"required": []any{"question", "options", "correctAnswer"},
	}

	s := buildGeminiSchema(def)
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"question", "options", "correctAnswer"}, s.Required)

	require.Contains(t, s.Properties, "options")
	assert.Equal(t, genai.TypeArray, s.Properties["options"].Type)
	require.NotNil(t, s.Properties["options"].Items)
	assert.Equal(t, genai.TypeString, s.Properties["options"].Items.Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["correctAnswer"].Type)
	assert.Equal(t, "stem", s.Properties["question"].Description)
}

func TestBuildGeminiSchema_RequiredAsStrings(t *testing.T) {
	s := buildGeminiSchema(map[string]any{"type": "object", "required": []string{"a", "b"}})
	assert.Equal(t, []string{"a", "b"}, s.Required)
}
