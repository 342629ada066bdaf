package generator

import (
	"fmt"

	"github.com/quizy/backend/internal/llm"
)

// QuestionSchema is the structured-output contract handed to the model.
// Field names match models.QuestionContent.
func QuestionSchema(optionCount int) *llm.Schema {
	return &llm.Schema{
		Name:        fmt.Sprintf("math_question_%d", optionCount),
		Description: "A single multiple-choice math question",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The generated math question",
					"minLength":   1,
				},
				"options": map[string]any{
					"type":        "array",
					"description": fmt.Sprintf("Exactly %d multiple choice options in random order, one of them correct", optionCount),
					"items":       map[string]any{"type": "string", "minLength": 1},
					"minItems":    optionCount,
					"maxItems":    optionCount,
				},
				"correctAnswer": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("The index of the correct option in the options array, 0 to %d", optionCount-1),
					"minimum":     0,
					"maximum":     optionCount - 1,
				},
				"explanation": map[string]any{
					"type":        "string",
					"description": "A simple brief explanation of the correct answer",
					"minLength":   1,
				},
			},
			"required":             []string{"question", "options", "correctAnswer", "explanation"},
			"additionalProperties": false,
		},
	}
}
