package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/quizy/backend/internal/llm"
	"github.com/quizy/backend/internal/models"
)

// ValidationError lists every problem found in a model response.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

var schemaCache sync.Map // schema name -> *jsonschema.Schema

// ParseContent validates raw model output in two stages, JSON schema first
// and question invariants second, and decodes it.
func ParseContent(raw string, schema *llm.Schema, optionCount int) (*models.QuestionContent, error) {
	cleaned := stripCodeFences(raw)

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(cleaned))
	if err != nil {
		return nil, &ValidationError{Errors: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, err
	}
	if err := compiled.Validate(parsed); err != nil {
		return nil, &ValidationError{Errors: []string{fmt.Sprintf("schema: %v", err)}}
	}

	var content models.QuestionContent
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(&content); err != nil {
		return nil, &ValidationError{Errors: []string{fmt.Sprintf("decode: %v", err)}}
	}

	if err := ValidateContent(&content, optionCount); err != nil {
		return nil, err
	}
	return &content, nil
}

// ValidateContent enforces the question invariants: non-empty text, enough
// distinct non-empty options and a correct index inside them. optionCount
// of zero only requires at least two options.
func ValidateContent(c *models.QuestionContent, optionCount int) error {
	var errs []string

	if strings.TrimSpace(c.Question) == "" {
		errs = append(errs, "empty question")
	}
	if strings.TrimSpace(c.Explanation) == "" {
		errs = append(errs, "empty explanation")
	}

	switch {
	case len(c.Options) < 2:
		errs = append(errs, fmt.Sprintf("expected at least 2 options, got %d", len(c.Options)))
	case optionCount > 0 && len(c.Options) != optionCount:
		errs = append(errs, fmt.Sprintf("expected %d options, got %d", optionCount, len(c.Options)))
	}

	seen := make(map[string]int, len(c.Options))
	for i, o := range c.Options {
		key := strings.ToLower(strings.TrimSpace(o))
		if key == "" {
			errs = append(errs, fmt.Sprintf("option %d is empty", i))
			continue
		}
		if j, dup := seen[key]; dup {
			errs = append(errs, fmt.Sprintf("options %d and %d are identical", j, i))
		}
		seen[key] = i
	}

	if c.CorrectAnswer < 0 || c.CorrectAnswer >= len(c.Options) {
		errs = append(errs, fmt.Sprintf("correctAnswer %d out of range [0, %d)", c.CorrectAnswer, len(c.Options)))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func compileSchema(schema *llm.Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(defBytes))
	if err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
