// Package llm is the model-invocation boundary: a prompt plus an optional
// structured-output schema goes in, raw model text comes out.
package llm

import "context"

// Provider is implemented by every model backend.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	ModelID() string
}

type Request struct {
	System string
	User   string

	// Schema, when set, asks the backend for JSON matching it using the
	// backend's native structured-output mechanism where one exists.
	// Providers do not validate the result; callers do.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// Schema is a named JSON Schema document.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content      string
	Model        string
	PromptTokens int
	OutputTokens int
}
