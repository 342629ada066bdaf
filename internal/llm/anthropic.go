package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider disables the SDK's own retries: WithRetry is the
// only retry layer, so LLM_MAX_ATTEMPTS bounds the upstream calls.
func NewAnthropicProvider(apiKey, model string, extra ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}, nil
}

func (p *AnthropicProvider) ModelID() string { return p.model }

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if req.Schema != nil {
		instr, err := schemaInstruction(req.Schema)
		if err != nil {
			return nil, err
		}
		system += "\n\n" + instr
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ErrEmptyResponse{Provider: "anthropic"}
	}

	return &Response{
		Content:      text,
		Model:        string(message.Model),
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

// schemaInstruction is used for backends without a native schema option:
// the schema travels inside the system prompt.
func schemaInstruction(s *Schema) (string, error) {
	def, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema %q: %w", s.Name, err)
	}
	return fmt.Sprintf("Respond with a single JSON object only, no prose and no code fences. "+
		"It must conform to this JSON Schema (%s):\n%s", s.Description, def), nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &ErrRateLimit{Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
