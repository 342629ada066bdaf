package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/quizy/backend/internal/config"
	"github.com/quizy/backend/internal/logger"
)

// NewProvider builds the configured backend wrapped as caller → retry → logging → base.
func NewProvider(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "mock":
		base = NewMockProvider(uint64(time.Now().UnixNano()))
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base, log), cfg.MaxAttempts, time.Second), nil
}
