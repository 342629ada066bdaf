package llm

import (
	"context"
	"time"

	"github.com/quizy/backend/internal/logger"
)

type loggingProvider struct {
	inner Provider
	log   *logger.Logger
}

// WithLogging logs every call with its latency and token usage.
func WithLogging(p Provider, log *logger.Logger) Provider {
	return &loggingProvider{inner: p, log: log.With("service", "LLM", "model", p.ModelID())}
}

func (l *loggingProvider) ModelID() string { return l.inner.ModelID() }

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		l.log.Warn("llm call failed", "elapsed_ms", elapsed.Milliseconds(), "error", err)
		return nil, err
	}
	l.log.Info("llm call",
		"elapsed_ms", elapsed.Milliseconds(),
		"prompt_tokens", resp.PromptTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}
