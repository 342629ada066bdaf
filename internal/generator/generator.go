package generator

import (
	"context"
	"time"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/llm"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/models"
)

type Config struct {
	OptionCount int
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Generator produces one question at a time from the quiz's topics and
// history. It never persists anything.
type Generator struct {
	provider llm.Provider
	policy   *Policy
	cfg      Config
	log      *logger.Logger
}

func NewGenerator(provider llm.Provider, policy *Policy, cfg Config, log *logger.Logger) *Generator {
	if cfg.OptionCount < 2 {
		cfg.OptionCount = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Generator{
		provider: provider,
		policy:   policy,
		cfg:      cfg,
		log:      log.With("service", "Generator"),
	}
}

func (g *Generator) ModelName() string {
	return g.provider.ModelID()
}

// Generate returns new question content or a generation error with reason
// upstream_unavailable (call failed or timed out) or invalid_schema (the
// response broke the question contract).
func (g *Generator) Generate(ctx context.Context, topics []models.Topic, history []models.Question) (*models.QuestionContent, error) {
	if len(topics) == 0 {
		return nil, apperr.Validation("at least one topic is required")
	}

	focus := g.policy.Next(topics, history)
	prompt := BuildPrompt(topics, history, focus, g.cfg.OptionCount)
	schema := QuestionSchema(g.cfg.OptionCount)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      prompt.System,
		User:        prompt.User,
		Schema:      schema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		g.log.Warn("question generation failed", "error", err, "topic_index", focus.TopicIndex)
		return nil, apperr.Generation(apperr.ReasonUpstreamUnavailable, err)
	}

	content, err := ParseContent(resp.Content, schema, g.cfg.OptionCount)
	if err != nil {
		g.log.Warn("model returned invalid question", "error", err, "model", resp.Model)
		return nil, apperr.Generation(apperr.ReasonInvalidSchema, err)
	}

	difficulty := focus.Difficulty
	content.Difficulty = &difficulty
	content.TopicIndex = focus.TopicIndex

	g.log.Debug("question generated",
		"topic_index", focus.TopicIndex,
		"difficulty", focus.Difficulty,
		"retry", focus.Retry,
		"history", len(history),
	)
	return content, nil
}
