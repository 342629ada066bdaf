package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
)

// MockProvider returns well-formed arithmetic questions without calling a
// model. Used for local development (LLM_PROVIDER=mock).
type MockProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockProvider(seed uint64) *MockProvider {
	return &MockProvider{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (m *MockProvider) ModelID() string { return "mock" }

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	a := m.rng.IntN(40) + 2
	b := m.rng.IntN(40) + 2
	correct := m.rng.IntN(4)
	m.mu.Unlock()

	sum := a + b
	deltas := []int{-1, 1, 10}
	options := make([]string, 4)
	for i := range options {
		if i == correct {
			options[i] = strconv.Itoa(sum)
			continue
		}
		options[i] = strconv.Itoa(sum + deltas[0])
		deltas = deltas[1:]
	}

	body, err := json.Marshal(map[string]any{
		"question":      fmt.Sprintf("[Mock] What is %d + %d?", a, b),
		"options":       options,
		"correctAnswer": correct,
		"explanation":   fmt.Sprintf("[Mock] Adding %d and %d gives %d.", a, b, sum),
	})
	if err != nil {
		return nil, err
	}
	return &Response{Content: string(body), Model: "mock", PromptTokens: len(req.User) / 4, OutputTokens: len(body) / 4}, nil
}
