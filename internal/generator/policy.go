package generator

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/quizy/backend/internal/models"
)

const (
	PolicyUniform  = "uniform"
	PolicyWeighted = "weighted"

	// StartingAbility is the ability score assumed before any answer.
	StartingAbility = 50.0
)

type Band string

const (
	BandEasy   Band = "easy"
	BandMedium Band = "medium"
	BandHard   Band = "hard"
)

// ExpectedAccuracy returns the probability a user with the given ability
// gets a question with the given difficulty correct.
// Uses a sigmoid centered on 0 with scaling factor 12.5.
func ExpectedAccuracy(ability, difficulty float64) float64 {
	x := (ability - difficulty) / 12.5
	return 1.0 / (1.0 + math.Exp(-x))
}

// ComputeNewAbility calculates the updated ability score after answering.
func ComputeNewAbility(current, difficulty float64, correct bool, k float64) float64 {
	expected := ExpectedAccuracy(current, difficulty)

	var result float64
	if correct {
		result = 1.0
	}

	return clampScore(current + (result-expected)*k)
}

// BandFor maps a 0-100 difficulty score onto the band named in prompts.
func BandFor(difficulty int) Band {
	switch {
	case difficulty < 35:
		return BandEasy
	case difficulty < 65:
		return BandMedium
	default:
		return BandHard
	}
}

// Focus is the policy's decision for the next question.
type Focus struct {
	TopicIndex int
	Difficulty int
	Band       Band
	// Retry is set when the previous answer was wrong: the next question
	// should test the same method with different numbers.
	Retry    bool
	Previous *models.Question
}

type PolicyConfig struct {
	Mode              string
	WrongAnswerWeight float64
	KFactor           float64
}

// Policy decides topic and difficulty for the next question from the
// quiz history. Safe for concurrent use.
type Policy struct {
	cfg PolicyConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPolicy(cfg PolicyConfig, rng *rand.Rand) *Policy {
	if cfg.Mode == "" {
		cfg.Mode = PolicyWeighted
	}
	if cfg.KFactor <= 0 {
		cfg.KFactor = 8
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Policy{cfg: cfg, rng: rng}
}

// Ability replays the answered history through the Elo update.
func (p *Policy) Ability(history []models.Question) float64 {
	ability := StartingAbility
	for _, q := range history {
		if !q.Answered() {
			continue
		}
		ability = ComputeNewAbility(ability, float64(difficultyOf(q)), q.Correct(), p.cfg.KFactor)
	}
	return ability
}

// TargetDifficulty returns the difficulty for the next question. A correct
// last answer always moves the target above the previous question's
// difficulty; a wrong one never moves it above.
func (p *Policy) TargetDifficulty(history []models.Question) int {
	target := int(math.Round(p.Ability(history)))

	last := lastAnswered(history)
	if last == nil {
		return target
	}
	prev := difficultyOf(*last)
	if last.Correct() {
		if target <= prev {
			target = prev + 1
		}
	} else if target > prev {
		target = prev
	}
	return int(clampScore(float64(target)))
}

// Next picks the topic index and difficulty for the next question.
func (p *Policy) Next(topics []models.Topic, history []models.Question) Focus {
	difficulty := p.TargetDifficulty(history)
	focus := Focus{Difficulty: difficulty, Band: BandFor(difficulty)}

	if last := lastAnswered(history); last != nil && !last.Correct() {
		focus.Retry = true
		focus.Previous = last
		focus.TopicIndex = clampIndex(last.Content.TopicIndex, len(topics))
		return focus
	}

	focus.TopicIndex = p.pickTopic(topics, history)
	return focus
}

func (p *Policy) pickTopic(topics []models.Topic, history []models.Question) int {
	n := len(topics)
	if n <= 1 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Mode == PolicyUniform {
		return p.rng.IntN(n)
	}

	weights := TopicWeights(n, history, p.cfg.WrongAnswerWeight)
	var total float64
	for _, w := range weights {
		total += w
	}
	r := p.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return n - 1
}

// TopicWeights gives each topic weight 1 + wrongWeight * (wrong answers on
// that topic so far).
func TopicWeights(n int, history []models.Question, wrongWeight float64) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	for _, q := range history {
		if !q.Answered() || q.Correct() {
			continue
		}
		if idx := q.Content.TopicIndex; idx >= 0 && idx < n {
			weights[idx] += wrongWeight
		}
	}
	return weights
}

func lastAnswered(history []models.Question) *models.Question {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Answered() {
			return &history[i]
		}
	}
	return nil
}

func difficultyOf(q models.Question) int {
	if q.Content.Difficulty == nil {
		return int(StartingAbility)
	}
	return *q.Content.Difficulty
}

func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
