package generator

import (
	"fmt"
	"strings"

	"github.com/quizy/backend/internal/models"
)

const systemPrompt = `You are a math teacher writing multiple-choice practice questions.

Rules:
- Generate exactly one question on the focus topic given in the request.
- Provide exactly %d options in random order. Exactly one option is correct and no two options are equal.
- Distractors should reflect common mistakes, not random values.
- correctAnswer is the 0-based index of the correct option.
- The explanation is brief and shows how the correct answer is reached.
- Use plain text for math. No LaTeX.
- Do not repeat any question from the history.
- Match the requested difficulty band.`

// Prompt is the rendered system and user text for one generation call.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the prompt for the next question. It has no side
// effects: the same inputs always produce the same text.
func BuildPrompt(topics []models.Topic, history []models.Question, focus Focus, optionCount int) Prompt {
	var b strings.Builder

	b.WriteString("Generate a math question based on the focus topic below.\n\n")

	b.WriteString("Quiz topics:\n")
	for i, t := range topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, DescribeTopic(t))
	}

	if focus.TopicIndex >= 0 && focus.TopicIndex < len(topics) {
		fmt.Fprintf(&b, "\nFocus topic: %s\n", DescribeTopic(topics[focus.TopicIndex]))
	}
	fmt.Fprintf(&b, "Difficulty: %s (%d/100)\n", focus.Band, focus.Difficulty)

	b.WriteString("\nQuestion history:\n")
	b.WriteString(formatHistory(topics, history))

	if focus.Retry && focus.Previous != nil {
		b.WriteString("\n\nThe student answered the last question incorrectly:\n")
		fmt.Fprintf(&b, "%q\n", focus.Previous.Content.Question)
		b.WriteString("Write a new question that tests the same method with different numbers. Do not make it harder.")
	} else if len(history) > 0 {
		b.WriteString("\n\nThe student answered the last question correctly. Make the new question slightly harder.")
	}

	return Prompt{
		System: fmt.Sprintf(systemPrompt, optionCount),
		User:   b.String(),
	}
}

func formatHistory(topics []models.Topic, history []models.Question) string {
	if len(history) == 0 {
		return "None"
	}

	var b strings.Builder
	for i, q := range history {
		topic := "unknown"
		if idx := q.Content.TopicIndex; idx >= 0 && idx < len(topics) {
			topic = DescribeTopic(topics[idx])
		}
		fmt.Fprintf(&b, "%d. [%s, difficulty %d] %s -> %s\n", i+1, topic, difficultyOf(q), q.Content.Question, outcome(q))
	}
	return strings.TrimRight(b.String(), "\n")
}

func outcome(q models.Question) string {
	switch {
	case !q.Answered():
		return "unanswered"
	case q.Correct():
		return "correct"
	default:
		return "wrong"
	}
}
