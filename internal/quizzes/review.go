package quizzes

import (
	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

// BuildReview reconstructs the read-only walk through a quiz. The score is
// always derived from the stored answers.
func BuildReview(quiz models.Quiz, questions []models.Question, readOnly bool) models.ReviewResponse {
	items := make([]models.ReviewItem, len(questions))
	score := 0
	for i, q := range questions {
		items[i] = reviewItem(i, q)
		if items[i].Correct {
			score++
		}
	}

	total := quiz.NumQuestions
	if total < len(questions) {
		total = len(questions)
	}
	var fraction float64
	if total > 0 {
		fraction = float64(score) / float64(total)
	}

	return models.ReviewResponse{
		Quiz:     quiz,
		Items:    items,
		Score:    score,
		Total:    total,
		Fraction: fraction,
		ReadOnly: readOnly,
	}
}

// ReviewAt returns one review item. Any index of a stored question is valid
// regardless of session progress.
func ReviewAt(questions []models.Question, index int) (models.ReviewItem, error) {
	if index < 0 {
		return models.ReviewItem{}, apperr.Validation("index must not be negative")
	}
	if index >= len(questions) {
		return models.ReviewItem{}, apperr.NotFound("no question at index %d", index)
	}
	return reviewItem(index, questions[index]), nil
}

func reviewItem(index int, q models.Question) models.ReviewItem {
	return models.ReviewItem{
		Index:           index,
		QuestionID:      q.ID,
		Question:        q.Content.Question,
		Options:         models.OptionLabels(q.Content.Options),
		SubmittedAnswer: q.SubmittedAnswer,
		CorrectAnswer:   q.Content.CorrectAnswer,
		Answered:        q.Answered(),
		Correct:         q.Correct(),
		Explanation:     q.Content.Explanation,
	}
}
