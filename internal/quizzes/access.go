package quizzes

import (
	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

// canRead: public quizzes are open to anyone, private ones to the owner.
func canRead(quiz *models.Quiz, userID string) bool {
	return quiz.Visibility == models.VisibilityPublic || (userID != "" && quiz.OwnerID == userID)
}

func authorizeRead(quiz *models.Quiz, userID string) error {
	if !canRead(quiz, userID) {
		return apperr.NotFound("quiz not found")
	}
	return nil
}

// authorizeWrite keeps private quizzes invisible to non-owners; for public
// ones the caller may already know the quiz exists, so the denial is explicit.
func authorizeWrite(quiz *models.Quiz, userID string) error {
	if userID == "" {
		return apperr.AuthenticationRequired()
	}
	if quiz.OwnerID == userID {
		return nil
	}
	if quiz.Visibility != models.VisibilityPublic {
		return apperr.NotFound("quiz not found")
	}
	return apperr.AuthorizationDenied("only the quiz owner can do that")
}
