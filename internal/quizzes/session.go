package quizzes

import (
	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

type State string

const (
	StateLoading  State = "loading"
	StateActive   State = "active"
	StateGrading  State = "grading"
	StateFinished State = "finished"
)

// passThreshold is the score fraction above which a finished quiz passes.
const passThreshold = 0.5

// Session is the progression through one quiz. It is never stored: it is
// rebuilt from the persisted questions on every request.
type Session struct {
	quiz      models.Quiz
	questions []models.Question

	state    State
	index    int
	revealed bool
	score    int
}

// NewSession reconstructs the session state from persisted questions:
// the first unanswered question is current; with every question answered
// the session waits for the next one or is finished.
func NewSession(quiz models.Quiz, questions []models.Question) *Session {
	if len(questions) > quiz.NumQuestions {
		questions = questions[:quiz.NumQuestions]
	}
	s := &Session{quiz: quiz, questions: append([]models.Question(nil), questions...)}

	current := -1
	for i, q := range s.questions {
		if q.Correct() {
			s.score++
		}
		if current < 0 && !q.Answered() {
			current = i
		}
	}

	switch {
	case current >= 0:
		s.state, s.index = StateActive, current
	case len(s.questions) < quiz.NumQuestions:
		s.state, s.index = StateLoading, len(s.questions)
	default:
		s.state, s.index, s.revealed = StateFinished, quiz.NumQuestions-1, true
	}
	return s
}

func (s *Session) State() State { return s.state }
func (s *Session) Index() int   { return s.index }
func (s *Session) Score() int   { return s.score }
func (s *Session) Revealed() bool {
	return s.revealed
}

// Answered counts questions with a submitted answer.
func (s *Session) Answered() int {
	n := 0
	for _, q := range s.questions {
		if q.Answered() {
			n++
		}
	}
	return n
}

// Current returns the question at the session index, or nil while loading.
func (s *Session) Current() *models.Question {
	if s.index < 0 || s.index >= len(s.questions) {
		return nil
	}
	return &s.questions[s.index]
}

// Attach makes a freshly loaded question current.
func (s *Session) Attach(q models.Question) error {
	if s.state != StateLoading {
		return apperr.InvalidTransition("no question is loading")
	}
	if q.Position != s.index {
		return apperr.InvalidTransition("question %d loaded while waiting for %d", q.Position, s.index)
	}
	s.questions = append(s.questions, q)
	s.state, s.revealed = StateActive, false
	return nil
}

// BeginSubmit moves the current question into grading.
func (s *Session) BeginSubmit(questionID string, option int) (*models.Question, error) {
	if s.state != StateActive || s.revealed {
		return nil, apperr.InvalidTransition("no question is awaiting an answer")
	}
	q := s.Current()
	if q == nil || q.ID != questionID {
		return nil, apperr.InvalidTransition("question %s is not the current question", questionID)
	}
	if option < 0 || option >= len(q.Content.Options) {
		return nil, apperr.Validation("answer %d out of range, question has %d options", option, len(q.Content.Options))
	}
	s.state = StateGrading
	return q, nil
}

// CompleteSubmit records a durably stored answer and reveals the question.
// It reports whether the answer was correct.
func (s *Session) CompleteSubmit(option int) bool {
	q := &s.questions[s.index]
	q.SubmittedAnswer = &option
	correct := q.Correct()
	if correct {
		s.score++
	}
	s.revealed = true
	if s.index == s.quiz.NumQuestions-1 {
		s.state = StateFinished
	} else {
		s.state = StateActive
	}
	return correct
}

// AbortSubmit rolls grading back when the answer could not be stored.
func (s *Session) AbortSubmit() {
	if s.state == StateGrading {
		s.state = StateActive
	}
}

// Advance moves past a revealed question.
func (s *Session) Advance() error {
	if s.state != StateActive || !s.revealed {
		return apperr.InvalidTransition("current question has not been answered")
	}
	s.index++
	s.revealed = false
	if s.index < len(s.questions) {
		s.state = StateActive
	} else {
		s.state = StateLoading
	}
	return nil
}

// FinalScore is score / requested question count once finished.
func (s *Session) FinalScore() (float64, bool) {
	if s.state != StateFinished || s.quiz.NumQuestions == 0 {
		return 0, false
	}
	return float64(s.score) / float64(s.quiz.NumQuestions), true
}

// View renders the session for the client. The correct answer and
// explanation of the current question stay hidden until it is revealed.
func (s *Session) View(readOnly bool) models.SessionView {
	v := models.SessionView{
		QuizID:   s.quiz.ID,
		State:    string(s.state),
		Index:    s.index,
		Total:    s.quiz.NumQuestions,
		Answered: s.Answered(),
		Score:    s.score,
		ReadOnly: readOnly,
	}

	if fraction, ok := s.FinalScore(); ok {
		passed := fraction > passThreshold
		v.FinalScore = &fraction
		v.Passed = &passed
	}

	if q := s.Current(); q != nil {
		qv := &models.QuestionView{
			ID:         q.ID,
			Position:   q.Position,
			Question:   q.Content.Question,
			Options:    models.OptionLabels(q.Content.Options),
			Difficulty: q.Content.Difficulty,
			Revealed:   s.revealed,
		}
		if s.revealed {
			correct := q.Content.CorrectAnswer
			qv.SubmittedAnswer = q.SubmittedAnswer
			qv.CorrectAnswer = &correct
			qv.Explanation = q.Content.Explanation
		}
		v.Current = qv
	}

	if readOnly && s.state == StateLoading {
		v.ReviewPending = true
	}
	return v
}
