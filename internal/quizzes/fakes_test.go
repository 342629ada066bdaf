package quizzes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

// memRepo is an in-memory Repository with the same slot and conditional
// answer semantics as the postgres store.
type memRepo struct {
	mu        sync.Mutex
	seq       int
	quizzes   map[string]*models.Quiz
	questions map[string][]models.Question

	submitErr     error
	submitWrites  int
	questionWrite int

	// afterList runs once, after ListQuizzesByOwner has taken its snapshot.
	afterList func()
}

func newMemRepo() *memRepo {
	return &memRepo{quizzes: map[string]*models.Quiz{}, questions: map[string][]models.Question{}}
}

func (m *memRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRepo) CreateQuiz(_ context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz.ID = m.nextID("quiz")
	quiz.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	cp := *quiz
	m.quizzes[quiz.ID] = &cp
	return nil
}

func (m *memRepo) GetQuiz(_ context.Context, id string) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, apperr.NotFound("quiz not found")
	}
	cp := *q
	return &cp, nil
}

func (m *memRepo) ListQuizzesByOwner(_ context.Context, ownerID string) ([]models.Quiz, error) {
	m.mu.Lock()
	out := []models.Quiz{}
	for _, q := range m.quizzes {
		if q.OwnerID == ownerID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	hook := m.afterList
	m.afterList = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memRepo) UpdateVisibility(_ context.Context, id string, v models.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return apperr.NotFound("quiz not found")
	}
	q.Visibility = v
	return nil
}

func (m *memRepo) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return apperr.NotFound("quiz not found")
	}
	delete(m.quizzes, id)
	delete(m.questions, id)
	return nil
}

func (m *memRepo) CreateQuestion(_ context.Context, quizID string, position int, content models.QuestionContent) (*models.Question, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[quizID]; !ok {
		return nil, false, apperr.NotFound("quiz not found")
	}
	for _, q := range m.questions[quizID] {
		if q.Position == position {
			cp := q
			return &cp, false, nil
		}
	}
	m.questionWrite++
	q := models.Question{
		ID:        m.nextID("question"),
		QuizID:    quizID,
		Position:  position,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.questions[quizID] = append(m.questions[quizID], q)
	sort.Slice(m.questions[quizID], func(i, j int) bool {
		return m.questions[quizID][i].Position < m.questions[quizID][j].Position
	})
	return &q, true, nil
}

func (m *memRepo) ListQuestions(_ context.Context, quizID string) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Question, len(m.questions[quizID]))
	for i, q := range m.questions[quizID] {
		out[i] = q
		if q.SubmittedAnswer != nil {
			v := *q.SubmittedAnswer
			out[i].SubmittedAnswer = &v
		}
	}
	return out, nil
}

func (m *memRepo) SubmitAnswer(_ context.Context, quizID, questionID string, answer int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return false, m.submitErr
	}
	qs := m.questions[quizID]
	for i := range qs {
		if qs[i].ID != questionID {
			continue
		}
		if qs[i].SubmittedAnswer != nil && *qs[i].SubmittedAnswer != answer {
			return false, nil
		}
		m.submitWrites++
		v := answer
		qs[i].SubmittedAnswer = &v
		return true, nil
	}
	return false, nil
}

func (m *memRepo) questionCount(quizID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions[quizID])
}

// fakeGenerator returns four-option questions whose correct answer is 1.
// When gate is set every call blocks until it is closed.
type fakeGenerator struct {
	calls atomic.Int32
	gate  chan struct{}

	mu        sync.Mutex
	err       error
	deadlines []bool
}

// hadDeadline reports whether the ctx of each call carried a deadline.
func (f *fakeGenerator) hadDeadline() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.deadlines...)
}

func (f *fakeGenerator) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeGenerator) Generate(ctx context.Context, topics []models.Topic, history []models.Question) (*models.QuestionContent, error) {
	n := f.calls.Add(1)
	_, ok := ctx.Deadline()
	f.mu.Lock()
	f.deadlines = append(f.deadlines, ok)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	difficulty := 50
	return &models.QuestionContent{
		Question:      fmt.Sprintf("Question %d: what is %d + 1?", n, len(history)),
		Options:       []string{"0", "1", "2", "3"},
		CorrectAnswer: 1,
		Explanation:   "count up by one",
		Difficulty:    &difficulty,
		TopicIndex:    0,
	}, nil
}

func errUpstream() error {
	return apperr.Generation(apperr.ReasonUpstreamUnavailable, context.DeadlineExceeded)
}
