package quizzes

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/generator"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/models"
)

const (
	MinQuestions = 1
	MaxQuestions = 20
)

// QuestionGenerator produces the content of the next question.
type QuestionGenerator interface {
	Generate(ctx context.Context, topics []models.Topic, history []models.Question) (*models.QuestionContent, error)
}

type ServiceConfig struct {
	// PrefetchNext starts generating question k+1 as soon as question k
	// is graded.
	PrefetchNext    bool
	PrefetchTimeout time.Duration
}

// Service drives quiz sessions: it decides when to generate, persists
// questions and answers, and renders sessions and reviews.
type Service struct {
	repo  Repository
	gen   QuestionGenerator
	cache ListCache
	cfg   ServiceConfig
	log   *logger.Logger

	flight     singleflight.Group
	background sync.WaitGroup
}

func NewService(repo Repository, gen QuestionGenerator, cache ListCache, cfg ServiceConfig, log *logger.Logger) *Service {
	if cache == nil {
		cache = noopListCache{}
	}
	if cfg.PrefetchTimeout <= 0 {
		cfg.PrefetchTimeout = time.Minute
	}
	return &Service{
		repo:  repo,
		gen:   gen,
		cache: cache,
		cfg:   cfg,
		log:   log.With("service", "QuizService"),
	}
}

// Wait blocks until background prefetches have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// ── Quizzes ─────────────────────────────────────────────

func (s *Service) CreateQuiz(ctx context.Context, userID string, req models.CreateQuizRequest) (*models.Quiz, error) {
	if userID == "" {
		return nil, apperr.AuthenticationRequired()
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if req.NumQuestions < MinQuestions || req.NumQuestions > MaxQuestions {
		return nil, apperr.Validation("num_questions must be between %d and %d", MinQuestions, MaxQuestions)
	}
	if err := generator.ValidateTopics(req.Topics); err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, apperr.Validation("visibility must be 'private' or 'public'")
	}

	quiz := &models.Quiz{
		Title:        title,
		OwnerID:      userID,
		Topics:       req.Topics,
		NumQuestions: req.NumQuestions,
		Visibility:   visibility,
	}
	if err := s.repo.CreateQuiz(ctx, quiz); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, userID)

	s.log.Info("quiz created", "quiz_id", quiz.ID, "owner_id", userID, "num_questions", quiz.NumQuestions)
	return quiz, nil
}

// ListQuizzes returns the caller's quizzes, newest first.
func (s *Service) ListQuizzes(ctx context.Context, userID string) ([]models.Quiz, error) {
	if userID == "" {
		return nil, apperr.AuthenticationRequired()
	}
	if cached, ok := s.cache.Get(ctx, userID); ok {
		return cached, nil
	}
	version := s.cache.Version(ctx, userID)
	quizzes, err := s.repo.ListQuizzesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, userID, version, quizzes)
	return quizzes, nil
}

// GetQuiz returns the quiz with its current session, plus the review once
// the quiz is finished or when the caller is not the owner. It never
// generates.
func (s *Service) GetQuiz(ctx context.Context, userID, quizID string) (*models.QuizDetailResponse, error) {
	quiz, err := s.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(quiz, userID); err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	owner := quiz.OwnerID == userID
	session := NewSession(*quiz, questions)
	view := session.View(!owner)

	resp := &models.QuizDetailResponse{Quiz: *quiz, IsOwner: owner, Session: &view}
	if !owner || session.State() == StateFinished {
		review := BuildReview(*quiz, questions, !owner)
		resp.Review = &review
	}
	return resp, nil
}

func (s *Service) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteQuiz(ctx, quiz.ID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, quiz.OwnerID)
	s.log.Info("quiz deleted", "quiz_id", quiz.ID)
	return nil
}

func (s *Service) UpdateVisibility(ctx context.Context, userID, quizID string, visibility models.Visibility) (*models.Quiz, error) {
	if !visibility.Valid() {
		return nil, apperr.Validation("visibility must be 'private' or 'public'")
	}
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateVisibility(ctx, quiz.ID, visibility); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, quiz.OwnerID)
	quiz.Visibility = visibility
	return quiz, nil
}

// ── Session ─────────────────────────────────────────────

// LoadOrCreateSession rebuilds the session from stored questions. When the
// owner's session is waiting for a question, the question is generated and
// stored first. Other viewers of a public quiz get a read-only view.
func (s *Service) LoadOrCreateSession(ctx context.Context, userID, quizID string) (*models.SessionView, error) {
	quiz, err := s.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(quiz, userID); err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	owner := quiz.OwnerID == userID
	session := NewSession(*quiz, questions)
	if owner && session.State() == StateLoading {
		questions, err = s.ensureNext(ctx, quiz)
		if err != nil {
			return nil, err
		}
		// Another writer may have moved the quiz on meanwhile; the
		// stored questions then decide the state.
		if err := session.Attach(questions[len(questions)-1]); err != nil {
			session = NewSession(*quiz, questions)
		}
	}

	view := session.View(!owner)
	return &view, nil
}

// NextQuestion generates and stores the question after the last answered
// one. If an unanswered question is already stored it is returned instead,
// so retries never create a second question for the same slot.
func (s *Service) NextQuestion(ctx context.Context, userID, quizID string) (*models.SessionView, error) {
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.ensureNext(ctx, quiz)
	if err != nil {
		return nil, err
	}
	view := NewSession(*quiz, questions).View(false)
	return &view, nil
}

// ensureNext makes sure the quiz's next slot holds a question. Concurrent
// calls for one quiz share a single generation; the unique position in the
// store guards against callers in other processes.
func (s *Service) ensureNext(ctx context.Context, quiz *models.Quiz) ([]models.Question, error) {
	v, err, shared := s.flight.Do(quiz.ID, func() (any, error) {
		// Generation outlives an abandoned request but keeps the caller's
		// deadline; without one the generator's own timeout applies.
		ctx, cancel := detach(ctx)
		defer cancel()

		questions, err := s.repo.ListQuestions(ctx, quiz.ID)
		if err != nil {
			return nil, err
		}
		if n := len(questions); n > 0 && !questions[n-1].Answered() {
			return questions, nil
		}
		position := len(questions)
		if position >= quiz.NumQuestions {
			return nil, apperr.InvalidTransition("quiz already has all %d questions", quiz.NumQuestions)
		}

		start := time.Now()
		content, err := s.gen.Generate(ctx, quiz.Topics, questions)
		if err != nil {
			s.log.Warn("next question generation failed", "quiz_id", quiz.ID, "position", position, "error", err)
			return nil, err
		}

		q, created, err := s.repo.CreateQuestion(ctx, quiz.ID, position, *content)
		if err != nil {
			s.log.Error("generated question could not be stored", "quiz_id", quiz.ID, "position", position, "error", err)
			return nil, err
		}
		if !created {
			s.log.Info("question slot already filled", "quiz_id", quiz.ID, "position", position)
		} else {
			s.log.Info("question generated",
				"quiz_id", quiz.ID,
				"position", position,
				"difficulty", content.Difficulty,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		}
		return append(questions, *q), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("joined in-flight generation", "quiz_id", quiz.ID)
	}
	return v.([]models.Question), nil
}

// SubmitAnswer grades the current question with exactly one conditional
// write. Resubmitting the stored answer returns the stored result; a
// different answer for an answered question is rejected.
func (s *Service) SubmitAnswer(ctx context.Context, userID, quizID, questionID string, answer *int) (*models.SubmitAnswerResponse, error) {
	if answer == nil {
		return nil, apperr.Validation("answer is required")
	}
	option := *answer

	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	target := findQuestion(questions, questionID)
	if target == nil {
		return nil, apperr.NotFound("question not found")
	}
	if option < 0 || option >= len(target.Content.Options) {
		return nil, apperr.Validation("answer %d out of range, question has %d options", option, len(target.Content.Options))
	}
	if target.Answered() {
		if *target.SubmittedAnswer != option {
			return nil, apperr.InvalidTransition("question already answered")
		}
		return storedResult(quiz, questions, target), nil
	}

	session := NewSession(*quiz, questions)
	q, err := session.BeginSubmit(questionID, option)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.SubmitAnswer(ctx, quiz.ID, questionID, option)
	if err != nil {
		session.AbortSubmit()
		s.log.Error("answer could not be stored", "quiz_id", quiz.ID, "question_id", questionID, "error", err)
		return nil, err
	}
	if !stored {
		session.AbortSubmit()
		return nil, apperr.InvalidTransition("question already answered")
	}

	correct := session.CompleteSubmit(option)
	s.cache.Invalidate(ctx, quiz.OwnerID)

	s.log.Info("answer submitted",
		"quiz_id", quiz.ID,
		"position", q.Position,
		"correct", correct,
		"score", session.Score(),
	)

	resp := &models.SubmitAnswerResponse{
		Correct:       correct,
		CorrectAnswer: q.Content.CorrectAnswer,
		Explanation:   q.Content.Explanation,
		Session:       session.View(false),
	}

	// Prefetch only when advancing leaves the next slot empty.
	if s.cfg.PrefetchNext && session.State() == StateActive {
		if err := session.Advance(); err == nil && session.State() == StateLoading {
			s.prefetch(quiz)
		}
	}
	return resp, nil
}

func (s *Service) prefetch(quiz *models.Quiz) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PrefetchTimeout)
		defer cancel()
		if _, err := s.ensureNext(ctx, quiz); err != nil {
			s.log.Warn("prefetch failed", "quiz_id", quiz.ID, "error", err)
		}
	}()
}

// storedResult answers an idempotent resubmission from persisted state.
func storedResult(quiz *models.Quiz, questions []models.Question, q *models.Question) *models.SubmitAnswerResponse {
	return &models.SubmitAnswerResponse{
		Correct:       q.Correct(),
		CorrectAnswer: q.Content.CorrectAnswer,
		Explanation:   q.Content.Explanation,
		Session:       NewSession(*quiz, questions).View(false),
	}
}

// ── Review ──────────────────────────────────────────────

func (s *Service) Review(ctx context.Context, userID, quizID string) (*models.ReviewResponse, error) {
	quiz, questions, err := s.readable(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	review := BuildReview(*quiz, questions, quiz.OwnerID != userID)
	return &review, nil
}

func (s *Service) ReviewItem(ctx context.Context, userID, quizID string, index int) (*models.ReviewItem, error) {
	_, questions, err := s.readable(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	item, err := ReviewAt(questions, index)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ── Helpers ─────────────────────────────────────────────

func (s *Service) readable(ctx context.Context, userID, quizID string) (*models.Quiz, []models.Question, error) {
	quiz, err := s.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeRead(quiz, userID); err != nil {
		return nil, nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, nil, err
	}
	return quiz, questions, nil
}

func (s *Service) ownedQuiz(ctx context.Context, userID, quizID string) (*models.Quiz, error) {
	if userID == "" {
		return nil, apperr.AuthenticationRequired()
	}
	quiz, err := s.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := authorizeWrite(quiz, userID); err != nil {
		return nil, err
	}
	return quiz, nil
}

// detach drops the caller's cancellation but not its deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func findQuestion(questions []models.Question, id string) *models.Question {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i]
		}
	}
	return nil
}
