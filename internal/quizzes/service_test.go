package quizzes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/models"
)

const (
	owner    = "user-owner"
	stranger = "user-stranger"
)

func intPtr(i int) *int { return &i }

type fixture struct {
	repo  *memRepo
	gen   *fakeGenerator
	cache *MemoryListCache
	svc   *Service
}

func newFixture(t *testing.T, prefetch bool) *fixture {
	t.Helper()
	f := &fixture{repo: newMemRepo(), gen: &fakeGenerator{}, cache: NewMemoryListCache(time.Minute)}
	f.svc = NewService(f.repo, f.gen, f.cache, ServiceConfig{PrefetchNext: prefetch, PrefetchTimeout: time.Second}, logger.Nop())
	t.Cleanup(f.svc.Wait)
	return f
}

func (f *fixture) createQuiz(t *testing.T, n int, visibility models.Visibility) *models.Quiz {
	t.Helper()
	quiz, err := f.svc.CreateQuiz(context.Background(), owner, models.CreateQuizRequest{
		Title:        "Algebra practice",
		Topics:       []models.Topic{{Topic: "algebra"}},
		NumQuestions: n,
		Visibility:   visibility,
	})
	require.NoError(t, err)
	return quiz
}

func TestCreateQuiz_Validation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	algebra := []models.Topic{{Topic: "algebra"}}

	tests := []struct {
		name string
		user string
		req  models.CreateQuizRequest
		want error
	}{
		{"anonymous", "", models.CreateQuizRequest{Title: "t", Topics: algebra, NumQuestions: 3}, apperr.ErrAuthenticationRequired},
		{"blank title", owner, models.CreateQuizRequest{Title: "  ", Topics: algebra, NumQuestions: 3}, apperr.ErrValidation},
		{"zero questions", owner, models.CreateQuizRequest{Title: "t", Topics: algebra, NumQuestions: 0}, apperr.ErrValidation},
		{"too many questions", owner, models.CreateQuizRequest{Title: "t", Topics: algebra, NumQuestions: 21}, apperr.ErrValidation},
		{"no topics", owner, models.CreateQuizRequest{Title: "t", NumQuestions: 3}, apperr.ErrValidation},
		{"unknown topic", owner, models.CreateQuizRequest{Title: "t", Topics: []models.Topic{{Topic: "alchemy"}}, NumQuestions: 3}, apperr.ErrValidation},
		{"bad visibility", owner, models.CreateQuizRequest{Title: "t", Topics: algebra, NumQuestions: 3, Visibility: "friends"}, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateQuiz(ctx, tt.user, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	quizzes, err := f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, quizzes)
}

func TestCreateQuiz_DefaultsToPrivate(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.createQuiz(t, 3, "")
	assert.Equal(t, models.VisibilityPrivate, quiz.Visibility)
	assert.Equal(t, owner, quiz.OwnerID)
}

func TestScenarioA_FirstSessionGeneratesOneQuestion(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)

	view, err := f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, string(StateActive), view.State)
	assert.Equal(t, 0, view.Index)
	require.NotNil(t, view.Current)
	assert.False(t, view.Current.Revealed)
	assert.Nil(t, view.Current.CorrectAnswer)
	assert.Empty(t, view.Current.Explanation)
	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Equal(t, 1, f.repo.questionCount(quiz.ID))

	// Reloading resumes the stored question without generating again.
	view, err = f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Index)
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestScenarioB_CorrectAnswerRevealsAndScores(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
	require.NoError(t, err)

	resp, err := f.svc.SubmitAnswer(context.Background(), owner, quiz.ID, view.Current.ID, intPtr(1))
	require.NoError(t, err)

	assert.True(t, resp.Correct)
	assert.Equal(t, 1, resp.CorrectAnswer)
	assert.Equal(t, 1, resp.Session.Score)
	require.NotNil(t, resp.Session.Current)
	assert.True(t, resp.Session.Current.Revealed)
	assert.Equal(t, 1, *resp.Session.Current.CorrectAnswer)
	assert.Equal(t, "count up by one", resp.Session.Current.Explanation)

	questions, _ := f.repo.ListQuestions(context.Background(), quiz.ID)
	require.NotNil(t, questions[0].SubmittedAnswer)
	assert.Equal(t, 1, *questions[0].SubmittedAnswer)
}

func TestScenarioC_OutOfRangeAnswerLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
	require.NoError(t, err)

	for _, bad := range []int{5, 4, -1} {
		_, err = f.svc.SubmitAnswer(context.Background(), owner, quiz.ID, view.Current.ID, intPtr(bad))
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	_, err = f.svc.SubmitAnswer(context.Background(), owner, quiz.ID, view.Current.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Zero(t, f.repo.submitWrites)
	after, err := f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Index, after.Index)
	assert.Equal(t, 0, after.Score)
	assert.False(t, after.Current.Revealed)
}

func playQuiz(t *testing.T, f *fixture, quiz *models.Quiz, answers []int) *models.SubmitAnswerResponse {
	t.Helper()
	ctx := context.Background()
	var last *models.SubmitAnswerResponse
	for i, a := range answers {
		view, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
		require.NoError(t, err, "question %d", i)
		require.Equal(t, i, view.Index)

		last, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(a))
		require.NoError(t, err, "answer %d", i)
		f.svc.Wait()
	}
	return last
}

func TestScenarioD_LastAnswerFinishesWithoutGenerating(t *testing.T) {
	for _, prefetch := range []bool{false, true} {
		f := newFixture(t, prefetch)
		quiz := f.createQuiz(t, 3, models.VisibilityPrivate)

		last := playQuiz(t, f, quiz, []int{1, 0, 1})
		f.svc.Wait()

		assert.Equal(t, string(StateFinished), last.Session.State)
		assert.Equal(t, 2, last.Session.Score)
		require.NotNil(t, last.Session.FinalScore)
		assert.InDelta(t, 2.0/3.0, *last.Session.FinalScore, 1e-9)
		require.NotNil(t, last.Session.Passed)
		assert.True(t, *last.Session.Passed)

		assert.Equal(t, int32(3), f.gen.calls.Load(), "prefetch=%v", prefetch)
		assert.Equal(t, 3, f.repo.questionCount(quiz.ID))

		_, err := f.svc.NextQuestion(context.Background(), owner, quiz.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

		view, err := f.svc.LoadOrCreateSession(context.Background(), owner, quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, string(StateFinished), view.State)
		assert.Equal(t, int32(3), f.gen.calls.Load())
	}
}

func TestScenarioE_PrivateQuizHiddenFromOthers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)

	for _, user := range []string{stranger, ""} {
		_, err = f.svc.GetQuiz(ctx, user, quiz.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = f.svc.LoadOrCreateSession(ctx, user, quiz.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = f.svc.Review(ctx, user, quiz.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}

	_, err = f.svc.SubmitAnswer(ctx, stranger, quiz.ID, view.Current.ID, intPtr(1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.NextQuestion(ctx, "", quiz.ID)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationRequired)
	assert.ErrorIs(t, f.svc.DeleteQuiz(ctx, stranger, quiz.ID), apperr.ErrNotFound)
	assert.Zero(t, f.repo.submitWrites)
}

func TestPublicQuiz_ReadOnlyForOthers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPublic)

	// A viewer never triggers generation.
	view, err := f.svc.LoadOrCreateSession(ctx, stranger, quiz.ID)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	assert.True(t, view.ReviewPending)
	assert.Zero(t, f.gen.calls.Load())

	ownerView, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, stranger, quiz.ID, ownerView.Current.ID, intPtr(1))
	assert.ErrorIs(t, err, apperr.ErrAuthorizationDenied)
	_, err = f.svc.UpdateVisibility(ctx, stranger, quiz.ID, models.VisibilityPrivate)
	assert.ErrorIs(t, err, apperr.ErrAuthorizationDenied)

	detail, err := f.svc.GetQuiz(ctx, "", quiz.ID)
	require.NoError(t, err)
	assert.False(t, detail.IsOwner)
	require.NotNil(t, detail.Review)
	assert.True(t, detail.Review.ReadOnly)
	require.NotNil(t, detail.Session.Current)
	assert.Nil(t, detail.Session.Current.CorrectAnswer)
}

func TestSubmitAnswer_Idempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)

	first, err := f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(1))
	require.NoError(t, err)
	second, err := f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(1))
	require.NoError(t, err)

	assert.Equal(t, first.Correct, second.Correct)
	assert.Equal(t, 1, second.Session.Score)
	assert.Equal(t, 1, f.repo.submitWrites)

	_, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(2))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(5))
	assert.ErrorIs(t, err, apperr.ErrValidation, "range is checked before the stored answer")
	assert.Equal(t, 1, f.repo.submitWrites)

	questions, _ := f.repo.ListQuestions(ctx, quiz.ID)
	assert.Equal(t, 1, *questions[0].SubmittedAnswer)
}

func TestSubmitAnswer_UnknownQuestion(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	other := f.createQuiz(t, 3, models.VisibilityPrivate)
	otherView, err := f.svc.LoadOrCreateSession(ctx, owner, other.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, otherView.Current.ID, intPtr(1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.SubmitAnswer(ctx, owner, "missing", otherView.Current.ID, intPtr(1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubmitAnswer_PersistenceFailureIsNotCommitted(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)

	f.repo.submitErr = apperr.Persistence("submit answer", errors.New("connection reset"))
	_, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(1))
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	f.svc.Wait()

	after, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Score)
	assert.False(t, after.Current.Revealed)
	assert.Equal(t, 1, f.repo.questionCount(quiz.ID))

	f.repo.submitErr = nil
	resp, err := f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Session.Score)
}

func TestGenerationFailure_LeavesStateRetryable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 2, models.VisibilityPrivate)

	f.gen.setErr(apperr.Generation(apperr.ReasonUpstreamUnavailable, context.DeadlineExceeded))
	_, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Zero(t, f.repo.questionCount(quiz.ID))

	detail, err := f.svc.GetQuiz(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StateLoading), detail.Session.State)

	f.gen.setErr(nil)
	view, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StateActive), view.State)
	assert.Equal(t, 1, f.repo.questionCount(quiz.ID))
}

func TestNextQuestion_ReturnsPendingQuestion(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)

	first, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
	require.NoError(t, err)
	again, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Current.ID, again.Current.ID)
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestNextQuestion_ConcurrentCallsGenerateOnce(t *testing.T) {
	f := newFixture(t, false)
	f.gen.gate = make(chan struct{})
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := f.svc.NextQuestion(context.Background(), owner, quiz.ID)
			errs[i] = err
			if err == nil {
				ids[i] = view.Current.ID
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.gen.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Equal(t, 1, f.repo.questionCount(quiz.ID))
}

func TestQuestionCountNeverExceedsRequested(t *testing.T) {
	f := newFixture(t, true)
	quiz := f.createQuiz(t, 2, models.VisibilityPrivate)
	playQuiz(t, f, quiz, []int{0, 0})

	for i := 0; i < 3; i++ {
		_, err := f.svc.NextQuestion(context.Background(), owner, quiz.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	}
	f.svc.Wait()
	assert.Equal(t, 2, f.repo.questionCount(quiz.ID))

	review, err := f.svc.Review(context.Background(), owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, review.Score)
	assert.Equal(t, 0.0, review.Fraction)
}

func TestPrefetch_GeneratesNextAfterGrading(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)
	view, err := f.svc.LoadOrCreateSession(ctx, owner, quiz.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(1))
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 2, f.repo.questionCount(quiz.ID))

	next, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, int32(2), f.gen.calls.Load())

	// The first question came from a request without a deadline; the
	// prefetch runs under PrefetchTimeout.
	assert.Equal(t, []bool{false, true}, f.gen.hadDeadline())
}

func TestNextQuestion_KeepsCallerDeadline(t *testing.T) {
	f := newFixture(t, false)
	quiz := f.createQuiz(t, 3, models.VisibilityPrivate)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.gen.hadDeadline())
}

func TestScoreIsMonotonicAndMatchesStoredAnswers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 5, models.VisibilityPrivate)

	prev := 0
	for i, a := range []int{1, 0, 1, 1, 3} {
		view, err := f.svc.NextQuestion(ctx, owner, quiz.ID)
		require.NoError(t, err)
		resp, err := f.svc.SubmitAnswer(ctx, owner, quiz.ID, view.Current.ID, intPtr(a))
		require.NoError(t, err, "answer %d", i)
		assert.GreaterOrEqual(t, resp.Session.Score, prev)
		prev = resp.Session.Score
	}

	review, err := f.svc.Review(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, review.Score)
	assert.Equal(t, prev, review.Score)
	assert.InDelta(t, 0.6, review.Fraction, 1e-9)
}

func TestListQuizzes_CachedAndInvalidated(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	first := f.createQuiz(t, 3, models.VisibilityPrivate)

	list, err := f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, cached := f.cache.Get(ctx, owner)
	assert.True(t, cached)

	second := f.createQuiz(t, 3, models.VisibilityPrivate)
	_, cached = f.cache.Get(ctx, owner)
	assert.False(t, cached, "create must invalidate")

	list, err = f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	_, err = f.svc.UpdateVisibility(ctx, owner, first.ID, models.VisibilityPublic)
	require.NoError(t, err)
	_, cached = f.cache.Get(ctx, owner)
	assert.False(t, cached, "visibility change must invalidate")

	_, err = f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteQuiz(ctx, owner, first.ID))
	_, cached = f.cache.Get(ctx, owner)
	assert.False(t, cached, "delete must invalidate")

	list, err = f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestListQuizzes_InvalidationDuringReadIsNotLost(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var created *models.Quiz
	f.repo.afterList = func() {
		created = f.createQuiz(t, 3, models.VisibilityPrivate)
	}

	list, err := f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list, "snapshot was taken before the create")
	_, cached := f.cache.Get(ctx, owner)
	assert.False(t, cached, "a list read before an invalidation must not be cached")

	list, err = f.svc.ListQuizzes(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestReviewItem_RandomAccess(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	quiz := f.createQuiz(t, 3, models.VisibilityPublic)
	playQuiz(t, f, quiz, []int{1, 2})

	item, err := f.svc.ReviewItem(ctx, stranger, quiz.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Index)
	assert.False(t, item.Correct)
	assert.Equal(t, 2, *item.SubmittedAnswer)

	item, err = f.svc.ReviewItem(ctx, stranger, quiz.ID, 0)
	require.NoError(t, err)
	assert.True(t, item.Correct)

	_, err = f.svc.ReviewItem(ctx, stranger, quiz.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.ReviewItem(ctx, stranger, quiz.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
