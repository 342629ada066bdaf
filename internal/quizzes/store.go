package quizzes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/models"
)

// Repository is the durable quiz store. Every method is atomic at the
// single-row level; nothing spans a quiz and its questions.
type Repository interface {
	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	GetQuiz(ctx context.Context, id string) (*models.Quiz, error)
	ListQuizzesByOwner(ctx context.Context, ownerID string) ([]models.Quiz, error)
	UpdateVisibility(ctx context.Context, id string, visibility models.Visibility) error
	DeleteQuiz(ctx context.Context, id string) error

	// CreateQuestion stores content at the given position. If the slot is
	// already taken it returns the existing row and created=false.
	CreateQuestion(ctx context.Context, quizID string, position int, content models.QuestionContent) (q *models.Question, created bool, err error)
	ListQuestions(ctx context.Context, quizID string) ([]models.Question, error)
	// SubmitAnswer records an answer unless a different one is already
	// stored. It reports whether the stored answer now equals answer.
	SubmitAnswer(ctx context.Context, quizID, questionID string, answer int) (bool, error)
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Quizzes ─────────────────────────────────────────────

func (s *Store) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	topics, err := json.Marshal(quiz.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO quizzes (id, title, owner_id, topics, num_questions, visibility)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		quiz.ID, quiz.Title, quiz.OwnerID, topics, quiz.NumQuestions, quiz.Visibility,
	).Scan(&quiz.CreatedAt)
	if err != nil {
		return apperr.Persistence("create quiz", err)
	}
	return nil
}

const quizColumns = `id, title, owner_id, topics, num_questions, visibility, created_at`

func (s *Store) GetQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("quiz not found")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("quiz not found")
	}
	if err != nil {
		return nil, apperr.Persistence("get quiz", err)
	}
	return quiz, nil
}

func (s *Store) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]models.Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, apperr.Persistence("list quizzes", err)
	}
	defer rows.Close()

	quizzes := []models.Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, apperr.Persistence("scan quiz", err)
		}
		quizzes = append(quizzes, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list quizzes", err)
	}
	return quizzes, nil
}

func (s *Store) UpdateVisibility(ctx context.Context, id string, visibility models.Visibility) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET visibility = $1 WHERE id = $2`, visibility, id)
	if err != nil {
		return apperr.Persistence("update visibility", err)
	}
	return requireRow(res, "quiz not found")
}

// DeleteQuiz removes the quiz; its questions go with it (ON DELETE CASCADE).
func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return apperr.Persistence("delete quiz", err)
	}
	return requireRow(res, "quiz not found")
}

// ── Questions ───────────────────────────────────────────

const questionColumns = `id, quiz_id, position, content, submitted_answer, created_at`

func (s *Store) CreateQuestion(ctx context.Context, quizID string, position int, content models.QuestionContent) (*models.Question, bool, error) {
	body, err := json.Marshal(content)
	if err != nil {
		return nil, false, fmt.Errorf("marshal question content: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO questions (id, quiz_id, position, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+questionColumns,
		uuid.NewString(), quizID, position, body,
	)
	q, err := scanQuestion(row)
	if err == nil {
		return q, true, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			existing, getErr := s.questionAt(ctx, quizID, position)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		case pqForeignKeyViolation:
			return nil, false, apperr.NotFound("quiz not found")
		}
	}
	return nil, false, apperr.Persistence("create question", err)
}

func (s *Store) questionAt(ctx context.Context, quizID string, position int) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = $1 AND position = $2`,
		quizID, position,
	)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, apperr.Persistence("get question", err)
	}
	return q, nil
}

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = $1 ORDER BY position ASC`,
		quizID,
	)
	if err != nil {
		return nil, apperr.Persistence("list questions", err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, apperr.Persistence("scan question", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list questions", err)
	}
	return questions, nil
}

func (s *Store) SubmitAnswer(ctx context.Context, quizID, questionID string, answer int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET submitted_answer = $3
		 WHERE id = $1 AND quiz_id = $2
		   AND (submitted_answer IS NULL OR submitted_answer = $3)`,
		questionID, quizID, answer,
	)
	if err != nil {
		return false, apperr.Persistence("submit answer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence("submit answer", err)
	}
	return n == 1, nil
}

// ── Scanning ────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row scanner) (*models.Quiz, error) {
	var q models.Quiz
	var topics []byte
	if err := row.Scan(&q.ID, &q.Title, &q.OwnerID, &topics, &q.NumQuestions, &q.Visibility, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(topics, &q.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	return &q, nil
}

func scanQuestion(row scanner) (*models.Question, error) {
	var q models.Question
	var content []byte
	var submitted sql.NullInt64
	var createdAt time.Time
	if err := row.Scan(&q.ID, &q.QuizID, &q.Position, &content, &submitted, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &q.Content); err != nil {
		return nil, fmt.Errorf("decode question content: %w", err)
	}
	if submitted.Valid {
		v := int(submitted.Int64)
		q.SubmittedAnswer = &v
	}
	q.CreatedAt = createdAt.UTC()
	return &q, nil
}

func requireRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Persistence("rows affected", err)
	}
	if n == 0 {
		return apperr.NotFound("%s", msg)
	}
	return nil
}
