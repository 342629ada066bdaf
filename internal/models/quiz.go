package models

import "time"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Topic is one selected {topic, subtopic} pair. A nil Subtopic means the
// whole topic.
type Topic struct {
	Topic    string  `json:"topic"`
	Subtopic *string `json:"subtopic"`
}

// Label renders the pair for prompts and logs, e.g. "algebra/linear-equations".
func (t Topic) Label() string {
	if t.Subtopic == nil || *t.Subtopic == "" {
		return t.Topic
	}
	return t.Topic + "/" + *t.Subtopic
}

type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	OwnerID      string     `json:"owner_id"`
	Topics       []Topic    `json:"topics"`
	NumQuestions int        `json:"num_questions"`
	Visibility   Visibility `json:"visibility"`
	CreatedAt    time.Time  `json:"created_at"`
}

// QuestionContent is what the generator produces. Field names follow the
// structured-output schema given to the model.
type QuestionContent struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	// Difficulty is set by the generator after validation; nil when it
	// was never recorded.
	Difficulty    *int     `json:"difficulty,omitempty"`
	TopicIndex    int      `json:"topicIndex"`
}

type Question struct {
	ID              string          `json:"id"`
	QuizID          string          `json:"quiz_id"`
	Position        int             `json:"position"`
	Content         QuestionContent `json:"content"`
	SubmittedAnswer *int            `json:"submitted_answer"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (q Question) Answered() bool {
	return q.SubmittedAnswer != nil
}

func (q Question) Correct() bool {
	return q.SubmittedAnswer != nil && *q.SubmittedAnswer == q.Content.CorrectAnswer
}

// ── API Request/Response Types ────────────────────────────

type CreateQuizRequest struct {
	Title        string     `json:"title"`
	Topics       []Topic    `json:"topics"`
	NumQuestions int        `json:"num_questions"`
	Visibility   Visibility `json:"visibility"`
}

type VisibilityRequest struct {
	Visibility Visibility `json:"visibility"`
}

type SubmitAnswerRequest struct {
	Answer *int `json:"answer"`
}

// QuestionView is a question as shown while a quiz is in progress: the
// correct answer and explanation stay hidden until the question is revealed.
type QuestionView struct {
	ID              string   `json:"id"`
	Position        int      `json:"position"`
	Question        string   `json:"question"`
	Options         []Option `json:"options"`
	Difficulty      *int     `json:"difficulty,omitempty"`
	Revealed        bool     `json:"revealed"`
	SubmittedAnswer *int     `json:"submitted_answer,omitempty"`
	CorrectAnswer   *int     `json:"correct_answer,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type SessionView struct {
	QuizID        string        `json:"quiz_id"`
	State         string        `json:"state"`
	Index         int           `json:"index"`
	Total         int           `json:"total"`
	Answered      int           `json:"answered"`
	Score         int           `json:"score"`
	FinalScore    *float64      `json:"final_score,omitempty"`
	Passed        *bool         `json:"passed,omitempty"`
	Current       *QuestionView `json:"current,omitempty"`
	ReadOnly      bool          `json:"read_only"`
	ReviewPending bool          `json:"review_pending,omitempty"`
}

type SubmitAnswerResponse struct {
	Correct       bool        `json:"correct"`
	CorrectAnswer int         `json:"correct_answer"`
	Explanation   string      `json:"explanation"`
	Session       SessionView `json:"session"`
}

type ReviewItem struct {
	Index           int      `json:"index"`
	QuestionID      string   `json:"question_id"`
	Question        string   `json:"question"`
	Options         []Option `json:"options"`
	SubmittedAnswer *int     `json:"submitted_answer"`
	CorrectAnswer   int      `json:"correct_answer"`
	Answered        bool     `json:"answered"`
	Correct         bool     `json:"correct"`
	Explanation     string   `json:"explanation"`
}

type ReviewResponse struct {
	Quiz     Quiz         `json:"quiz"`
	Items    []ReviewItem `json:"items"`
	Score    int          `json:"score"`
	Total    int          `json:"total"`
	Fraction float64      `json:"fraction"`
	ReadOnly bool         `json:"read_only"`
}

type QuizDetailResponse struct {
	Quiz    Quiz            `json:"quiz"`
	IsOwner bool            `json:"is_owner"`
	Session *SessionView    `json:"session,omitempty"`
	Review  *ReviewResponse `json:"review,omitempty"`
}

type CreateQuizResponse struct {
	QuizID string `json:"quiz_id"`
	Quiz   Quiz   `json:"quiz"`
}

// OptionLabels renders options with letter labels A, B, C, ...
func OptionLabels(options []string) []Option {
	out := make([]Option, len(options))
	for i, text := range options {
		out[i] = Option{Label: string(rune('A' + i)), Text: text}
	}
	return out
}
