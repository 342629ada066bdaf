package quizzes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quizy/backend/internal/apperr"
	"github.com/quizy/backend/internal/generator"
	"github.com/quizy/backend/internal/logger"
	"github.com/quizy/backend/internal/middleware"
	"github.com/quizy/backend/internal/models"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log.With("service", "QuizHandler")}
}

// RegisterRoutes mounts the quiz API. protected requires a token, public
// accepts anonymous callers.
func (h *Handler) RegisterRoutes(public, protected *mux.Router) {
	public.HandleFunc("/topics", h.ListTopics).Methods("GET")
	public.HandleFunc("/quizzes/{id}", h.GetQuiz).Methods("GET")
	public.HandleFunc("/quizzes/{id}/session", h.LoadSession).Methods("POST")
	public.HandleFunc("/quizzes/{id}/review", h.GetReview).Methods("GET")
	public.HandleFunc("/quizzes/{id}/review/{index}", h.GetReviewItem).Methods("GET")

	protected.HandleFunc("/quizzes", h.CreateQuiz).Methods("POST")
	protected.HandleFunc("/quizzes", h.ListQuizzes).Methods("GET")
	protected.HandleFunc("/quizzes/{id}", h.DeleteQuiz).Methods("DELETE")
	protected.HandleFunc("/quizzes/{id}/visibility", h.UpdateVisibility).Methods("PATCH")
	protected.HandleFunc("/quizzes/{id}/questions", h.NextQuestion).Methods("POST")
	protected.HandleFunc("/quizzes/{id}/questions/{questionID}/answer", h.SubmitAnswer).Methods("POST")
}

func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generator.Catalogue())
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: string(apperr.KindValidation)})
		return
	}

	quiz, err := h.service.CreateQuiz(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.CreateQuizResponse{QuizID: quiz.ID, Quiz: *quiz})
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetQuiz(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuiz(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	var req models.VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: string(apperr.KindValidation)})
		return
	}

	quiz, err := h.service.UpdateVisibility(r.Context(), userID(r), mux.Vars(r)["id"], req.Visibility)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.LoadOrCreateSession(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.NextQuestion(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Code: string(apperr.KindValidation)})
		return
	}

	vars := mux.Vars(r)
	resp, err := h.service.SubmitAnswer(r.Context(), userID(r), vars["id"], vars["questionID"], req.Answer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.Review(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) GetReviewItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question index", Code: string(apperr.KindValidation)})
		return
	}

	item, err := h.service.ReviewItem(r.Context(), userID(r), vars["id"], index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func userID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, models.ErrorResponse{
		Error:  apperr.PublicMessage(err),
		Code:   string(apperr.KindOf(err)),
		Reason: apperr.ReasonOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
