package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
)

// CategoryLister lists the categories offered by the question source.
type CategoryLister interface {
	FetchCategories(ctx context.Context) ([]domain.Category, error)
}

// NewRouter wires the REST routes and the quiz websocket onto one mux.
func NewRouter(service *app.QuizService, categories CategoryLister, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	api := &apiHandler{service: service, categories: categories, logger: logger.With("component", "http")}
	ws := NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/categories", api.listCategories)
	mux.HandleFunc("/score", api.score)
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}

type apiHandler struct {
	service    *app.QuizService
	categories CategoryLister
	logger     logging.Logger
}

func (h *apiHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	categories, err := h.categories.FetchCategories(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "category list failed", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, domain.ErrorKind(err), domain.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *apiHandler) score(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.service.Score(r.Context()))
	case http.MethodDelete:
		if err := h.service.ResetScore(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", domain.UserMessage(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorPayload{Kind: kind, Message: message})
}
