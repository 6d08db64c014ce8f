// Package httpapi exposes the REST and chat endpoints. Authentication runs
// before every /api handler; ownership failures surface as 404 so existence
// never leaks across users.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mreid/taskbot/internal/chat"
	"github.com/mreid/taskbot/internal/db"
	"github.com/mreid/taskbot/internal/llm"
)

type Server struct {
	db   *db.DB
	chat *chat.Service
}

// NewServer wires the routes and middleware into a ready handler.
func NewServer(database *db.DB, chatSvc *chat.Service, jwtSecret string) http.Handler {
	s := &Server{db: database, chat: chatSvc}
	auth := NewAuthenticator(jwtSecret)

	api := http.NewServeMux()

	// Task CRUD
	api.HandleFunc("POST /api/tasks", s.handleCreateTask)
	api.HandleFunc("GET /api/tasks", s.handleListTasks)
	api.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	api.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	api.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	api.HandleFunc("PATCH /api/tasks/{id}/complete", s.handleToggleTask)
	api.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)

	// Chat
	api.HandleFunc("POST /api/chat/conversations", s.handleCreateConversation)
	api.HandleFunc("GET /api/chat/conversations", s.handleListConversations)
	api.HandleFunc("GET /api/chat/conversations/{id}", s.handleGetConversation)
	api.HandleFunc("DELETE /api/chat/conversations/{id}", s.handleDeleteConversation)
	api.HandleFunc("GET /api/chat/conversations/{id}/messages", s.handleGetMessages)
	api.HandleFunc("POST /api/chat/conversations/{id}/messages", s.handleSendMessage)
	api.HandleFunc("POST /api/chat/message", s.handleQuickChat)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/api/", auth.Middleware(api))

	return chainMiddlewares(root, withCORS, withLogging)
}

// --- shared helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

// writeError maps internal failures to stable responses. Raw vendor or
// database error text never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var verr *db.ValidationError
	switch {
	case errors.Is(err, db.ErrNotFound):
		errorJSON(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.As(err, &verr):
		errorJSON(w, http.StatusUnprocessableEntity, "validation_error", verr.Error())
	case errors.Is(err, llm.ErrRateLimited):
		errorJSON(w, http.StatusTooManyRequests, "api_quota_exceeded",
			"AI service quota has been exceeded. Please try again later.")
	default:
		errorJSON(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}

// writeAgentError is writeError plus the chat-turn rule: any failure to
// reach the model is a retryable upstream error.
func writeAgentError(w http.ResponseWriter, err error) {
	var verr *db.ValidationError
	switch {
	case errors.Is(err, db.ErrNotFound), errors.As(err, &verr), errors.Is(err, llm.ErrRateLimited):
		writeError(w, err)
	default:
		errorJSON(w, http.StatusBadGateway, "agent_error", "Failed to process your request. Please try again.")
	}
}
