package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mreid/taskbot/internal/db"
)

type conversationCreateRequest struct {
	Title string `json:"title"`
}

type chatMessageRequest struct {
	Content string `json:"content"`
}

type chatTurnResponse struct {
	Response       string       `json:"response"`
	ConversationID int64        `json:"conversation_id"`
	Messages       []db.Message `json:"messages"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationCreateRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means default title
	}
	conv, err := s.db.CreateConversation(UserID(r.Context()), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	convs, err := s.db.ListConversations(UserID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []db.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "total": len(convs)})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	conv, err := s.db.GetConversation(UserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteConversation(UserID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// Ownership gate before touching the transcript.
	if _, err := s.db.GetConversation(UserID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 50)
	msgs, err := s.db.RecentMessages(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []db.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	result, err := s.chat.SendMessage(r.Context(), UserID(r.Context()), id, req.Content)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatTurnResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID,
		Messages:       result.Messages,
	})
}

func (s *Server) handleQuickChat(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	result, err := s.chat.QuickChat(r.Context(), UserID(r.Context()), req.Content)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatTurnResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID,
		Messages:       result.Messages,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
