package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AviroopPaul/atlas-ai/internal/query"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

const maxQueryBodySize = 1 << 20 // 1MB

type queryRequest struct {
	Query          string `json:"query"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

type queryResponse struct {
	Response       string         `json:"response"`
	Sources        []query.Source `json:"sources"`
	Intent         string         `json:"intent"`
	ConversationID int64          `json:"conversation_id"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodySize)

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		answer, err := deps.Asker.Ask(r.Context(), user.ID, req.ConversationID, req.Query)
		if errors.Is(err, query.ErrNoFilesUploaded) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files uploaded yet; upload a document first")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "answering query: %v", err)
			return
		}

		sources := answer.Sources
		if sources == nil {
			sources = []query.Source{}
		}
		writeJSON(w, queryResponse{
			Response:       answer.Markdown,
			Sources:        sources,
			Intent:         string(answer.Intent),
			ConversationID: answer.ConversationID,
		})
	}
}

type conversationResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type messageResponse struct {
	ID        int64           `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	Intent    string          `json:"intent,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func handleListConversations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)

		convs, err := deps.Store.ListConversations(user.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing conversations: %v", err)
			return
		}

		out := make([]conversationResponse, len(convs))
		for i, c := range convs {
			out[i] = conversationResponse{
				ID:        c.ID,
				Title:     c.Title,
				CreatedAt: c.CreatedAt.Format(time.RFC3339),
				UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, out)
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid conversation id")
			return
		}

		// Ownership check before exposing messages.
		if _, err := deps.Store.GetConversation(id, user.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "conversation not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading conversation: %v", err)
			return
		}

		msgs, err := deps.Store.ListMessages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing messages: %v", err)
			return
		}

		out := make([]messageResponse, len(msgs))
		for i, m := range msgs {
			out[i] = messageResponse{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				Intent:    m.Intent,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			}
			if m.Sources != "" {
				out[i].Sources = json.RawMessage(m.Sources)
			}
		}
		writeJSON(w, out)
	}
}

func handleDeleteConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		id, err := parseID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid conversation id")
			return
		}

		err = deps.Store.DeleteConversation(id, user.ID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting conversation: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
