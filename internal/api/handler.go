// Package api exposes the HTTP surface: file management, query, and
// conversation endpoints, plus the MCP server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AviroopPaul/atlas-ai/internal/config"
	"github.com/AviroopPaul/atlas-ai/internal/ingest"
	"github.com/AviroopPaul/atlas-ai/internal/objectstore"
	"github.com/AviroopPaul/atlas-ai/internal/query"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

// ObjectStore abstracts blob storage for the API layer.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*objectstore.Object, error)
	Delete(ctx context.Context, storageID, key string) error
	AuthorizedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// VectorAdmin abstracts collection lifecycle for the API layer.
type VectorAdmin interface {
	EnsureCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
}

// Asker runs the query pipeline.
type Asker interface {
	Ask(ctx context.Context, userID, conversationID int64, q string) (query.Answer, error)
}

// AppDeps holds the dependencies for the HTTP handler.
type AppDeps struct {
	Store   *storage.Store
	Objects ObjectStore
	Vectors VectorAdmin
	Queue   *ingest.Queue
	Asker   Asker
	Upload  config.UploadConfig
}

// NewAppHandler returns the HTTP handler for the full API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Store))

		r.Post("/files/upload", handleUpload(deps))
		r.Get("/files", handleListFiles(deps))
		r.Get("/files/{id}", handleGetFile(deps))
		r.Delete("/files/{id}", handleDeleteFile(deps))

		r.Post("/query", handleQuery(deps))

		r.Get("/conversations", handleListConversations(deps))
		r.Get("/conversations/{id}/messages", handleListMessages(deps))
		r.Delete("/conversations/{id}", handleDeleteConversation(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
