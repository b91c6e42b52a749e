// Package intent classifies user queries into the two modes the query
// pipeline supports: retrieving a file or answering from document content.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/AviroopPaul/atlas-ai/internal/llm"
)

// Intent is the closed set of query intents.
type Intent string

const (
	IntentFileRetrieval    Intent = "file_retrieval"
	IntentInformationQuery Intent = "information_query"
)

const (
	classifyTemperature = 0.1
	classifyMaxTokens   = 150
)

// Chatter is the interface for chat completion.
type Chatter interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Classification is the structured classifier output. TargetFile is empty
// when the query does not name a specific file.
type Classification struct {
	Intent     Intent
	TargetFile string
}

// Classifier uses an LLM to classify queries.
type Classifier struct {
	client Chatter
	model  string
}

// NewClassifier creates a Classifier using the given chat client and model name.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify analyses the query against the user's filenames. On any failure
// (LLM error, malformed JSON, unknown intent) it falls back to an
// information query — the pipeline must never block on classification.
func (c *Classifier) Classify(ctx context.Context, query string, filenames []string) Classification {
	result, err := c.classify(ctx, query, filenames)
	if err != nil {
		slog.Warn("intent classification failed, falling back to information query", "error", err)
		return Classification{Intent: IntentInformationQuery}
	}
	return result
}

func (c *Classifier) classify(ctx context.Context, query string, filenames []string) (Classification, error) {
	raw, err := c.client.Complete(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: BuildPrompt(filenames)},
			{Role: "user", Content: query},
		},
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return Classification{}, err
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		TargetFile *string `json:"target_file"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return Classification{}, err
	}

	result := Classification{Intent: Intent(parsed.Intent)}
	if parsed.TargetFile != nil {
		result.TargetFile = strings.TrimSpace(*parsed.TargetFile)
	}
	if result.Intent != IntentFileRetrieval && result.Intent != IntentInformationQuery {
		return Classification{Intent: IntentInformationQuery}, nil
	}
	return result, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// wrap around JSON output despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
