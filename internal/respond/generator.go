// Package respond turns search results and download links into the final
// assistant answer.
package respond

import (
	"context"
	"log/slog"

	"github.com/AviroopPaul/atlas-ai/internal/intent"
	"github.com/AviroopPaul/atlas-ai/internal/llm"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

const (
	retrievalTemperature = 0.7
	retrievalMaxTokens   = 500

	informationTemperature = 0.5
	informationMaxTokens   = 1000
)

// Chatter is the interface for chat completion.
type Chatter interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Generator produces the assistant answer for a classified query.
type Generator struct {
	client Chatter
	model  string
}

// NewGenerator creates a Generator using the given chat client and model name.
func NewGenerator(client Chatter, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Generate returns the markdown answer for the query. For file retrieval the
// answer presents the download links in fileURLs; for information queries it
// answers from the best-matching result. Zero results return the fixed
// not-found message for both intents without calling the model. history is
// spliced between the system prompt and the current query. Generate never
// fails: LLM errors degrade to a fixed message or a plain link list.
func (g *Generator) Generate(ctx context.Context, query string, results []vector.Result, in intent.Intent, history []llm.Message, fileURLs map[string]string) string {
	if len(results) == 0 {
		return NoContextMessage
	}
	if in == intent.IntentFileRetrieval && len(fileURLs) > 0 {
		return g.retrieval(ctx, query, results[0].Document, history, fileURLs)
	}
	return g.information(ctx, query, results, history)
}

func (g *Generator) retrieval(ctx context.Context, query, passage string, history []llm.Message, fileURLs map[string]string) string {
	answer, err := g.complete(ctx, buildRetrievalPrompt(fileURLs, passage), query, history, retrievalTemperature, retrievalMaxTokens)
	if err != nil {
		slog.Warn("retrieval answer generation failed, returning plain link list", "error", err)
		return "Here are your files:\n\n" + linkList(fileURLs)
	}
	return answer
}

func (g *Generator) information(ctx context.Context, query string, results []vector.Result, history []llm.Message) string {
	// Only the single best passage goes to the model; the rest rank sources.
	answer, err := g.complete(ctx, buildInformationPrompt(results[0].Document), query, history, informationTemperature, informationMaxTokens)
	if err != nil {
		slog.Warn("information answer generation failed", "error", err)
		return NoContextMessage
	}
	return answer
}

func (g *Generator) complete(ctx context.Context, system, query string, history []llm.Message, temperature float64, maxTokens int) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: query})

	return g.client.Complete(ctx, llm.ChatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}
