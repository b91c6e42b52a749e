// Package query runs the answer pipeline: classify the question, search the
// user's document collections, generate an answer, and persist the exchange.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AviroopPaul/atlas-ai/internal/intent"
	"github.com/AviroopPaul/atlas-ai/internal/llm"
	"github.com/AviroopPaul/atlas-ai/internal/objectstore"
	"github.com/AviroopPaul/atlas-ai/internal/respond"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

// ErrNoFilesUploaded is returned when the user has no documents to search.
var ErrNoFilesUploaded = errors.New("no files uploaded")

const (
	// resultsPerCollection bounds how many hits each collection contributes.
	resultsPerCollection = 3
	// maxResults caps the merged result list handed to the generator.
	maxResults = 5
	// historyLimit bounds how many prior messages are replayed to the model.
	historyLimit = 10
	// titleLimit is the conversation title length cut from the first query.
	titleLimit = 50
)

// Source identifies where an answer came from.
type Source struct {
	Filename       string   `json:"filename"`
	ChunkID        string   `json:"chunk_id"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// Answer is the result of one query.
type Answer struct {
	Markdown       string
	Sources        []Source
	Intent         intent.Intent
	ConversationID int64
}

// Store abstracts the persistence the orchestrator needs.
type Store interface {
	ListFiles(userID int64) ([]storage.FileRecord, error)
	GetConversation(id, userID int64) (storage.Conversation, error)
	CreateConversation(userID int64, title string) (storage.Conversation, error)
	ListMessages(conversationID int64) ([]storage.Message, error)
	AppendExchange(conversationID int64, userMsg, assistantMsg storage.Message) error
}

// Classifier decides what the user wants.
type Classifier interface {
	Classify(ctx context.Context, query string, filenames []string) intent.Classification
}

// Searcher queries the user's document collections.
type Searcher interface {
	QueryMany(ctx context.Context, collections []string, text string, nEach int) ([]vector.Result, error)
}

// Generator produces the final answer text.
type Generator interface {
	Generate(ctx context.Context, query string, results []vector.Result, in intent.Intent, history []llm.Message, fileURLs map[string]string) string
}

// URLSigner mints fresh download URLs for stored files.
type URLSigner interface {
	AuthorizedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Orchestrator wires the query pipeline together.
type Orchestrator struct {
	store      Store
	classifier Classifier
	searcher   Searcher
	generator  Generator
	signer     URLSigner
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator with the given dependencies.
func NewOrchestrator(store Store, classifier Classifier, searcher Searcher, generator Generator, signer URLSigner) *Orchestrator {
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		searcher:   searcher,
		generator:  generator,
		signer:     signer,
		logger:     slog.Default(),
	}
}

// Ask answers query for the user. conversationID zero (or an id the user
// does not own) starts a new conversation. The exchange is persisted before
// returning.
func (o *Orchestrator) Ask(ctx context.Context, userID, conversationID int64, query string) (Answer, error) {
	files, err := o.store.ListFiles(userID)
	if err != nil {
		return Answer{}, fmt.Errorf("listing files: %w", err)
	}
	if len(files) == 0 {
		return Answer{}, ErrNoFilesUploaded
	}

	filenames := make([]string, len(files))
	collections := make([]string, len(files))
	for i, f := range files {
		filenames[i] = f.OriginalName
		collections[i] = f.CollectionID
	}

	classification := o.classifier.Classify(ctx, query, filenames)

	results, err := o.searcher.QueryMany(ctx, collections, query, resultsPerCollection)
	if err != nil {
		return Answer{}, fmt.Errorf("searching collections: %w", err)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	// No relevant content anywhere: answer with the fixed not-found message.
	// No generation call and no conversation writes happen on this path.
	if len(results) == 0 {
		return Answer{
			Markdown: respond.NoContextMessage,
			Intent:   classification.Intent,
		}, nil
	}

	var fileURLs map[string]string
	if classification.Intent == intent.IntentFileRetrieval {
		fileURLs = o.downloadURLs(ctx, files, classification.TargetFile)
	}

	conv, history, err := o.resolveConversation(userID, conversationID, query)
	if err != nil {
		return Answer{}, err
	}

	answer := o.generator.Generate(ctx, query, results, classification.Intent, history, fileURLs)
	sources := topSource(results)

	if err := o.persistExchange(conv.ID, query, answer, classification.Intent, sources); err != nil {
		return Answer{}, err
	}

	return Answer{
		Markdown:       answer,
		Sources:        sources,
		Intent:         classification.Intent,
		ConversationID: conv.ID,
	}, nil
}

// downloadURLs maps the files the user asked for to fresh authorized URLs.
// A detected target narrows the map to the single best substring match; with
// no target (or no match) every file is linked. A signing failure falls back
// to the URL stored at upload time.
func (o *Orchestrator) downloadURLs(ctx context.Context, files []storage.FileRecord, target string) map[string]string {
	candidates := files
	if target != "" {
		for _, f := range files {
			if strings.Contains(strings.ToLower(f.OriginalName), strings.ToLower(target)) {
				candidates = []storage.FileRecord{f}
				break
			}
		}
	}

	urls := make(map[string]string, len(candidates))
	for _, f := range candidates {
		u, err := o.signer.AuthorizedURL(ctx, f.StorageKey, objectstore.DefaultURLTTL)
		if err != nil {
			o.logger.Warn("download url signing failed, using stored url", "file_id", f.ID, "error", err)
			u = f.StorageURL
		}
		if u != "" {
			urls[f.OriginalName] = u
		}
	}
	return urls
}

// resolveConversation loads an owned conversation and its history, or starts
// a new one titled from the query.
func (o *Orchestrator) resolveConversation(userID, conversationID int64, query string) (storage.Conversation, []llm.Message, error) {
	if conversationID != 0 {
		conv, err := o.store.GetConversation(conversationID, userID)
		switch {
		case err == nil:
			history, err := o.loadHistory(conv.ID)
			if err != nil {
				return storage.Conversation{}, nil, err
			}
			return conv, history, nil
		case errors.Is(err, storage.ErrNotFound):
			// Unknown or foreign conversation id: start fresh.
		default:
			return storage.Conversation{}, nil, fmt.Errorf("loading conversation: %w", err)
		}
	}

	conv, err := o.store.CreateConversation(userID, titleFrom(query))
	if err != nil {
		return storage.Conversation{}, nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil, nil
}

func (o *Orchestrator) loadHistory(conversationID int64) ([]llm.Message, error) {
	msgs, err := o.store.ListMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	history := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		history[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return history, nil
}

func (o *Orchestrator) persistExchange(conversationID int64, query, answer string, in intent.Intent, sources []Source) error {
	var sourcesJSON string
	if len(sources) > 0 {
		b, err := json.Marshal(sources)
		if err != nil {
			return fmt.Errorf("marshaling sources: %w", err)
		}
		sourcesJSON = string(b)
	}

	userMsg := storage.Message{Role: "user", Content: query, Intent: string(in)}
	assistantMsg := storage.Message{Role: "assistant", Content: answer, Sources: sourcesJSON, Intent: string(in)}
	if err := o.store.AppendExchange(conversationID, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("persisting exchange: %w", err)
	}
	return nil
}

// topSource reports only the best-matching chunk; the remaining results rank
// below it and are not surfaced.
func topSource(results []vector.Result) []Source {
	if len(results) == 0 {
		return nil
	}
	top := results[0]
	filename, _ := top.Metadata["filename"].(string)
	return []Source{{
		Filename:       filename,
		ChunkID:        top.ChunkID,
		RelevanceScore: top.Relevance(),
	}}
}

// titleFrom derives a conversation title from its opening query.
func titleFrom(query string) string {
	if len(query) <= titleLimit {
		return query
	}
	return query[:titleLimit] + "..."
}
