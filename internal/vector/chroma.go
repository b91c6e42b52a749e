// Package vector talks to a Chroma-compatible vector database over HTTP.
// Each uploaded document gets its own collection; the server computes
// embeddings for both documents and query text.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 30 * time.Second

// Client communicates with a Chroma-compatible API.
type Client struct {
	baseURL    string
	tenant     string
	database   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the given endpoint. Authentication uses the
// API key on every request.
func NewClient(baseURL, tenant, database, apiKey string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tenant:   tenant,
		database: database,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
	}
}

func (c *Client) collectionURL(parts ...string) string {
	u := c.baseURL + "/api/v1/collections"
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u + "?tenant=" + url.QueryEscape(c.tenant) + "&database=" + url.QueryEscape(c.database)
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Chroma-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string) error {
	payload := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	if _, err := c.do(ctx, http.MethodPost, c.collectionURL(), payload); err != nil {
		return fmt.Errorf("ensuring collection %q: %w", name, err)
	}
	return nil
}

// AddChunks adds documents with their metadata to a collection. When ids is
// nil a random unique id is generated per document. The ids used are returned.
func (c *Client) AddChunks(ctx context.Context, collection string, documents []string, metadatas []map[string]any, ids []string) ([]string, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if len(metadatas) != len(documents) {
		return nil, fmt.Errorf("got %d metadatas for %d documents", len(metadatas), len(documents))
	}
	if ids == nil {
		ids = make([]string, len(documents))
		for i := range ids {
			ids[i] = uuid.New().String()
		}
	}

	payload := map[string]any{
		"documents": documents,
		"metadatas": metadatas,
		"ids":       ids,
	}
	if _, err := c.do(ctx, http.MethodPost, c.collectionURL(collection, "add"), payload); err != nil {
		return nil, fmt.Errorf("adding %d chunks to collection %q: %w", len(documents), collection, err)
	}
	return ids, nil
}

// queryResponse mirrors the Chroma query result layout: one inner slice per
// query text (we always send exactly one).
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]*float64       `json:"distances"`
}

// Query returns up to n ranked results from a single collection.
func (c *Client) Query(ctx context.Context, collection, text string, n int) ([]Result, error) {
	payload := map[string]any{
		"query_texts": []string{text},
		"n_results":   n,
	}
	body, err := c.do(ctx, http.MethodPost, c.collectionURL(collection, "query"), payload)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", collection, err)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("decoding query response for %q: %w", collection, err)
	}
	if len(qr.Documents) == 0 {
		return nil, nil
	}

	docs := qr.Documents[0]
	results := make([]Result, 0, len(docs))
	for i := range docs {
		r := Result{Document: docs[i], Collection: collection}
		if len(qr.Metadatas) > 0 && i < len(qr.Metadatas[0]) {
			r.Metadata = qr.Metadatas[0][i]
		}
		if len(qr.Distances) > 0 && i < len(qr.Distances[0]) {
			r.Distance = qr.Distances[0][i]
		}
		if len(qr.IDs) > 0 && i < len(qr.IDs[0]) {
			r.ChunkID = qr.IDs[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// QueryMany queries each collection for nEach results and merges them into a
// single list sorted ascending by distance (missing distances last). A
// failure against one collection is logged and its results dropped; it never
// aborts the overall search.
func (c *Client) QueryMany(ctx context.Context, collections []string, text string, nEach int) ([]Result, error) {
	var mu sync.Mutex
	var merged []Result

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency against the vector backend.
	for _, collection := range collections {
		g.Go(func() error {
			results, err := c.Query(gCtx, collection, text, nEach)
			if err != nil {
				c.logger.Warn("collection query failed", "collection", collection, "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sortByDistance(merged)
	return merged, nil
}

// DeleteCollection removes a collection and all its chunks.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.collectionURL(name), nil); err != nil {
		return fmt.Errorf("deleting collection %q: %w", name, err)
	}
	return nil
}

// sortByDistance orders results ascending by distance; results without a
// distance sort after all scored ones.
func sortByDistance(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		di, dj := results[i].Distance, results[j].Distance
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
}
