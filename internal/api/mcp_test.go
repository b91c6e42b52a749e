package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AviroopPaul/atlas-ai/internal/intent"
	"github.com/AviroopPaul/atlas-ai/internal/query"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

type mockMCPSearcher struct {
	results []vector.Result
	err     error
}

func (m *mockMCPSearcher) QueryMany(_ context.Context, _ []string, _ string, _ int) ([]vector.Result, error) {
	return m.results, m.err
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *fakeAsker, *mockMCPSearcher) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	user, err := store.CreateUser("mcp@example.com", "mcp-token")
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	asker := &fakeAsker{}
	searcher := &mockMCPSearcher{}
	return MCPDeps{
		Store:    store,
		Asker:    asker,
		Searcher: searcher,
		UserID:   user.ID,
	}, store, asker, searcher
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPAskDocuments(t *testing.T) {
	deps, _, asker, _ := newTestMCPDeps(t)
	asker.answer = query.Answer{
		Markdown:       "the answer",
		Intent:         intent.IntentInformationQuery,
		ConversationID: 9,
	}

	handler := mcpAskDocuments(deps)
	result, err := handler(context.Background(), makeCallToolRequest("ask_documents", map[string]interface{}{
		"query": "what do my notes say",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if resp["response"] != "the answer" || resp["conversation_id"] != float64(9) {
		t.Errorf("result = %v", resp)
	}
	if asker.gotQ != "what do my notes say" {
		t.Errorf("asker got %q", asker.gotQ)
	}
}

func TestMCPAskDocumentsMissingQuery(t *testing.T) {
	deps, _, _, _ := newTestMCPDeps(t)

	handler := mcpAskDocuments(deps)
	result, err := handler(context.Background(), makeCallToolRequest("ask_documents", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing query")
	}
}

func TestMCPSearchDocuments(t *testing.T) {
	deps, store, _, searcher := newTestMCPDeps(t)
	if _, err := store.CreateFile(storage.FileRecord{
		UserID:       deps.UserID,
		StorageKey:   "k",
		OriginalName: "notes.txt",
		FileType:     "txt",
		FileSize:     2,
		CollectionID: "file_x",
	}); err != nil {
		t.Fatalf("creating file: %v", err)
	}

	d := 0.25
	searcher.results = []vector.Result{
		{Document: "passage", ChunkID: "c1", Distance: &d, Metadata: map[string]any{"filename": "notes.txt"}},
	}

	handler := mcpSearchDocuments(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_documents", map[string]interface{}{
		"query": "passage",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	if !strings.Contains(text, `"chunk_id":"c1"`) || !strings.Contains(text, `"relevance":0.75`) {
		t.Errorf("result = %s", text)
	}
}

func TestMCPSearchDocumentsNoFiles(t *testing.T) {
	deps, _, _, _ := newTestMCPDeps(t)

	handler := mcpSearchDocuments(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_documents", map[string]interface{}{
		"query": "anything",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("result = %q, want empty array", got)
	}
}

func TestMCPListFiles(t *testing.T) {
	deps, store, _, _ := newTestMCPDeps(t)
	if _, err := store.CreateFile(storage.FileRecord{
		UserID:       deps.UserID,
		StorageKey:   "k",
		OriginalName: "report.pdf",
		FileType:     "pdf",
		FileSize:     100,
		CollectionID: "file_y",
	}); err != nil {
		t.Fatalf("creating file: %v", err)
	}

	handler := mcpListFiles(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_files", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := toolText(t, result)
	if !strings.Contains(text, `"filename":"report.pdf"`) || !strings.Contains(text, `"processed":false`) {
		t.Errorf("result = %s", text)
	}
}
