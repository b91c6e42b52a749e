package respond

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AviroopPaul/atlas-ai/internal/intent"
	"github.com/AviroopPaul/atlas-ai/internal/llm"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

type mockChatter struct {
	response string
	err      error
	calls    int
	lastReq  llm.ChatRequest
}

func (m *mockChatter) Complete(_ context.Context, req llm.ChatRequest) (string, error) {
	m.calls++
	m.lastReq = req
	return m.response, m.err
}

func TestGenerateInformationUsesTopResultOnly(t *testing.T) {
	chatter := &mockChatter{response: "the budget is $5000"}
	g := NewGenerator(chatter, "test-model")

	results := []vector.Result{
		{Document: "budget: $5000"},
		{Document: "unrelated second passage"},
	}
	got := g.Generate(context.Background(), "what is the budget", results, intent.IntentInformationQuery, nil, nil)
	if got != "the budget is $5000" {
		t.Errorf("Generate = %q", got)
	}

	system := chatter.lastReq.Messages[0].Content
	if !strings.Contains(system, "budget: $5000") {
		t.Error("system prompt lacks the top passage")
	}
	if strings.Contains(system, "unrelated second passage") {
		t.Error("system prompt includes more than the top passage")
	}
	if chatter.lastReq.Temperature != 0.5 || chatter.lastReq.MaxTokens != 1000 {
		t.Errorf("params = temp %v / max %d, want 0.5 / 1000",
			chatter.lastReq.Temperature, chatter.lastReq.MaxTokens)
	}
}

func TestGenerateInformationNoResults(t *testing.T) {
	chatter := &mockChatter{response: "should not be called"}
	g := NewGenerator(chatter, "test-model")

	got := g.Generate(context.Background(), "anything", nil, intent.IntentInformationQuery, nil, nil)
	if got != NoContextMessage {
		t.Errorf("Generate = %q, want the no-context message", got)
	}
	if chatter.calls != 0 {
		t.Errorf("LLM called %d times for an empty result set", chatter.calls)
	}
}

func TestGenerateInformationLLMFailure(t *testing.T) {
	chatter := &mockChatter{err: errors.New("upstream down")}
	g := NewGenerator(chatter, "test-model")

	got := g.Generate(context.Background(), "q", []vector.Result{{Document: "x"}}, intent.IntentInformationQuery, nil, nil)
	if got != NoContextMessage {
		t.Errorf("Generate = %q, want the no-context message", got)
	}
}

func TestGenerateRetrieval(t *testing.T) {
	chatter := &mockChatter{response: "Here you go: [resume.pdf](https://example.com/r)"}
	g := NewGenerator(chatter, "test-model")

	urls := map[string]string{"resume.pdf": "https://example.com/r"}
	results := []vector.Result{
		{Document: "work experience at Initech"},
		{Document: "unrelated second passage"},
	}
	got := g.Generate(context.Background(), "send me my resume", results, intent.IntentFileRetrieval, nil, urls)
	if !strings.Contains(got, "resume.pdf") {
		t.Errorf("Generate = %q", got)
	}

	system := chatter.lastReq.Messages[0].Content
	if !strings.Contains(system, "[resume.pdf](https://example.com/r)") {
		t.Error("system prompt lacks the download link")
	}
	if !strings.Contains(system, "work experience at Initech") {
		t.Error("system prompt lacks the top passage")
	}
	if strings.Contains(system, "unrelated second passage") {
		t.Error("system prompt includes more than the top passage")
	}
	if chatter.lastReq.Temperature != 0.7 || chatter.lastReq.MaxTokens != 500 {
		t.Errorf("params = temp %v / max %d, want 0.7 / 500",
			chatter.lastReq.Temperature, chatter.lastReq.MaxTokens)
	}
}

func TestGenerateRetrievalNoResults(t *testing.T) {
	chatter := &mockChatter{response: "should not be called"}
	g := NewGenerator(chatter, "test-model")

	urls := map[string]string{"resume.pdf": "https://example.com/r"}
	got := g.Generate(context.Background(), "send me my resume", nil, intent.IntentFileRetrieval, nil, urls)
	if got != NoContextMessage {
		t.Errorf("Generate = %q, want the no-context message", got)
	}
	if chatter.calls != 0 {
		t.Errorf("LLM called %d times for an empty result set", chatter.calls)
	}
}

func TestGenerateRetrievalLLMFailureFallsBackToLinkList(t *testing.T) {
	chatter := &mockChatter{err: errors.New("upstream down")}
	g := NewGenerator(chatter, "test-model")

	urls := map[string]string{
		"b.pdf": "https://example.com/b",
		"a.pdf": "https://example.com/a",
	}
	got := g.Generate(context.Background(), "my files", []vector.Result{{Document: "ctx"}}, intent.IntentFileRetrieval, nil, urls)

	// Links come back sorted by name so the fallback is deterministic.
	wantA := strings.Index(got, "[a.pdf](https://example.com/a)")
	wantB := strings.Index(got, "[b.pdf](https://example.com/b)")
	if wantA < 0 || wantB < 0 || wantA > wantB {
		t.Errorf("fallback list wrong or unsorted: %q", got)
	}
}

func TestGenerateRetrievalWithoutURLsAnswersFromContent(t *testing.T) {
	chatter := &mockChatter{response: "answered from content"}
	g := NewGenerator(chatter, "test-model")

	got := g.Generate(context.Background(), "send me the thing", []vector.Result{{Document: "the thing"}}, intent.IntentFileRetrieval, nil, nil)
	if got != "answered from content" {
		t.Errorf("Generate = %q", got)
	}
	if chatter.lastReq.Temperature != 0.5 {
		t.Errorf("temperature = %v, want the information path's 0.5", chatter.lastReq.Temperature)
	}
}

func TestGenerateSplicesHistory(t *testing.T) {
	chatter := &mockChatter{response: "ok"}
	g := NewGenerator(chatter, "test-model")

	history := []llm.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	g.Generate(context.Background(), "follow-up", []vector.Result{{Document: "ctx"}}, intent.IntentInformationQuery, history, nil)

	msgs := chatter.lastReq.Messages
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want system + 2 history + user", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Content != "earlier question" ||
		msgs[2].Content != "earlier answer" || msgs[3].Content != "follow-up" {
		t.Errorf("message order wrong: %+v", msgs)
	}
}
