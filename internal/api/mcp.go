package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AviroopPaul/atlas-ai/internal/storage"
	"github.com/AviroopPaul/atlas-ai/internal/vector"
)

// MCPSearcher abstracts multi-collection semantic search for the MCP layer.
type MCPSearcher interface {
	QueryMany(ctx context.Context, collections []string, text string, nEach int) ([]vector.Result, error)
}

// MCPDeps holds dependencies for the MCP server. All tools operate as the
// configured service user.
type MCPDeps struct {
	Store    *storage.Store
	Asker    Asker
	Searcher MCPSearcher
	UserID   int64
}

// NewMCPServer creates an MCP server exposing the document assistant tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"atlas-ai",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("atlas-ai — ask questions over your uploaded documents or search their contents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_documents",
			mcp.WithDescription("Ask a question answered from the uploaded documents. Returns a markdown answer with sources."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("conversation_id", mcp.Description("Conversation to continue (omit to start a new one)")),
		),
		mcpAskDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the uploaded documents and return matching passages."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List the uploaded documents with their processing status."),
		),
		mcpListFiles(deps),
	)

	return s
}

func mcpAskDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		conversationID := int64(req.GetInt("conversation_id", 0))

		answer, err := deps.Asker.Ask(ctx, deps.UserID, conversationID, q)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"response":        answer.Markdown,
			"sources":         answer.Sources,
			"intent":          string(answer.Intent),
			"conversation_id": answer.ConversationID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		files, err := deps.Store.ListFiles(deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing files: %v", err)), nil
		}
		if len(files) == 0 {
			return mcpText("[]"), nil
		}

		collections := make([]string, len(files))
		for i, f := range files {
			collections[i] = f.CollectionID
		}

		results, err := deps.Searcher.QueryMany(ctx, collections, q, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) > limit {
			results = results[:limit]
		}

		type hit struct {
			Document  string   `json:"document"`
			Filename  string   `json:"filename,omitempty"`
			ChunkID   string   `json:"chunk_id"`
			Relevance *float64 `json:"relevance,omitempty"`
		}
		hits := make([]hit, len(results))
		for i, res := range results {
			filename, _ := res.Metadata["filename"].(string)
			hits[i] = hit{
				Document:  res.Document,
				Filename:  filename,
				ChunkID:   res.ChunkID,
				Relevance: res.Relevance(),
			}
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		files, err := deps.Store.ListFiles(deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing files: %v", err)), nil
		}

		type fileSummary struct {
			ID         int64  `json:"id"`
			Filename   string `json:"filename"`
			FileType   string `json:"file_type"`
			FileSize   int64  `json:"file_size"`
			UploadedAt string `json:"uploaded_at"`
			Processed  bool   `json:"processed"`
		}
		summaries := make([]fileSummary, len(files))
		for i, f := range files {
			summaries[i] = fileSummary{
				ID:         f.ID,
				Filename:   f.OriginalName,
				FileType:   f.FileType,
				FileSize:   f.FileSize,
				UploadedAt: f.UploadedAt.Format(time.RFC3339),
				Processed:  f.Processed,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal files: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
