package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

const serverName = "evidence-panel"

// Tools exposes evidence panel sessions as MCP tools.
type Tools struct {
	sessions ports.SessionProvider
	logger   *slog.Logger
}

func NewTools(sessions ports.SessionProvider, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{sessions: sessions, logger: logger}
}

// NewServer builds an MCP server with every evidence panel tool registered.
func NewServer(sessions ports.SessionProvider, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	NewTools(sessions, logger).Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	sessionArg := mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Editor session id; also the project directory name."),
	)
	topKArg := mcp.WithNumber("top_k",
		mcp.Description("Maximum number of passages to return."),
		mcp.Min(1),
		mcp.Max(100),
	)

	s.AddTool(mcp.NewTool("search_evidence",
		mcp.WithDescription("Search the indexed papers of a session for passages supporting a claim."),
		sessionArg,
		mcp.WithString("query", mcp.Required(), mcp.Description("Claim or paragraph to find evidence for.")),
		topKArg,
	), t.searchEvidence)

	s.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List the bibliography of a session reconciled with indexed documents."),
		sessionArg,
		mcp.WithBoolean("refresh", mcp.Description("Rescan the bibliography and the document list first.")),
	), t.listReferences)

	s.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents tracked by a session with their indexing status."),
		sessionArg,
	), t.listDocuments)

	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the evidence indexed for a session."),
		sessionArg,
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer.")),
		topKArg,
	), t.ask)
}

func (t *Tools) searchEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	panel, errResult := t.panel(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := panel.Search(ctx, query, req.GetInt("top_k", 0))
	if err != nil {
		return t.failed("search_evidence", err), nil
	}
	return jsonResult(state)
}

func (t *Tools) listReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	panel, errResult := t.panel(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	refs, err := panel.References(ctx, req.GetBool("refresh", false))
	if err != nil {
		return t.failed("list_references", err), nil
	}
	return jsonResult(map[string]any{"session_id": panel.ID(), "references": refs})
}

func (t *Tools) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	panel, errResult := t.panel(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(map[string]any{"session_id": panel.ID(), "documents": panel.Documents()})
}

func (t *Tools) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	panel, errResult := t.panel(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := panel.Ask(ctx, question, req.GetInt("top_k", 0))
	if err != nil {
		return t.failed("ask", err), nil
	}
	return jsonResult(answer)
}

func (t *Tools) panel(ctx context.Context, req mcp.CallToolRequest) (ports.EvidencePanel, *mcp.CallToolResult) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	panel, err := t.sessions.Session(ctx, id)
	if err != nil {
		return nil, t.failed("mount_session", err)
	}
	return panel, nil
}

func (t *Tools) failed(tool string, err error) *mcp.CallToolResult {
	t.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
