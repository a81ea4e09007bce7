package ragchat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/orchestrator"
)

const Version = "1.0.0"

// NewServer exposes the client's operations as MCP tools.
func NewServer(serverName string, ragClient *RAGClient) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		serverName,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("This is a conversational RAG server: it decomposes questions, retrieves and grades evidence from the knowledge base, and keeps per-session history"),
	)

	// Intelligent Q&A Tool
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("chat", "Answer a question using the knowledge base, continuing the conversation identified by session_id", GetChatSchema()),
		HandleChat(ragClient),
	)

	// Session Management Tools
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("get-history", "Return the recent messages and summary stored for a session", GetSessionSchema()),
		HandleGetHistory(ragClient),
	)
	mcpServer.AddTool(
		mcp.NewToolWithRawSchema("clear-session", "Delete a session's history and cached evidence", GetSessionSchema()),
		HandleClearSession(ragClient),
	)
	return mcpServer
}

func GetChatSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"question": {
				"type": "string",
				"description": "The user's question"
			},
			"session_id": {
				"type": "string",
				"description": "Conversation to continue; omit to start a new one"
			}
		},
		"required": ["question"]
	}`)
}

func GetSessionSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {
				"type": "string",
				"description": "Session identifier returned by the chat tool"
			}
		},
		"required": ["session_id"]
	}`)
}

type ChatResponse struct {
	SessionID  string            `json:"session_id"`
	Answer     string            `json:"answer"`
	SubQueries []SubQuerySummary `json:"sub_queries"`
}

type SubQuerySummary struct {
	Text             string `json:"text"`
	Classification   string `json:"classification"`
	RelevantCount    int    `json:"relevant_count"`
	ReformulatedText string `json:"reformulated_text,omitempty"`
	WebSearched      bool   `json:"web_searched"`
}

// NewChatResponse flattens a pipeline result for transport.
func NewChatResponse(res *orchestrator.Result) ChatResponse {
	out := ChatResponse{SessionID: res.SessionID, Answer: res.Answer}
	for _, rec := range res.SubQueries {
		out.SubQueries = append(out.SubQueries, SubQuerySummary{
			Text:             rec.Text,
			Classification:   rec.Classification.String(),
			RelevantCount:    rec.RelevantCount,
			ReformulatedText: rec.ReformulatedText,
			WebSearched:      rec.WebSearched,
		})
	}
	return out
}

func HandleChat(ragClient *RAGClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := request.GetString("question", "")
		if question == "" {
			return mcp.NewToolResultError("invalid question argument"), nil
		}
		res, err := ragClient.Answer(ctx, question, request.GetString("session_id", ""))
		if err != nil {
			logger.Errorf("mcp chat: %v", err)
			return mcp.NewToolResultError(fmt.Sprintf("chat failed, err: %v", err)), nil
		}
		return buildCallToolResult(NewChatResponse(res))
	}
}

func HandleGetHistory(ragClient *RAGClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := request.GetString("session_id", "")
		if sessionID == "" {
			return mcp.NewToolResultError("invalid session_id argument"), nil
		}
		rec, err := ragClient.History(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get history failed, err: %v", err)), nil
		}
		return buildCallToolResult(rec)
	}
}

func HandleClearSession(ragClient *RAGClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := request.GetString("session_id", "")
		if sessionID == "" {
			return mcp.NewToolResultError("invalid session_id argument"), nil
		}
		if err := ragClient.ClearSession(ctx, sessionID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clear session failed, err: %v", err)), nil
		}
		return buildCallToolResult(map[string]string{"session_id": sessionID, "status": "cleared"})
	}
}

func buildCallToolResult(v any) (*mcp.CallToolResult, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(bs)), nil
}
