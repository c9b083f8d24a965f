package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/deep-research/pkg/chat"
)

// The MCP endpoint speaks plain JSON-RPC over HTTP with the session header
// the protocol requires; it exposes the same evidence tools the chat agent
// uses.

const mcpProtocolVersion = "2024-11-05"

type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type mcpResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *mcpError   `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	mcpCodeParseError     = -32700
	mcpCodeInvalidSession = -32000
	mcpCodeMethodNotFound = -32601
	mcpCodeInvalidParams  = -32602
	mcpCodeInternal       = -32603
)

// mcpTool binds a tool's advertised schema to its handler. The handler
// returns the text content for the tool result.
type mcpTool struct {
	Description string
	InputSchema map[string]interface{}
	Call        func(ctx context.Context, args json.RawMessage) (string, error)
}

type mcpSessions struct {
	mu  sync.RWMutex
	ids map[string]time.Time
}

func newMCPSessions() *mcpSessions {
	return &mcpSessions{ids: make(map[string]time.Time)}
}

func (s *mcpSessions) open() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.ids[id] = time.Now()
	s.mu.Unlock()
	return id
}

func (s *mcpSessions) valid(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// evidenceMCPTools builds the tool registry over the evidence toolset.
func evidenceMCPTools(tools *chat.EvidenceToolset) map[string]mcpTool {
	return map[string]mcpTool{
		"search_evidence": {
			Description: "Search archived research evidence using semantic search.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query.",
					},
					"runId": map[string]interface{}{
						"type":        "string",
						"description": "Optional research run ID to scope the search.",
					},
					"topK": map[string]interface{}{
						"type":        "number",
						"description": "The number of top results to return.",
						"default":     5,
					},
				},
				"required": []string{"query"},
			},
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args chat.SearchEvidenceArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				resp, err := tools.SearchEvidence(ctx, args)
				if err != nil {
					return "", err
				}
				return resp.Results, nil
			},
		},
		"find_evidence_by_source": {
			Description: "Find all archived evidence for a specific source URL.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": map[string]interface{}{
						"type":        "string",
						"description": "The source URL to find evidence for.",
					},
				},
				"required": []string{"source"},
			},
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args chat.FindSourceArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				resp, err := tools.FindEvidenceBySource(ctx, args)
				if err != nil {
					return "", err
				}
				return resp.Content, nil
			},
		},
		"find_evidence_by_run": {
			Description: "List all archived evidence chunks of one research run.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"runId": map[string]interface{}{
						"type":        "string",
						"description": "The research run ID.",
					},
				},
				"required": []string{"runId"},
			},
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args chat.FindRunArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				resp, err := tools.FindEvidenceByRun(ctx, args)
				if err != nil {
					return "", err
				}
				return resp.Content, nil
			},
		},
	}
}

func (h *Handler) handleMCP(c *gin.Context) {
	var req mcpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, mcpResponse{
			JSONRPC: "2.0",
			Error:   &mcpError{Code: mcpCodeParseError, Message: "Parse error"},
		})
		return
	}

	sessionID := c.GetHeader("Mcp-Session-Id")

	if req.Method == "initialize" {
		if sessionID == "" {
			c.Header("Mcp-Session-Id", h.sessions.open())
		}
		h.mcpReply(c, req.ID, map[string]interface{}{
			"protocolVersion": mcpProtocolVersion,
			"serverInfo": map[string]interface{}{
				"name":    "deep-research-mcp",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		})
		return
	}

	if sessionID == "" || !h.sessions.valid(sessionID) {
		h.mcpFail(c, req.ID, mcpCodeInvalidSession, "Invalid or missing session ID")
		return
	}

	switch req.Method {
	case "tools/list":
		h.mcpReply(c, req.ID, map[string]interface{}{"tools": h.toolDescriptors()})
	case "tools/call":
		h.handleMCPToolCall(c, req)
	case "ping":
		h.mcpReply(c, req.ID, map[string]interface{}{})
	default:
		h.mcpFail(c, req.ID, mcpCodeMethodNotFound, "Method not found")
	}
}

func (h *Handler) toolDescriptors() []map[string]interface{} {
	// Stable order for clients that diff the listing.
	names := []string{"search_evidence", "find_evidence_by_source", "find_evidence_by_run"}
	descriptors := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		t := h.mcpTools[name]
		descriptors = append(descriptors, map[string]interface{}{
			"name":        name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return descriptors
}

func (h *Handler) handleMCPToolCall(c *gin.Context, req mcpRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.mcpFail(c, req.ID, mcpCodeInvalidParams, "Invalid params")
		return
	}

	t, ok := h.mcpTools[params.Name]
	if !ok {
		h.mcpFail(c, req.ID, mcpCodeMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
		return
	}

	text, err := t.Call(c.Request.Context(), params.Arguments)
	if err != nil {
		h.mcpFail(c, req.ID, mcpCodeInternal, err.Error())
		return
	}

	h.mcpReply(c, req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	})
}

func (h *Handler) mcpReply(c *gin.Context, id interface{}, result interface{}) {
	c.JSON(http.StatusOK, mcpResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (h *Handler) mcpFail(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, mcpResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcpError{Code: code, Message: msg},
	})
}
