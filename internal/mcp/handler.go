// Package mcp exposes the compiled tool catalogs over the Model Context
// Protocol, via streamable HTTP or stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apifoundry/apibridge/internal/auth"
	"github.com/apifoundry/apibridge/internal/common"
	"github.com/apifoundry/apibridge/internal/config"
	"github.com/apifoundry/apibridge/internal/registry"
)

// Handler is the HTTP handler for the MCP endpoint. It wraps mcp-go's
// StreamableHTTPServer and delegates to it.
type Handler struct {
	server     *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	registry   *registry.Registry
	logger     *common.Logger

	mu         sync.Mutex
	registered []string
}

// NewHandler creates the MCP handler and registers one MCP tool per
// compiled registry tool, plus the bridge-status tool.
func NewHandler(cfg *config.Config, reg *registry.Registry, logger *common.Logger) *Handler {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		config.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)

	registered := RegisterTools(mcpSrv, reg, logger)
	mcpSrv.AddTool(StatusTool(), StatusToolHandler(reg))

	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithStateLess(true),
	)

	logger.Info().
		Int("tools", len(registered)).
		Msg("MCP handler initialized")

	return &Handler{
		server:     mcpSrv,
		streamable: streamable,
		registry:   reg,
		logger:     logger,
		registered: registered,
	}
}

// ServeHTTP delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}

// ServeStdio serves the MCP protocol over stdin/stdout. Blocks until the
// stream closes.
func (h *Handler) ServeStdio() error {
	return mcpserver.ServeStdio(h.server)
}

// RegisteredTools returns the names of the currently registered tools.
func (h *Handler) RegisteredTools() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.registered))
	copy(out, h.registered)
	return out
}

// ReloadTools recompiles the catalogs from disk and swaps the registered
// tool set on the running server.
func (h *Handler) ReloadTools() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Reload()
	if len(h.registered) > 0 {
		h.server.DeleteTools(h.registered...)
	}
	h.registered = RegisterTools(h.server, h.registry, h.logger)

	h.logger.Info().
		Int("tools", len(h.registered)).
		Msg("MCP tools reloaded")
}

// GenericToolHandler routes an MCP tool call through the registry to the
// upstream API. Expected failures (unknown tool, validation, authentication,
// network) come back as structured error results; upstream HTTP error
// statuses are forwarded as normal results.
func GenericToolHandler(reg *registry.Registry, name string, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callLogger := logger.WithCorrelationId(uuid.NewString())
		callLogger.Debug().Str("tool", name).Msg("tool call received")

		result, err := reg.ExecuteTool(ctx, name, r.GetArguments())
		if err != nil {
			callLogger.Warn().Str("tool", name).Str("error", err.Error()).Msg("tool call failed")
			return errorResult(err), nil
		}

		payload := map[string]any{
			"status":  result.Status,
			"headers": result.Headers,
			"body":    result.Body,
		}
		out, err := json.Marshal(payload)
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(out))},
		}, nil
	}
}

// errorResult maps a registry or auth error onto a structured MCP error
// payload so protocol clients can branch on the failure kind.
func errorResult(err error) *mcp.CallToolResult {
	payload := map[string]any{
		"error":   true,
		"message": err.Error(),
	}

	var missingTool *registry.MissingToolError
	var validation *registry.ParameterValidationError
	var network *registry.NetworkError
	var authErr *auth.Error
	switch {
	case errors.As(err, &missingTool):
		payload["type"] = "missing_tool"
		payload["tool"] = missingTool.Name
	case errors.As(err, &validation):
		payload["type"] = "parameter_validation"
		payload["missing"] = validation.Missing
	case errors.As(err, &network):
		payload["type"] = "network"
	case errors.As(err, &authErr):
		payload["type"] = "authentication"
	default:
		payload["type"] = "request"
	}

	out, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		out = []byte(`{"error":true,"message":"internal error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(out))},
		IsError: true,
	}
}

// StatusTool returns the tool definition for bridge-status.
func StatusTool() mcp.Tool {
	return mcp.NewTool("bridge-status",
		mcp.WithDescription("Get bridge version and loaded API catalogs. Use this to verify connectivity."),
	)
}

// StatusToolHandler reports the bridge version and every loaded catalog.
func StatusToolHandler(reg *registry.Registry) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type catalogStatus struct {
			Source    string `json:"source"`
			Hash      string `json:"hash"`
			ToolCount int    `json:"toolCount"`
		}

		catalogs := []catalogStatus{}
		for _, info := range reg.Catalogs() {
			catalogs = append(catalogs, catalogStatus{
				Source:    info.Source,
				Hash:      info.Hash,
				ToolCount: info.ToolCount,
			})
		}

		out, err := json.Marshal(map[string]any{
			"version":  config.GetFullVersion(),
			"catalogs": catalogs,
		})
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(out))},
		}, nil
	}
}
