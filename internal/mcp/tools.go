package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apifoundry/apibridge/internal/common"
	"github.com/apifoundry/apibridge/internal/registry"
)

// BuildMCPTool converts a registry tool into an mcp.Tool. The compiled input
// schema is attached verbatim as raw JSON Schema so nothing is lost to the
// option-builder API.
func BuildMCPTool(info registry.ToolInfo) (mcp.Tool, error) {
	raw, err := json.Marshal(info.InputSchema)
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(info.Name, info.Description, raw), nil
}

// RegisterTools registers every registry tool on the MCP server and returns
// the registered names. Tools whose schema fails to serialize are skipped
// with a warning.
func RegisterTools(s *server.MCPServer, reg *registry.Registry, logger *common.Logger) []string {
	var names []string
	for _, info := range reg.ListTools() {
		tool, err := BuildMCPTool(info)
		if err != nil {
			logger.Warn().Str("tool", info.Name).Str("error", err.Error()).Msg("skipping tool with unserializable schema")
			continue
		}
		s.AddTool(tool, GenericToolHandler(reg, info.Name, logger))
		names = append(names, info.Name)
	}
	return names
}
