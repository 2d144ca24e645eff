package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// MCPBridge connects an MCP server's tools into a Registry so the pipeline
// can call them like built-ins. Tool names are sanitized (dots become
// underscores) since provider APIs reject dotted names; the bridge keeps
// the mapping back to the original names.
type MCPBridge struct {
	client         *client.Client
	logger         zerolog.Logger
	safeToOriginal map[string]string
}

// NewStdioBridge starts an MCP server over stdio and initializes the
// session.
func NewStdioBridge(ctx context.Context, command string, args, env []string, logger zerolog.Logger) (*MCPBridge, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required for stdio MCP bridge")
	}
	logger = logger.With().Str("component", "mcp_bridge").Logger()

	parts := strings.Fields(command)
	parts = append(parts, args...)
	mcpClient, err := client.NewStdioMCPClient(parts[0], env, parts[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}

	bridge := &MCPBridge{
		client:         mcpClient,
		logger:         logger,
		safeToOriginal: make(map[string]string),
	}
	if err := bridge.initialize(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	return bridge, nil
}

func (b *MCPBridge) initialize(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "chatd",
				Version: "1.0.0",
			},
		},
	}
	if _, err := b.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("MCP initialize failed: %w", err)
	}
	return nil
}

// RegisterTools lists the server's tools and registers each one in the
// registry. Results from the server are flattened to text the way tool
// messages expect.
func (b *MCPBridge) RegisterTools(ctx context.Context, registry *Registry) error {
	listResult, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("MCP list tools failed: %w", err)
	}

	for _, remoteTool := range listResult.Tools {
		original := remoteTool.Name
		safe := strings.ReplaceAll(original, ".", "_")
		b.safeToOriginal[safe] = original

		parameters := map[string]any{"type": "object"}
		if raw, err := json.Marshal(remoteTool.InputSchema); err == nil {
			var schema map[string]any
			if err := json.Unmarshal(raw, &schema); err == nil && len(schema) > 0 {
				parameters = schema
			}
		}

		b.logger.Info().Str("tool", safe).Str("original", original).Msg("Registering MCP tool")
		err := registry.Register(&Tool{
			Definition: definition(safe, remoteTool.Description, parameters),
			Handler:    b.handlerFor(original),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *MCPBridge) handlerFor(originalName string) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = originalName
		req.Params.Arguments = args

		result, err := b.client.CallTool(ctx, req)
		if err != nil {
			b.logger.Error().Str("tool", originalName).Err(err).Msg("MCP tool call failed")
			return nil, err
		}

		var parts []string
		for _, content := range result.Content {
			if text, ok := mcp.AsTextContent(content); ok {
				parts = append(parts, text.Text)
			}
		}
		combined := strings.Join(parts, "\n")
		if result.IsError {
			return nil, fmt.Errorf("MCP tool %s failed: %s", originalName, combined)
		}
		return combined, nil
	}
}

// Close shuts down the MCP session.
func (b *MCPBridge) Close() error {
	return b.client.Close()
}

// BridgedTools reports which registered names came from this bridge.
func (b *MCPBridge) BridgedTools() []string {
	names := make([]string, 0, len(b.safeToOriginal))
	for safe := range b.safeToOriginal {
		names = append(names, safe)
	}
	return names
}
