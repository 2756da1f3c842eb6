package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fidelity/compare"
	"github.com/hazyhaar/fidelity/kit"
)

// RegisterMCP registers the fidelity tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.register(srv, &mcp.Tool{
		Name:        "fidelity_compare",
		Description: "Compare a design frame with a live web page. Returns style mismatches, font reconciliation and text diffs.",
		InputSchema: inputSchema(map[string]any{
			"fileKey":   map[string]any{"type": "string", "description": "Design file key"},
			"frameName": map[string]any{"type": "string", "description": "Exact, case-sensitive frame name"},
			"url":       map[string]any{"type": "string", "description": "http(s) URL of the page to render"},
		}, []string{"fileKey", "frameName", "url"}),
	}, s.compareEndpoint, kit.DecodeArgs[compare.Request]())

	s.register(srv, &mcp.Tool{
		Name:        "fidelity_get_report",
		Description: "Get a stored comparison report by ID.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Report ID"},
		}, []string{"id"}),
	}, s.getReportEndpoint, kit.DecodeArgs[reportRequest]())

	s.register(srv, &mcp.Tool{
		Name:        "fidelity_list_reports",
		Description: "List stored comparison reports, newest first.",
		InputSchema: inputSchema(map[string]any{
			"fileKey": map[string]any{"type": "string", "description": "Only reports for this design file"},
			"limit":   map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}, s.listReportsEndpoint, kit.DecodeArgs[listRequest]())

	s.register(srv, &mcp.Tool{
		Name:        "fidelity_diff_text",
		Description: "Word-level, case-insensitive diff of two texts with a similarity score.",
		InputSchema: inputSchema(map[string]any{
			"a":    map[string]any{"type": "string", "description": "Design-side text"},
			"b":    map[string]any{"type": "string", "description": "Page-side text"},
			"mode": map[string]any{"type": "string", "enum": []any{ModeStyled, ModeContent}, "description": "content also collapses whitespace"},
		}, []string{"a", "b"}),
	}, s.diffEndpoint, kit.DecodeArgs[diffRequest]())

	s.register(srv, &mcp.Tool{
		Name:        "fidelity_reconcile_fonts",
		Description: "Partition design fonts and page fonts into matching, design-only and page-only.",
		InputSchema: inputSchema(map[string]any{
			"imageFonts": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"webFonts":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, []string{"imageFonts", "webFonts"}),
	}, s.fontsEndpoint, kit.DecodeArgs[fontsRequest]())
}

func (s *Server) register(srv *mcp.Server, tool *mcp.Tool, ep kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, s.wrap(tool.Name, ep), decode)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
