package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/ferrisdoc/internal/daemon"
	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/rpc"
)

//go:embed instructions.md
var instructions string

// Backend is the subset of the daemon client the MCP server calls.
type Backend interface {
	Analyze(ctx context.Context, req rpc.AnalyzeRequest) (*rpc.AnalyzeResponse, error)
	Load(ctx context.Context, req rpc.LoadRequest) (*rpc.LoadResponse, error)
	Status(ctx context.Context, output string) (*rpc.StatusResponse, error)
}

type Server struct {
	mcpServer *server.MCPServer
	backend   Backend
}

// NewServer connects to the daemon at socketPath, spawning it if needed.
// daemonArgs are passed to a spawned daemon.
func NewServer(socketPath string, daemonArgs ...string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath, daemonArgs...)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return NewServerWithBackend(client), nil
}

func NewServerWithBackend(backend Backend) *Server {
	s := &Server{backend: backend}

	mcpServer := server.NewMCPServer(
		"ferrisdoc",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("analyze_package",
			mcp.WithDescription("Analyze a local Rust package and store its public API surface. Synchronous; returns the paths of every extracted record."),
			mcp.WithString("package",
				mcp.Description("Directory containing Cargo.toml"),
				mcp.Required(),
			),
			mcp.WithString("output",
				mcp.Description("Optional cache directory overriding the daemon default"),
			),
		),
		s.handleAnalyze,
	)

	mcpServer.AddTool(
		mcp.NewTool("load_items",
			mcp.WithDescription("Load stored records by path. Returns the records as JSON."),
			mcp.WithString("category",
				mcp.Description("One of crates, modules, structs, enums, functions"),
				mcp.Required(),
			),
			mcp.WithString("mode",
				mcp.Description("one, children, descendants or prefix (default one)"),
				mcp.Enum("one", "children", "descendants", "prefix"),
			),
			mcp.WithString("path",
				mcp.Description("Item path such as my_crate::config::Options"),
			),
			mcp.WithString("prefix",
				mcp.Description("Display path prefix for prefix mode"),
			),
			mcp.WithBoolean("include_self",
				mcp.Description("Include the record at path in descendants mode"),
			),
			mcp.WithString("output",
				mcp.Description("Optional cache directory overriding the daemon default"),
			),
		),
		s.handleLoad,
	)

	mcpServer.AddTool(
		mcp.NewTool("crate_status",
			mcp.WithDescription("List analyzed crates with record counts."),
			mcp.WithString("output",
				mcp.Description("Optional cache directory overriding the daemon default"),
			),
		),
		s.handleStatus,
	)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			uriScheme+"{category}/{path}",
			"Rust API record",
			mcp.WithTemplateDescription("Read one analyzed record as markdown, e.g. rsmodel://structs/my_crate::Options."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.handleReadResource,
	)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pkg, _ := args["package"].(string)
	if pkg == "" {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	resp, err := s.backend.Analyze(ctx, rpc.AnalyzeRequest{
		Package: pkg,
		Output:  stringArg(args, "output", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	category, _ := args["category"].(string)
	if category == "" {
		return mcp.NewToolResultError("missing required parameter: category"), nil
	}
	includeSelf, _ := args["include_self"].(bool)

	resp, err := s.backend.Load(ctx, rpc.LoadRequest{
		Category:    category,
		Mode:        stringArg(args, "mode", "one"),
		Path:        stringArg(args, "path", ""),
		Prefix:      stringArg(args, "prefix", ""),
		IncludeSelf: includeSelf,
		Output:      stringArg(args, "output", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Items, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.backend.Status(ctx, stringArg(req.GetArguments(), "output", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// lookupOrder decides which record a link resolves to when a path exists in
// several categories. A crate root is both a crate and a module.
var lookupOrder = []model.Category{model.Structs, model.Enums, model.Functions, model.Modules, model.Crates}

func (s *Server) lookup(ctx context.Context) Lookup {
	return func(p model.Path) (model.Category, bool) {
		for _, cat := range lookupOrder {
			resp, err := s.backend.Load(ctx, rpc.LoadRequest{Category: string(cat), Mode: "one", Path: p.String()})
			if err == nil && len(resp.Items) > 0 {
				return cat, true
			}
		}
		return "", false
	}
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	cat, path, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	resp, err := s.backend.Load(ctx, rpc.LoadRequest{Category: string(cat), Mode: "one", Path: path.String()})
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no %s record at %s", cat, path)
	}

	text, err := Render(cat, resp.Items[0], s.lookup(ctx))
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     text,
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
