package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/plugins"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes read-only catalog tools.
type Server struct {
	catalog *catalog.Service
	plugins *plugins.Service
	mcp     *server.MCPServer
}

// NewServer creates an MCP server backed by client.
func NewServer(client *pocketbase.Client) *Server {
	s := &Server{
		catalog: catalog.NewService(client, 0),
		plugins: plugins.NewService(client),
	}

	s.mcp = server.NewMCPServer(
		"rvtstudio",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchFamiliesTool, s.handleSearchFamilies)
	s.mcp.AddTool(getFamilyTool, s.handleGetFamily)
	s.mcp.AddTool(topCategoriesTool, s.handleTopCategories)
	s.mcp.AddTool(latestPluginTool, s.handleLatestPlugin)
}

// Serve starts the MCP server on stdio. Stdout carries protocol messages, so
// logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
