package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the stdio MCP server so tool registration stays in one place.
type Server struct {
	inner *server.MCPServer
}

func NewServer() *Server {
	return &Server{inner: server.NewMCPServer("Robot Bridge", "1.0.0")}
}

func (s *Server) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.inner.AddTool(tool, handler)
}

// Start serves MCP over stdio and blocks until the client closes stdin.
func (s *Server) Start() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.inner)
}
