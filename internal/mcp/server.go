package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes the operator tools over MCP
type Server struct {
	server  *sdkmcp.Server
	handler *Handler
}

// NewServer creates the MCP server and registers its tools
func NewServer(handler *Handler, version string) *Server {
	s := &Server{
		server: sdkmcp.NewServer(&sdkmcp.Implementation{
			Name:    "summi-tools",
			Version: version,
		}, nil),
		handler: handler,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server
func (s *Server) MCPServer() *sdkmcp.Server {
	return s.server
}

// RunStdio serves over stdin/stdout until the client disconnects or ctx ends
func (s *Server) RunStdio(ctx context.Context) error {
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}
