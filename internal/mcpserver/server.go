// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes read-only Arbor tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sylvanet/arbor/internal/federation"
	"github.com/sylvanet/arbor/internal/store"
)

// Server wraps the MCP server with Arbor tools.
type Server struct {
	mcp        *server.MCPServer
	store      store.EntityStore
	conv       *federation.Converter
	fetchLimit int
}

// New creates a new MCP server with all Arbor tools registered.
func New(st store.EntityStore, conv *federation.Converter, fetchLimit int) *Server {
	s := &Server{store: st, conv: conv, fetchLimit: fetchLimit}

	s.mcp = server.NewMCPServer(
		"Arbor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_comment",
		mcp.WithDescription("Read a local comment by id, including its federation identifier and lifecycle flags."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Local comment id")),
	), s.getComment)

	s.mcp.AddTool(mcp.NewTool("get_thread",
		mcp.WithDescription("List all comments on a post, oldest first."),
		mcp.WithNumber("post_id", mcp.Required(), mcp.Description("Local post id")),
	), s.getThread)

	s.mcp.AddTool(mcp.NewTool("resolve_comment",
		mcp.WithDescription("Resolve a comment by its federation identifier, fetching it and its "+
			"ancestor chain from the remote instance if not known locally."),
		mcp.WithString("ap_id", mcp.Required(), mcp.Description("Protocol identifier URL of the comment")),
	), s.resolveComment)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comment, err := s.store.Comment(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(comment, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireInt("post_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	comments, err := s.store.Thread(ctx, int64(postID))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(comments, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) resolveComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apID, err := req.RequireString("ap_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	budget := federation.NewBudget(s.fetchLimit)
	comment, err := s.conv.Resolver().Comment(ctx, apID, budget)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(comment, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
