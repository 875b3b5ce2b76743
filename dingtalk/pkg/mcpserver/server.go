package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/tools/logger"

	"github.com/mark3labs/mcp-go/server"
)

const (
	Name    = "DingTalk MCP Server"
	Version = "0.1.0"

	// EndpointPath Streamable HTTP 挂载路径
	EndpointPath = "/mcp"
)

// ToolDispatcher 工具调用入口
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) (string, error)
}

// Server MCP 服务，注册工具、笔记资源和提示词
type Server struct {
	mcp        *server.MCPServer
	dispatcher ToolDispatcher
	notes      notes.Service
	logger     *logger.Logger
}

// New 创建 MCP 服务，笔记资源在创建时从存储中加载
func New(ctx context.Context, dispatcher ToolDispatcher, store notes.Service, log *logger.Logger) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(Name, Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
			server.WithRecovery(),
		),
		dispatcher: dispatcher,
		notes:      store,
		logger:     log.Named("mcp"),
	}

	s.registerTools()
	if err := s.registerResources(ctx); err != nil {
		return nil, fmt.Errorf("failed to register note resources: %w", err)
	}
	s.registerPrompts()

	return s, nil
}

// MCP 返回底层 MCPServer
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio 在给定的输入输出上运行 stdio 传输，直到 ctx 结束或输入关闭
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Serving MCP over stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// HTTPHandler Streamable HTTP 传输，挂载到 EndpointPath
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(EndpointPath))
}
