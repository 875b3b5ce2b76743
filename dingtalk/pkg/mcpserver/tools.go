package mcpserver

import (
	"context"

	"dingtalk-mcp/dingtalk/pkg/handler"

	"github.com/mark3labs/mcp-go/mcp"
)

func sendMessageTool() mcp.Tool {
	return mcp.NewTool(handler.ToolSendMessage,
		mcp.WithDescription("Send a private message to a specific DingTalk user"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("The name of the user to send the message to"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The message content to send"),
		),
		mcp.WithString("code",
			mcp.Description("OAuth2 authorization code of the sending user, required when sending as a user"),
		),
	)
}

func searchUsersTool() mcp.Tool {
	return mcp.NewTool(handler.ToolSearchUsers,
		mcp.WithDescription("Search for DingTalk users by name or other criteria"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query to find users"),
		),
		mcp.WithBoolean("exact_match",
			mcp.Description("Whether to perform an exact match search"),
			mcp.DefaultBool(false),
		),
	)
}

func getUserInfoTool() mcp.Tool {
	return mcp.NewTool(handler.ToolGetUserInfo,
		mcp.WithDescription("Get detailed information about a specific DingTalk user"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The ID of the user to get information about"),
		),
	)
}

func (s *Server) registerTools() {
	for _, tool := range []mcp.Tool{sendMessageTool(), searchUsersTool(), getUserInfoTool()} {
		s.mcp.AddTool(tool, s.handleTool)
	}
}

// handleTool 所有工具共用，结果统一以文本返回
func (s *Server) handleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.dispatcher.Dispatch(ctx, req.Params.Name, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}
