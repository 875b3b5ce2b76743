package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dingtalk-mcp/dingtalk/pkg/dingtalk"
)

const (
	ToolSendMessage = "dingtalk_send_message"
	ToolSearchUsers = "dingtalk_search_users"
	ToolGetUserInfo = "dingtalk_get_user_info"
)

// ErrUnknownTool 工具名不存在，这是唯一会透传到 MCP 协议层的错误
var ErrUnknownTool = errors.New("unknown tool")

// Directory 通讯录查询能力
type Directory interface {
	SearchUsers(ctx context.Context, query string, exactMatch bool) []dingtalk.DirectoryUser
	GetUserInfo(ctx context.Context, userID string) (*dingtalk.DirectoryUser, error)
	GetUsersInfo(ctx context.Context, userIDs []string) ([]dingtalk.DirectoryUser, error)
}

// SendMessageArgs dingtalk_send_message 参数
type SendMessageArgs struct {
	User    string `json:"user"`
	Content string `json:"content"`
	// Code 可选的 OAuth2 授权码
	Code string `json:"code,omitempty"`
}

// SearchUsersArgs dingtalk_search_users 参数
type SearchUsersArgs struct {
	Query      string `json:"query"`
	ExactMatch bool   `json:"exact_match,omitempty"`
}

// GetUserInfoArgs dingtalk_get_user_info 参数
type GetUserInfoArgs struct {
	UserID string `json:"user_id"`
}

func missingArg(name string) error {
	return fmt.Errorf("missing required argument: %s", name)
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}
