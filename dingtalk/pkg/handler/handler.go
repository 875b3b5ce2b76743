package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dingtalk-mcp/dingtalk/pkg/dingtalk"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/metrics"

	"github.com/google/uuid"
)

// Dispatcher 把 MCP 工具调用转换为钉钉接口调用，并把结果渲染成文本
// 除未知工具外，所有错误都在这里转换为文本返回
type Dispatcher struct {
	directory Directory
	sender    dingtalk.Sender
	logger    *logger.Logger
}

// NewDispatcher 创建工具分发器
func NewDispatcher(directory Directory, sender dingtalk.Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		sender:    sender,
		logger:    log.Named("dispatcher"),
	}
}

// Dispatch 按工具名分发
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSendMessage:
		return d.SendMessage(ctx, SendMessageArgs{
			User:    stringArg(args, "user"),
			Content: stringArg(args, "content"),
			Code:    stringArg(args, "code"),
		}), nil
	case ToolSearchUsers:
		return d.SearchUsers(ctx, SearchUsersArgs{
			Query:      stringArg(args, "query"),
			ExactMatch: boolArg(args, "exact_match"),
		}), nil
	case ToolGetUserInfo:
		return d.GetUserInfo(ctx, GetUserInfoArgs{UserID: stringArg(args, "user_id")}), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// run 为每次调用分配关联 ID，统计结果，并把错误渲染为 errFormat 文本
func (d *Dispatcher) run(ctx context.Context, tool, errFormat string, fn func(ctx context.Context, log *logger.Logger) (string, error)) string {
	log := d.logger.With("call_id", uuid.NewString())
	start := time.Now()
	log.Info("Tool %s called", tool)

	text, err := fn(ctx, log)
	metrics.ToolCalls.WithLabelValues(tool, metrics.Outcome(err)).Inc()
	if err != nil {
		log.Error("Tool %s failed after %v: %v", tool, time.Since(start), err)
		return fmt.Sprintf(errFormat, err)
	}

	log.Debug("Tool %s finished in %v", tool, time.Since(start))
	return text
}

// SendMessage 按名字查找用户并发送私信
func (d *Dispatcher) SendMessage(ctx context.Context, args SendMessageArgs) string {
	return d.run(ctx, ToolSendMessage, "发送消息时发生错误: %v", func(ctx context.Context, log *logger.Logger) (string, error) {
		if strings.TrimSpace(args.User) == "" {
			return "", missingArg("user")
		}
		if args.Content == "" {
			return "", missingArg("content")
		}

		users := d.directory.SearchUsers(ctx, args.User, false)
		if len(users) == 0 {
			return fmt.Sprintf("未找到用户 '%s'", args.User), nil
		}

		target := users[0]
		if target.UserID == "" {
			return fmt.Sprintf("无法获取用户 '%s' 的ID", args.User), nil
		}
		name := target.Name
		if name == "" {
			name = args.User
		}

		if d.sender.RequiresCode() && strings.TrimSpace(args.Code) == "" {
			log.Warn("No authorization code supplied for %s, message not sent", target.UserID)
			return fmt.Sprintf("向 %s 发送私信需要用户授权：请提供钉钉 OAuth2 授权码 (code) 后重试", name), nil
		}

		if !d.sender.Send(ctx, target.UserID, args.Content, dingtalk.SendOptions{Code: args.Code}) {
			return fmt.Sprintf("向 %s 发送私信失败", name), nil
		}
		return fmt.Sprintf("成功向 %s 发送了私信: '%s'", name, args.Content), nil
	})
}

// SearchUsers 搜索用户并列出详细信息
func (d *Dispatcher) SearchUsers(ctx context.Context, args SearchUsersArgs) string {
	return d.run(ctx, ToolSearchUsers, "搜索用户时发生错误: %v", func(ctx context.Context, log *logger.Logger) (string, error) {
		if strings.TrimSpace(args.Query) == "" {
			return "", missingArg("query")
		}

		users := d.directory.SearchUsers(ctx, args.Query, args.ExactMatch)
		if len(users) == 0 {
			return fmt.Sprintf("未找到匹配的用户: %s", args.Query), nil
		}

		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.UserID)
		}

		details, err := d.directory.GetUsersInfo(ctx, ids)
		if err != nil {
			return "", err
		}
		if len(details) == 0 {
			return fmt.Sprintf("获取用户详细信息失败: %s", args.Query), nil
		}

		log.Debug("Rendering %d users for query %q", len(details), args.Query)
		return formatUserList(details), nil
	})
}

// GetUserInfo 查询单个用户详情
func (d *Dispatcher) GetUserInfo(ctx context.Context, args GetUserInfoArgs) string {
	return d.run(ctx, ToolGetUserInfo, "获取用户信息时发生错误: %v", func(ctx context.Context, _ *logger.Logger) (string, error) {
		if strings.TrimSpace(args.UserID) == "" {
			return "", missingArg("user_id")
		}

		user, err := d.directory.GetUserInfo(ctx, args.UserID)
		if err != nil {
			return "", err
		}
		if user == nil {
			return fmt.Sprintf("未找到用户: %s", args.UserID), nil
		}
		return formatUserDetail(user), nil
	})
}

func formatUserList(users []dingtalk.DirectoryUser) string {
	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 个匹配的用户：\n", len(users))
	for _, u := range users {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", orDefault(u.Name, "未知用户"), orDefault(u.UserID, "未知"))
		if u.Mobile != "" {
			fmt.Fprintf(&b, "  手机号: %s\n", u.Mobile)
		}
		if u.Email != "" {
			fmt.Fprintf(&b, "  邮箱: %s\n", u.Email)
		}
		if len(u.Department) > 0 {
			fmt.Fprintf(&b, "  部门: %s\n", joinIDs(u.Department))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatUserDetail(u *dingtalk.DirectoryUser) string {
	var b strings.Builder
	b.WriteString("用户信息：\n")
	fmt.Fprintf(&b, "- 姓名: %s\n", orDefault(u.Name, "未知"))
	fmt.Fprintf(&b, "- 用户ID: %s\n", orDefault(u.UserID, "未知"))
	fmt.Fprintf(&b, "- 工号: %s\n", orDefault(u.JobNumber, "未知"))
	if u.Mobile != "" {
		fmt.Fprintf(&b, "- 手机号: %s\n", u.Mobile)
	}
	if u.Email != "" {
		fmt.Fprintf(&b, "- 邮箱: %s\n", u.Email)
	}
	if u.OrgEmail != "" {
		fmt.Fprintf(&b, "- 企业邮箱: %s\n", u.OrgEmail)
	}
	if u.Telephone != "" {
		fmt.Fprintf(&b, "- 分机号: %s\n", u.Telephone)
	}
	if len(u.Department) > 0 {
		fmt.Fprintf(&b, "- 部门: %s\n", joinIDs(u.Department))
	}
	if u.HiredAt != nil && !u.HiredAt.IsZero() {
		fmt.Fprintf(&b, "- 入职时间: %s\n", u.HiredAt.Format("2006-01-02"))
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
