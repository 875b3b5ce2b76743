package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/logger"
)

const (
	personalMessagePath = "/v1.0/im/me/messages/send"
	agentMessagePath    = "/topapi/message/corpconversation/asyncsend_v2"

	// MsgTypeText 默认消息类型
	MsgTypeText = "text"
)

// SendOptions 发送消息的可选参数
type SendOptions struct {
	// Code 用户 OAuth2 授权码，个人身份发送时必填
	Code               string
	OpenConversationID string
	ReceiverUserID     string
	MsgType            string
}

// Sender 消息发送接口
type Sender interface {
	// Send 向 userID 发送文本消息，返回是否成功
	Send(ctx context.Context, userID, content string, opts SendOptions) bool
	// RequiresCode 是否需要用户授权码
	RequiresCode() bool
}

var (
	_ Sender = (*MessagingClient)(nil)
	_ Sender = (*AgentSender)(nil)
)

// NewSender 按发送模式创建发送器，同一进程内只使用其中一种
func NewSender(cfg *config.Config, c *Client, users UserTokenExchanger, tokens AppTokenProvider) Sender {
	if cfg.SendMode == config.SendModeAgent {
		return NewAgentSender(cfg, c, tokens)
	}
	return NewMessagingClient(c, users)
}

// MessagingClient 以用户身份发送单聊消息
type MessagingClient struct {
	*Client
	users  UserTokenExchanger
	logger *logger.Logger
}

func NewMessagingClient(c *Client, users UserTokenExchanger) *MessagingClient {
	return &MessagingClient{
		Client: c,
		users:  users,
		logger: c.logger.Named("messaging"),
	}
}

type atSpec struct {
	AtUserIDs []string `json:"atUserIds"`
	IsAtAll   bool     `json:"isAtAll"`
}

type textContent struct {
	Content string `json:"content"`
	At      atSpec `json:"at"`
}

type personalMessageRequest struct {
	Content            string `json:"content"`
	MsgType            string `json:"msgType"`
	OpenConversationID string `json:"openConversationId,omitempty"`
	ReceiverUID        string `json:"receiverUid,omitempty"`
}

type personalMessageResponse struct {
	Success json.RawMessage `json:"success"`
}

// RequiresCode 个人身份发送需要授权码
func (m *MessagingClient) RequiresCode() bool { return true }

// Send 实现 Sender，userID 作为默认接收人
func (m *MessagingClient) Send(ctx context.Context, userID, content string, opts SendOptions) bool {
	if opts.ReceiverUserID == "" {
		opts.ReceiverUserID = userID
	}
	return m.SendTextMessage(ctx, content, opts)
}

// SendTextMessage 用授权码换取用户 token 后发送文本消息
// 缺少授权码时直接返回 false，不发起任何请求
func (m *MessagingClient) SendTextMessage(ctx context.Context, content string, opts SendOptions) bool {
	if strings.TrimSpace(opts.Code) == "" {
		m.logger.Error("Authorization code is required for sending personal messages")
		return false
	}

	token, err := m.users.ExchangeUserToken(ctx, opts.Code)
	if err != nil {
		m.logger.Error("Failed to send message: %v", err)
		return false
	}

	inner, err := json.Marshal(textContent{Content: content, At: atSpec{AtUserIDs: []string{}}})
	if err != nil {
		m.logger.Error("Failed to encode message content: %v", err)
		return false
	}

	msgType := opts.MsgType
	if msgType == "" {
		msgType = MsgTypeText
	}
	req := personalMessageRequest{
		Content:            string(inner),
		MsgType:            msgType,
		OpenConversationID: opts.OpenConversationID,
		ReceiverUID:        opts.ReceiverUserID,
	}

	var resp personalMessageResponse
	if err := m.postOpenAPI(ctx, "send_personal_message", personalMessagePath, token, req, &resp); err != nil {
		m.logger.Error("Failed to send message: %v", err)
		return false
	}

	ok := truthy(resp.Success)
	if !ok {
		m.logger.Warn("Send message returned success=%s", string(resp.Success))
	}
	return ok
}

// truthy 接口的 success 字段可能是 true 或 "true"
func truthy(raw json.RawMessage) bool {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// AgentSender 以应用身份发送工作通知
type AgentSender struct {
	*Client
	tokens  AppTokenProvider
	agentID string
	logger  *logger.Logger
}

func NewAgentSender(cfg *config.Config, c *Client, tokens AppTokenProvider) *AgentSender {
	return &AgentSender{
		Client:  c,
		tokens:  tokens,
		agentID: cfg.AgentID,
		logger:  c.logger.Named("agent-sender"),
	}
}

type agentText struct {
	Content string `json:"content"`
}

type agentMsg struct {
	MsgType string    `json:"msgtype"`
	Text    agentText `json:"text"`
}

type agentMessageRequest struct {
	AgentID    json.Number `json:"agent_id"`
	UserIDList string      `json:"userid_list"`
	Msg        agentMsg    `json:"msg"`
}

type agentMessageResponse struct {
	TaskID int64 `json:"task_id"`
}

// RequiresCode 应用身份发送不需要授权码
func (a *AgentSender) RequiresCode() bool { return false }

// Send 发送工作通知，忽略授权码
func (a *AgentSender) Send(ctx context.Context, userID, content string, _ SendOptions) bool {
	token, err := a.tokens.AppAccessToken(ctx)
	if err != nil {
		a.logger.Error("Failed to send work notification: %v", err)
		return false
	}

	req := agentMessageRequest{
		AgentID:    json.Number(a.agentID),
		UserIDList: userID,
		Msg:        agentMsg{MsgType: MsgTypeText, Text: agentText{Content: content}},
	}

	var resp agentMessageResponse
	if err := a.postOAPI(ctx, "send_work_notification", agentMessagePath, token, req, &resp); err != nil {
		a.logger.Error("Failed to send work notification: %v", err)
		return false
	}

	a.logger.Info("Work notification to %s accepted, task_id: %d", userID, resp.TaskID)
	return true
}
