package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/logger"
)

const (
	searchUsersPath = "/v1.0/contact/users/search"
	getUserPath     = "/topapi/v2/user/get"

	// 接口返回字段的语言
	defaultLanguage = "zh_CN"
)

// DirectoryUser 通讯录用户，仅在单次调用中使用，不做缓存
type DirectoryUser struct {
	UserID     string     `json:"userId"`
	Name       string     `json:"name,omitempty"`
	Mobile     string     `json:"mobile,omitempty"`
	Email      string     `json:"email,omitempty"`
	Department []int64    `json:"department,omitempty"`
	JobNumber  string     `json:"jobNumber,omitempty"`
	OrgEmail   string     `json:"orgEmail,omitempty"`
	Telephone  string     `json:"telephone,omitempty"`
	HiredAt    *time.Time `json:"hiredAt,omitempty"`
}

// DirectoryClient 通讯录查询
type DirectoryClient struct {
	*Client
	tokens   AppTokenProvider
	pageSize int
	logger   *logger.Logger

	// SinglePolicy GetUserInfo 的失败处理方式
	SinglePolicy ErrorPolicy
	// BatchPolicy GetUsersInfo 的失败处理方式
	BatchPolicy ErrorPolicy
}

// NewDirectoryClient 单条查询默认 FailSoft，批量查询默认 FailHard
func NewDirectoryClient(cfg *config.Config, c *Client, tokens AppTokenProvider) *DirectoryClient {
	return &DirectoryClient{
		Client:       c,
		tokens:       tokens,
		pageSize:     cfg.SearchPageSize,
		logger:       c.logger.Named("directory"),
		SinglePolicy: FailSoft,
		BatchPolicy:  FailHard,
	}
}

type searchUsersRequest struct {
	QueryWord      string `json:"queryWord"`
	Offset         int    `json:"offset"`
	Size           int    `json:"size"`
	FullMatchField int    `json:"fullMatchField,omitempty"`
}

type searchUsersResponse struct {
	HasMore    bool              `json:"hasMore"`
	TotalCount int               `json:"totalCount"`
	List       []json.RawMessage `json:"list"`
}

// searchUserItem 搜索结果为对象时的字段，新旧两种命名都接受
type searchUserItem struct {
	UserID     string          `json:"userId"`
	UserIDLow  string          `json:"userid"`
	Name       string          `json:"name"`
	Mobile     string          `json:"mobile"`
	Email      string          `json:"email"`
	DeptIDList json.RawMessage `json:"deptIdList"`
	Department json.RawMessage `json:"department"`
	JobNumber  string          `json:"jobNumber"`
}

// SearchUsers 按关键字搜索用户
// 任何错误（包括获取 token 失败）都只记录日志并返回空列表
func (d *DirectoryClient) SearchUsers(ctx context.Context, query string, exactMatch bool) []DirectoryUser {
	token, err := d.tokens.AppAccessToken(ctx)
	if err != nil {
		d.logger.Error("Failed to search users %q: %v", query, err)
		return []DirectoryUser{}
	}

	req := searchUsersRequest{QueryWord: query, Offset: 0, Size: d.pageSize}
	if exactMatch {
		req.FullMatchField = 1
	}

	var resp searchUsersResponse
	if err := d.postOpenAPI(ctx, "search_users", searchUsersPath, token, req, &resp); err != nil {
		d.logger.Error("Failed to search users %q: %v", query, err)
		return []DirectoryUser{}
	}

	users := make([]DirectoryUser, 0, len(resp.List))
	for _, raw := range resp.List {
		user, err := d.decodeSearchItem(raw)
		if err != nil {
			d.logger.Warn("Skipping search result %s: %v", string(raw), err)
			continue
		}
		users = append(users, user)
	}

	d.logger.Info("Search %q matched %d users (total %d, hasMore %v)", query, len(users), resp.TotalCount, resp.HasMore)
	return users
}

func (d *DirectoryClient) decodeSearchItem(raw json.RawMessage) (DirectoryUser, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return DirectoryUser{}, err
		}
		return DirectoryUser{UserID: id}, nil
	}

	var item searchUserItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return DirectoryUser{}, err
	}
	user := DirectoryUser{
		UserID:    item.UserID,
		Name:      item.Name,
		Mobile:    item.Mobile,
		Email:     item.Email,
		JobNumber: item.JobNumber,
	}
	if user.UserID == "" {
		user.UserID = item.UserIDLow
	}
	dept := item.DeptIDList
	if len(dept) == 0 {
		dept = item.Department
	}
	user.Department = d.department(user.UserID, dept)
	return user, nil
}

type getUserRequest struct {
	UserID   string `json:"userid"`
	Language string `json:"language"`
}

type getUserResult struct {
	UserID     string          `json:"userid"`
	Name       string          `json:"name"`
	Mobile     string          `json:"mobile"`
	Email      string          `json:"email"`
	DeptIDList json.RawMessage `json:"dept_id_list"`
	JobNumber  string          `json:"job_number"`
	OrgEmail   string          `json:"org_email"`
	Telephone  string          `json:"telephone"`
	HiredDate  json.RawMessage `json:"hired_date"`
	CreateTime json.RawMessage `json:"create_time"`
}

type getUserResponse struct {
	Result *getUserResult `json:"result"`
}

// lookup 查询单个用户详情，不处理错误策略
// errcode 为 0 但没有 result 时返回 nil, nil
func (d *DirectoryClient) lookup(ctx context.Context, userID string) (*DirectoryUser, error) {
	token, err := d.tokens.AppAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp getUserResponse
	req := getUserRequest{UserID: userID, Language: defaultLanguage}
	if err := d.postOAPI(ctx, "get_user", getUserPath, token, req, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		d.logger.Warn("User %s has no result in response", userID)
		return nil, nil
	}

	r := resp.Result
	user := &DirectoryUser{
		UserID:     r.UserID,
		Name:       r.Name,
		Mobile:     r.Mobile,
		Email:      r.Email,
		JobNumber:  r.JobNumber,
		OrgEmail:   r.OrgEmail,
		Telephone:  r.Telephone,
		Department: d.department(r.UserID, r.DeptIDList),
	}
	if user.UserID == "" {
		user.UserID = userID
	}
	hired := r.HiredDate
	if len(bytes.TrimSpace(hired)) == 0 || bytes.Equal(bytes.TrimSpace(hired), []byte("null")) {
		hired = r.CreateTime
	}
	if t := parseTimestamp(hired); !t.IsZero() {
		user.HiredAt = &t
	}
	return user, nil
}

// GetUserInfo 查询单个用户详情
// FailSoft 时失败返回 nil, nil
func (d *DirectoryClient) GetUserInfo(ctx context.Context, userID string) (*DirectoryUser, error) {
	user, err := d.lookup(ctx, userID)
	if err != nil {
		if d.SinglePolicy == FailHard {
			return nil, fmt.Errorf("failed to get user info: %w", err)
		}
		d.logger.Error("Failed to get user info %s: %v", userID, err)
		return nil, nil
	}
	return user, nil
}

// GetUsersInfo 顺序查询多个用户详情
// FailHard 时第一个厂商错误即返回错误，已查到的结果丢弃
// 没有 result 的用户无论何种策略都跳过
func (d *DirectoryClient) GetUsersInfo(ctx context.Context, userIDs []string) ([]DirectoryUser, error) {
	users := make([]DirectoryUser, 0, len(userIDs))
	for _, id := range userIDs {
		user, err := d.lookup(ctx, id)
		if err != nil {
			if d.BatchPolicy == FailHard {
				return nil, fmt.Errorf("failed to get users info: %w", err)
			}
			d.logger.Warn("Skipping user %s: %v", id, err)
			continue
		}
		if user == nil {
			continue
		}
		users = append(users, *user)
	}
	return users, nil
}

// department 解析失败时记录日志，部门留空
func (d *DirectoryClient) department(userID string, raw json.RawMessage) []int64 {
	ids, err := ParseDepartment(raw)
	if err != nil {
		d.logger.Warn("Failed to parse department of %s: %v", userID, err)
		return nil
	}
	return ids
}

// parseTimestamp 解析毫秒时间戳，接受数字、数字字符串或 RFC3339 字符串
func parseTimestamp(raw json.RawMessage) time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
