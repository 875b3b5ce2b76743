package api

import (
	"errors"
	"net/http"
	"time"

	"dingtalk-mcp/dingtalk/pkg/auth"
	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "dingtalk-mcp"

// TokenStatus 只读的应用 token 状态
type TokenStatus interface {
	Cached() auth.CachedToken
}

// Handler 管理接口
type Handler struct {
	version string
	notes   notes.Service
	tokens  TokenStatus
	logger  *logger.Logger
	now     func() time.Time
}

func NewHandler(version string, store notes.Service, tokens TokenStatus, log *logger.Logger) *Handler {
	return &Handler{
		version: version,
		notes:   store,
		tokens:  tokens,
		logger:  log.Named("api"),
		now:     time.Now,
	}
}

// NewRouter 创建 gin 引擎；mcpHandler 非空时挂载到 /mcp
func NewRouter(h *Handler, mcpHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	r.Use(cors.Default())

	root := r.Group("app").Group("api").Group("v1")
	h.Register(root)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if mcpHandler != nil {
		r.Any("/mcp", h.noWriteDeadline(), gin.WrapH(mcpHandler))
	}
	return r
}

func (h *Handler) Register(appRouter gin.IRouter) {
	appRouter.GET("/health", h.Health)
	appRouter.GET("/version", h.Version)
	appRouter.GET("/notes", h.ListNotes)
	appRouter.GET("/notes/:id", h.DescribeNote)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	tok := h.tokens.Cached()
	middleware.Success(gin.H{
		"status":            "healthy",
		"service":           serviceName,
		"app_token_cached":  tok.UsableAt(h.now()),
		"app_token_expires": tok.ExpiresAt,
	}, c)
}

// Version 版本信息
func (h *Handler) Version(c *gin.Context) {
	middleware.Success(gin.H{"version": h.version}, c)
}

// ListNotes 分页查询笔记
func (h *Handler) ListNotes(c *gin.Context) {
	page, err := middleware.NewPageRequestFromContext(c)
	if err != nil {
		middleware.Failed(err, c)
		return
	}

	set, err := h.notes.ListNotes(c.Request.Context(), page)
	if err != nil {
		h.logger.Error("Failed to list notes: %v", err)
		middleware.Failed(err, c)
		return
	}
	middleware.Success(set, c)
}

// DescribeNote 查询笔记详情
func (h *Handler) DescribeNote(c *gin.Context) {
	n, err := h.notes.DescribeNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, notes.ErrNotFound) {
			middleware.Failed(middleware.ErrNotFound("note %s not found", c.Param("id")), c)
			return
		}
		h.logger.Error("Failed to describe note %s: %v", c.Param("id"), err)
		middleware.Failed(err, c)
		return
	}
	middleware.Success(n, c)
}

// accessLog 通过应用日志记录请求
// noWriteDeadline 取消 /mcp 的写超时
// 一次工具调用包含多次串行的厂商请求，耗时可能超过 server 的 WriteTimeout
func (h *Handler) noWriteDeadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
			h.logger.Debug("Failed to clear write deadline: %v", err)
		}
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
