package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	// SendModePersonal 以用户身份发送单聊消息（需要授权码）
	SendModePersonal = "personal"
	// SendModeAgent 以应用（agent_id）身份发送工作通知
	SendModeAgent = "agent"

	// TransportStdio MCP 走标准输入输出
	TransportStdio = "stdio"
	// TransportHTTP MCP 走 Streamable HTTP
	TransportHTTP = "http"
)

// Credentials 钉钉应用凭证，构造后不可修改
type Credentials struct {
	AppKey    string
	AppSecret string
}

// Config 应用配置结构
type Config struct {
	// 钉钉配置
	Credentials Credentials
	AgentID     string
	SendMode    string
	APIBaseURL  string
	OAPIBaseURL string

	// Token 安全余量，在名义过期时间前提前失效
	TokenSafetyMargin time.Duration
	// 搜索分页大小
	SearchPageSize int

	// MCP 配置
	Transport string

	// 服务器配置
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// 日志配置
	LogLevel string

	// 性能配置
	HTTPTimeout         time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// mysql 配置（notes 存储，可选）
	mysqlHost     string
	mysqlPort     int
	mysqlUser     string
	mysqlPassword string
	mysqlDatabase string
	debug         bool
	db            *gorm.DB
	lock          sync.Mutex
}

// LoadConfig 从环境变量加载配置
// 每次调用都会构造新的 Config，由 main 在启动时调用一次并向下传递
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Credentials: Credentials{
			AppKey:    getEnv("DINGTALK_APP_KEY", ""),
			AppSecret: getEnv("DINGTALK_APP_SECRET", ""),
		},
		AgentID:     getEnv("DINGTALK_AGENT_ID", ""),
		SendMode:    strings.ToLower(getEnv("DINGTALK_SEND_MODE", SendModePersonal)),
		APIBaseURL:  strings.TrimRight(getEnv("DINGTALK_API_BASE_URL", "https://api.dingtalk.com"), "/"),
		OAPIBaseURL: strings.TrimRight(getEnv("DINGTALK_OAPI_BASE_URL", "https://oapi.dingtalk.com"), "/"),

		TokenSafetyMargin: getDurationEnv("DINGTALK_TOKEN_MARGIN", 5*time.Minute),
		SearchPageSize:    getIntEnv("DINGTALK_SEARCH_PAGE_SIZE", 10),

		Transport: strings.ToLower(getEnv("MCP_TRANSPORT", TransportStdio)),

		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// 超时配置
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),

		// 连接池配置
		HTTPTimeout:         getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxIdleConns:        getIntEnv("MAX_IDLE_CONNS", 100),
		MaxIdleConnsPerHost: getIntEnv("MAX_IDLE_CONNS_PER_HOST", 10),
		IdleConnTimeout:     getDurationEnv("IDLE_CONN_TIMEOUT", 90*time.Second),

		mysqlHost:     getEnv("MYSQL_HOST", ""),
		mysqlPort:     getIntEnv("MYSQL_PORT", 3306),
		mysqlUser:     getEnv("MYSQL_USER", "root"),
		mysqlPassword: getEnv("MYSQL_PASSWORD", ""),
		mysqlDatabase: getEnv("MYSQL_DATABASE", "dingtalk_mcp"),
		debug:         getBoolEnv("DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Credentials.AppKey == "" {
		return fmt.Errorf("DINGTALK_APP_KEY is required")
	}
	if c.Credentials.AppSecret == "" {
		return fmt.Errorf("DINGTALK_APP_SECRET is required")
	}
	switch c.SendMode {
	case SendModePersonal:
	case SendModeAgent:
		if c.AgentID == "" {
			return fmt.Errorf("DINGTALK_AGENT_ID is required when DINGTALK_SEND_MODE=%s", SendModeAgent)
		}
		if _, err := strconv.ParseInt(c.AgentID, 10, 64); err != nil {
			return fmt.Errorf("DINGTALK_AGENT_ID must be numeric, got %q", c.AgentID)
		}
	default:
		return fmt.Errorf("unsupported DINGTALK_SEND_MODE: %s", c.SendMode)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT: %s", c.Transport)
	}
	if c.SearchPageSize <= 0 {
		return fmt.Errorf("DINGTALK_SEARCH_PAGE_SIZE must be positive, got %d", c.SearchPageSize)
	}
	if c.TokenSafetyMargin < 0 {
		return fmt.Errorf("DINGTALK_TOKEN_MARGIN must not be negative")
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv 获取整数类型的环境变量
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv 获取布尔类型的环境变量
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv 获取时间间隔类型的环境变量（秒）
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return defaultValue
}

// MySQLEnabled 是否配置了 MySQL
func (c *Config) MySQLEnabled() bool {
	return c.mysqlHost != ""
}

// DSN 数据库连接字符串
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.mysqlUser, c.mysqlPassword, c.mysqlHost, c.mysqlPort, c.mysqlDatabase)
}

// GetDB 获取DB，首次调用时建立连接
func (c *Config) GetDB() (*gorm.DB, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.MySQLEnabled() {
		return nil, fmt.Errorf("mysql is not configured (MYSQL_HOST is empty)")
	}

	if c.db == nil {
		db, err := gorm.Open(mysql.Open(c.DSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect mysql: %w", err)
		}
		if c.debug {
			db = db.Debug()
		}
		c.db = db
	}

	return c.db, nil
}
