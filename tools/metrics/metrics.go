package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TokenExchanges 令牌交换次数 (grant=app|user, outcome=success|failure)
	TokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dingtalk_token_exchanges_total",
			Help: "钉钉 OAuth2 令牌交换次数",
		},
		[]string{"grant", "outcome"},
	)

	// TokenCacheHits 应用令牌缓存命中次数
	TokenCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingtalk_app_token_cache_hits_total",
			Help: "应用级 access token 命中缓存的次数",
		},
	)

	// VendorRequests 钉钉开放接口调用次数
	VendorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dingtalk_api_requests_total",
			Help: "钉钉开放接口调用次数",
		},
		[]string{"endpoint", "outcome"},
	)

	// ToolCalls MCP 工具调用次数
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dingtalk_mcp_tool_calls_total",
			Help: "MCP 工具调用次数 (outcome=success|failure)",
		},
		[]string{"tool", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(TokenExchanges)
	prometheus.MustRegister(TokenCacheHits)
	prometheus.MustRegister(VendorRequests)
	prometheus.MustRegister(ToolCalls)
}

// Outcome 把错误映射成 outcome 标签
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
