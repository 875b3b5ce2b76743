package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dingtalk-mcp/dingtalk/pkg/auth"
	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/dingtalk/pkg/notes/impl"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fixedToken auth.CachedToken

func (f fixedToken) Cached() auth.CachedToken { return auth.CachedToken(f) }

func newRouter(t *testing.T, mcpHandler http.Handler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHandler("0.1.0", impl.NewMemoryImpl(notes.Seed()...),
		fixedToken{Value: "t", ExpiresAt: now.Add(time.Hour)}, logger.NewLoggerWithWriter("debug", io.Discard))
	h.now = func() time.Time { return now }
	return NewRouter(h, mcpHandler)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	w := get(newRouter(t, nil), "/app/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]any)
	require.Equal(t, "healthy", data["status"])
	require.Equal(t, true, data["app_token_cached"])
}

func TestVersion(t *testing.T) {
	w := get(newRouter(t, nil), "/app/api/v1/version")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.1.0", decode(t, w)["data"].(map[string]any)["version"])
}

func TestListNotes(t *testing.T) {
	r := newRouter(t, nil)

	w := get(r, "/app/api/v1/notes?pageNum=1&pageSize=1")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	require.EqualValues(t, 2, data["total"])
	require.Len(t, data["items"], 1)

	w = get(r, "/app/api/v1/notes?pageSize=abc")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.EqualValues(t, 40000, decode(t, w)["code"])
}

func TestDescribeNote(t *testing.T) {
	r := newRouter(t, nil)

	w := get(r, "/app/api/v1/notes/1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "First Note", decode(t, w)["data"].(map[string]any)["title"])

	w = get(r, "/app/api/v1/notes/404")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.EqualValues(t, 40400, decode(t, w)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ToolCalls.WithLabelValues("probe", "success").Inc()

	w := get(newRouter(t, nil), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dingtalk_mcp_tool_calls_total")
}

func TestMCPMount(t *testing.T) {
	called := false
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})
	r := newRouter(t, mcpHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	require.True(t, called)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = get(newRouter(t, nil), "/mcp")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMCPIgnoresServerWriteTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewUnstartedServer(newRouter(t, slow))
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "done", string(body))
}
