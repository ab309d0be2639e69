package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestClientLimiterPerIP(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := newClientLimiter(60, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("突发容量内应放行")
	}
	if l.Allow("a") {
		t.Fatalf("超出突发容量应拒绝")
	}
	if !l.Allow("b") {
		t.Fatalf("不同 IP 独立计数")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("1 秒后应补充 1 个令牌")
	}
}

func TestClientLimiterPrunesIdleClients(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := newClientLimiter(60, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	now = now.Add(10 * time.Minute)
	l.Allow("c")
	if l.Len() != 1 {
		t.Fatalf("空闲条目应被清理: len=%d", l.Len())
	}
}

func TestClientLimiterMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	l := newClientLimiter(60, 1)
	r := gin.New()
	r.GET("/x", l.middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w
	}
	if w := do(); w.Code != http.StatusNoContent {
		t.Fatalf("首个请求应放行: %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("应返回 429 与 Retry-After: %d %q", w.Code, w.Header().Get("Retry-After"))
	}
}
