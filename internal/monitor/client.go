package monitor

import (
	"net/http"
	"time"
)

// newHTTPClient 创建探测用 HTTP 客户端（复用连接）
// 注意：不设置 Timeout，由 probe.go 使用 context.WithTimeout 控制每个请求的超时
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
		},
		// 存活端点不应重定向，3xx 直接视为异常响应
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
