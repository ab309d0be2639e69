// Package monitor 实现后端存活探测
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"connstatus/internal/config"
	"connstatus/internal/logger"
)

// 探测失败分类（调用方用 errors.Is 判断）
var (
	ErrProbeTimeout     = errors.New("探测超时")
	ErrProbeTransport   = errors.New("传输错误")
	ErrProbeBadResponse = errors.New("响应异常")
)

// FailureKind 失败类型
type FailureKind string

const (
	KindNone        FailureKind = ""
	KindTimeout     FailureKind = "timeout"
	KindTransport   FailureKind = "transport_error"
	KindBadResponse FailureKind = "bad_response"
)

// maxBodyBytes 存活响应体读取上限
const maxBodyBytes = 4 << 10

// ProbeResult 探测结果
type ProbeResult struct {
	Target    string
	Success   bool
	Kind      FailureKind
	HttpCode  int // HTTP 状态码（0 表示非 HTTP 错误）
	Latency   int // ms
	Timestamp int64
	Error     error
}

// Prober 存活探测器
type Prober struct {
	client     *http.Client
	target     string
	url        string
	expectBody string
	timeout    time.Duration
}

// NewProber 创建探测器，timeout <= 0 时使用 1s，expect_body 为空时使用 OK
func NewProber(target config.TargetConfig, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	expectBody := target.ExpectBody
	if expectBody == "" {
		expectBody = config.DefaultExpectBody
	}
	return &Prober{
		client:     newHTTPClient(),
		target:     target.Name,
		url:        target.AliveURL(),
		expectBody: expectBody,
		timeout:    timeout,
	}
}

// URL 探测地址
func (p *Prober) URL() string {
	return p.url
}

// Close 释放空闲连接
func (p *Prober) Close() {
	p.client.CloseIdleConnections()
}

// Probe 执行单次 GET 探测
// 仅 HTTP 200 且响应体与 expect_body 完全一致视为成功，其余一律失败
func (p *Prober) Probe(ctx context.Context) *ProbeResult {
	result := &ProbeResult{
		Target:    p.target,
		Timestamp: time.Now().Unix(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.fail(result, KindTransport, fmt.Errorf("%w: 创建请求失败: %v", ErrProbeTransport, err))
		return result
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	result.Latency = int(time.Since(start).Milliseconds())
	if err != nil {
		drainAndClose(resp)
		if errors.Is(err, context.DeadlineExceeded) {
			p.fail(result, KindTimeout, fmt.Errorf("%w(%v): %v", ErrProbeTimeout, p.timeout, err))
		} else {
			p.fail(result, KindTransport, fmt.Errorf("%w: %v", ErrProbeTransport, err))
		}
		return result
	}

	result.HttpCode = resp.StatusCode
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	drainAndClose(resp)

	switch {
	case resp.StatusCode != http.StatusOK:
		p.fail(result, KindBadResponse, fmt.Errorf("%w: HTTP %d", ErrProbeBadResponse, resp.StatusCode))
	case readErr != nil:
		if errors.Is(readErr, context.DeadlineExceeded) {
			p.fail(result, KindTimeout, fmt.Errorf("%w(%v): 读取响应体: %v", ErrProbeTimeout, p.timeout, readErr))
		} else {
			p.fail(result, KindTransport, fmt.Errorf("%w: 读取响应体: %v", ErrProbeTransport, readErr))
		}
	case string(body) != p.expectBody:
		p.fail(result, KindBadResponse, fmt.Errorf("%w: 响应体不匹配", ErrProbeBadResponse))
	default:
		result.Success = true
		logger.Debug("probe", "探测成功", "target", p.target, "latency_ms", result.Latency)
	}

	return result
}

// fail 记录失败结果
func (p *Prober) fail(result *ProbeResult, kind FailureKind, err error) {
	result.Success = false
	result.Kind = kind
	result.Error = err
	logger.Warn("probe", "探测失败",
		"target", p.target, "url", p.url, "kind", string(kind),
		"code", result.HttpCode, "latency_ms", result.Latency, "error", err)
}

// drainAndClose 读尽并关闭响应体，保证连接可复用
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
