package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"connstatus/internal/config"
	"connstatus/internal/logger"
)

// ErrWebhookStatus webhook 返回非 2xx
var ErrWebhookStatus = errors.New("webhook 返回非 2xx 状态码")

// Level 消息级别
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Payload webhook 请求体
type Payload struct {
	Target    string `json:"target"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Webhook 异步 webhook 消息通道
//
// 消息先进入有界队列，由单个 worker 按速率限制依次投递；队列满时丢弃新消息。
// 投递失败只记录日志，不重试。
type Webhook struct {
	url     string
	target  string
	client  *http.Client
	limiter *rate.Limiter
	queue   chan Payload
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
}

// NewWebhook 按配置创建 webhook 通道；未配置地址时返回 nil
func NewWebhook(cfg config.NotifyConfig, target string) *Webhook {
	if cfg.WebhookURL == "" {
		return nil
	}
	perMinute := cfg.WebhookRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	timeout := cfg.WebhookTimeoutDuration
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Webhook{
		url:     cfg.WebhookURL,
		target:  target,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		queue:   make(chan Payload, queueSize),
		now:     time.Now,
	}
}

// Info 信息消息
func (w *Webhook) Info(message string) {
	w.enqueue(LevelInfo, message)
}

// Error 错误消息
func (w *Webhook) Error(message string) {
	w.enqueue(LevelError, message)
}

func (w *Webhook) enqueue(level Level, message string) {
	p := Payload{Target: w.target, Level: level, Message: message, Timestamp: w.now().Unix()}
	select {
	case w.queue <- p:
	default:
		logger.Warn("notify", "webhook 队列已满，丢弃消息", "level", level, "queue_size", cap(w.queue))
	}
}

// Start 启动投递 worker（非阻塞）
func (w *Webhook) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	logger.Info("notify", "webhook 投递已启动",
		"url", w.url, "rate_per_minute", float64(w.limiter.Limit())*60, "queue_size", cap(w.queue))

	go w.run(ctx, w.done)
}

func (w *Webhook) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.queue:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			if err := w.send(ctx, p); err != nil {
				logger.Warn("notify", "webhook 投递失败", "level", p.Level, "error", err)
			}
		}
	}
}

// send 同步投递一条消息
func (w *Webhook) send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化 webhook 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "connstatus-webhook")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}

// Pending 队列中待投递消息数
func (w *Webhook) Pending() int {
	return len(w.queue)
}

// Close 停止 worker 并等待退出，未投递的消息被丢弃
func (w *Webhook) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		cancel, done := w.cancel, w.done
		w.running = false
		w.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		if n := len(w.queue); n > 0 {
			logger.Warn("notify", "webhook 关闭时丢弃未投递消息", "count", n)
		}
	})
}
