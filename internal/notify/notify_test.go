package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connstatus/internal/config"
)

type captureServer struct {
	mu       sync.Mutex
	payloads []Payload
}

func (c *captureServer) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			c.mu.Lock()
			c.payloads = append(c.payloads, p)
			c.mu.Unlock()
		}
		w.WriteHeader(status)
	}
}

func (c *captureServer) snapshot() []Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Payload, len(c.payloads))
	copy(out, c.payloads)
	return out
}

func webhookConfig(url string, queue int) config.NotifyConfig {
	return config.NotifyConfig{
		WebhookURL:             url,
		WebhookRatePerMinute:   6000,
		QueueSize:              queue,
		WebhookTimeoutDuration: time.Second,
	}
}

func TestNewWebhookDisabledWithoutURL(t *testing.T) {
	t.Parallel()
	if w := NewWebhook(config.NotifyConfig{}, "backend"); w != nil {
		t.Fatalf("未配置地址时应返回 nil")
	}
}

func TestWebhookDeliversInOrder(t *testing.T) {
	t.Parallel()

	capture := &captureServer{}
	srv := httptest.NewServer(capture.handler(http.StatusNoContent))
	defer srv.Close()

	w := NewWebhook(webhookConfig(srv.URL, 8), "backend")
	w.Start(context.Background())
	defer w.Close()

	w.Error("lost")
	w.Info("restored")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(capture.snapshot()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	got := capture.snapshot()
	if len(got) != 2 {
		t.Fatalf("投递数 = %d, want 2", len(got))
	}
	if got[0].Level != LevelError || got[0].Message != "lost" || got[0].Target != "backend" {
		t.Fatalf("第一条错误: %+v", got[0])
	}
	if got[1].Level != LevelInfo || got[1].Message != "restored" {
		t.Fatalf("第二条错误: %+v", got[1])
	}
}

func TestWebhookDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	// 未启动 worker，队列不会被消费
	w := NewWebhook(webhookConfig("http://127.0.0.1:1/hook", 2), "backend")
	for i := 0; i < 5; i++ {
		w.Info("msg")
	}
	if w.Pending() != 2 {
		t.Fatalf("队列满后应丢弃: pending=%d", w.Pending())
	}
	w.Close()
	w.Close()
}

func TestWebhookSendReportsStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&captureServer{}).handler(http.StatusInternalServerError))
	defer srv.Close()

	w := NewWebhook(webhookConfig(srv.URL, 1), "backend")
	err := w.send(context.Background(), Payload{Level: LevelInfo, Message: "x"})
	if err == nil {
		t.Fatalf("500 应返回错误")
	}
}

type recordingService struct{ infos, errors []string }

func (r *recordingService) Info(m string)  { r.infos = append(r.infos, m) }
func (r *recordingService) Error(m string) { r.errors = append(r.errors, m) }

func TestFanoutSkipsNil(t *testing.T) {
	t.Parallel()

	a, b := &recordingService{}, &recordingService{}
	f := Fanout{a, nil, b, LogMessages{}}
	f.Info("i")
	f.Error("e")

	for _, r := range []*recordingService{a, b} {
		if len(r.infos) != 1 || len(r.errors) != 1 {
			t.Fatalf("扇出结果错误: %+v", r)
		}
	}
}
