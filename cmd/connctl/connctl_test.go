package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"connstatus/internal/api"
	"connstatus/internal/monitor"
	"connstatus/internal/status"
)

func init() {
	color.NoColor = true
}

func TestFormatProbe(t *testing.T) {
	ok := formatProbe(&monitor.ProbeResult{Target: "backend", Success: true, HttpCode: 200, Latency: 7})
	if !strings.HasPrefix(ok, "OK") || !strings.Contains(ok, "latency=7ms") {
		t.Fatalf("成功输出错误: %q", ok)
	}
	fail := formatProbe(&monitor.ProbeResult{Target: "backend", Kind: monitor.KindBadResponse, HttpCode: 503})
	if !strings.HasPrefix(fail, "FAIL") || !strings.Contains(fail, "bad_response http=503") {
		t.Fatalf("失败输出错误: %q", fail)
	}
}

func TestEventPrinterHighlightsChanges(t *testing.T) {
	var lines []string
	p := &eventPrinter{
		now:   func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
		write: func(s string) { lines = append(lines, s) },
	}
	p.OnStatusChange(status.ChangeEvent{State: status.Connected, Health: 100})
	p.OnStatusChange(status.ChangeEvent{State: status.Connected, Health: 80})
	p.OnStatusChange(status.ChangeEvent{State: status.ConnectionLost, Health: 0})

	if len(lines) != 3 {
		t.Fatalf("行数 = %d", len(lines))
	}
	for i, want := range []bool{false, false, true} {
		if got := strings.Contains(lines[i], "state changed"); got != want {
			t.Fatalf("第 %d 行高亮 = %v, want %v: %q", i, got, want, lines[i])
		}
	}
	if !strings.Contains(lines[2], "connection_lost") || !strings.Contains(lines[2], "  0%") {
		t.Fatalf("输出错误: %q", lines[2])
	}
}

func TestFetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"API token 无效"}`))
			return
		}
		if r.URL.Query().Get("types") != "DOWN" || r.URL.Query().Get("since_id") != "5" {
			t.Errorf("查询参数错误: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(api.EventsResponse{
			Events: []api.EventItem{{ID: 6, Type: "DOWN", FromState: "connected", ToState: "connection_lost"}},
			Meta:   api.EventsMeta{NextSinceID: 6, Count: 1},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	page, err := fetchEvents(ctx, srv.Client(), srv.URL+"/", "tok", 5, 10, "DOWN")
	if err != nil {
		t.Fatalf("fetchEvents 失败: %v", err)
	}
	if page.Meta.NextSinceID != 6 || len(page.Events) != 1 || page.Events[0].ToState != "connection_lost" {
		t.Fatalf("响应错误: %+v", page)
	}

	if _, err := fetchEvents(ctx, srv.Client(), srv.URL, "bad", 5, 10, "DOWN"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("错误 token 应返回 403 错误, got %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	old := configPath
	t.Cleanup(func() { configPath = old })
	configPath = filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig 失败: %v", err)
	}
	if cfg.ConnectionStatus.RetryThreshold != 5 || cfg.Target.AliveURL() != "http://127.0.0.1:8080/alive" {
		t.Fatalf("默认配置错误: %+v %s", cfg.ConnectionStatus, cfg.Target.AliveURL())
	}
}

func TestRenderConfigRoundTrip(t *testing.T) {
	tpl := defaultTemplate()
	tpl.Name = `we"ird`
	tpl.RetryThreshold = 3
	tpl.WebhookURL = "https://hooks.example.com/x"

	out, err := renderConfig(tpl)
	if err != nil {
		t.Fatalf("renderConfig 失败: %v", err)
	}
	if !strings.Contains(out, `name: "we\"ird"`) {
		t.Fatalf("未正确转义: %s", out)
	}

	tpl.RetryThreshold = -1
	if _, err := renderConfig(tpl); err == nil {
		t.Fatalf("非法阈值应校验失败")
	}
}
