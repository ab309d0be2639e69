package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("空配置应使用默认值: %v", err)
	}

	cs := cfg.ConnectionStatus
	if cs.ProbeTimeoutDuration != time.Second {
		t.Fatalf("probe_timeout 默认值错误: %v", cs.ProbeTimeoutDuration)
	}
	if cs.RetryThreshold != 5 {
		t.Fatalf("retry_threshold 默认值错误: %d", cs.RetryThreshold)
	}
	if cs.PollIntervalDuration != 2*time.Second {
		t.Fatalf("poll_interval 默认值错误: %v", cs.PollIntervalDuration)
	}
	if got := cfg.Target.AliveURL(); got != "http://127.0.0.1:8080/alive" {
		t.Fatalf("默认探测地址错误: %s", got)
	}
	if cfg.Target.ExpectBody != "OK" {
		t.Fatalf("expect_body 默认值错误: %q", cfg.Target.ExpectBody)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "connstatus.db" {
		t.Fatalf("存储默认值错误: %+v", cfg.Storage)
	}
	if cfg.Notify.WebhookRatePerMinute != 30 || cfg.Notify.QueueSize != 64 {
		t.Fatalf("notify 默认值错误: %+v", cfg.Notify)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log 默认值错误: %+v", cfg.Log)
	}
	if cs != DefaultConnectionStatusOptions() {
		t.Fatalf("默认心跳参数与 DefaultConnectionStatusOptions 不一致: %+v", cs)
	}
}

func TestParseFullConfig(t *testing.T) {
	t.Parallel()

	data := []byte(`
target:
  name: api
  origin: "https://backend.example.com/"
  alive_path: "healthz"
  expect_body: "OK"
connection_status:
  probe_timeout: "500ms"
  retry_threshold: 3
  poll_interval: "10s"
server:
  port: "9090"
  cors_origins: ["https://ui.example.com"]
storage:
  type: postgres
  postgres:
    host: db
    user: conn
    database: connstatus
  retention:
    enabled: true
    days: 3
log:
  level: DEBUG
  format: json
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if got := cfg.Target.AliveURL(); got != "https://backend.example.com/healthz" {
		t.Fatalf("AliveURL = %s", got)
	}
	if cfg.ConnectionStatus.ProbeTimeoutDuration != 500*time.Millisecond ||
		cfg.ConnectionStatus.PollIntervalDuration != 10*time.Second ||
		cfg.ConnectionStatus.RetryThreshold != 3 {
		t.Fatalf("心跳参数解析错误: %+v", cfg.ConnectionStatus)
	}
	if cfg.Storage.Postgres.Port != 5432 || cfg.Storage.Postgres.SSLMode != "disable" {
		t.Fatalf("postgres 默认值错误: %+v", cfg.Storage.Postgres)
	}
	if cfg.Storage.Postgres.ConnMaxLifetimeDuration != time.Hour {
		t.Fatalf("conn_max_lifetime 解析错误: %v", cfg.Storage.Postgres.ConnMaxLifetimeDuration)
	}
	if !cfg.Storage.Retention.IsEnabled() || cfg.Storage.Retention.Days != 3 {
		t.Fatalf("retention 解析错误: %+v", cfg.Storage.Retention)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log 配置规范化错误: %+v", cfg.Log)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"负阈值", "connection_status:\n  retry_threshold: -1\n", "retry_threshold"},
		{"零超时", "connection_status:\n  probe_timeout: \"0s\"\n", "probe_timeout"},
		{"负间隔", "connection_status:\n  poll_interval: \"-2s\"\n", "poll_interval"},
		{"无效 duration", "connection_status:\n  poll_interval: \"abc\"\n", "poll_interval"},
		{"非 http 协议", "target:\n  origin: \"ftp://example.com\"\n", "target.origin"},
		{"未知存储类型", "storage:\n  type: mysql\n", "storage.type"},
		{"postgres 缺少 host", "storage:\n  type: postgres\n", "storage.postgres.host"},
		{"无效端口", "server:\n  port: \"99999\"\n", "server.port"},
		{"无效日志级别", "log:\n  level: verbose\n", "log.level"},
		{"未知字段", "unknown_field: 1\n", "YAML"},
		{"webhook 地址无效", "notify:\n  webhook_url: \"not a url\"\n", "notify.webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("期望报错")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("错误信息应包含 %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CONNSTATUS_ORIGIN", "http://10.0.0.1:9000")
	t.Setenv("CONNSTATUS_RETRY_THRESHOLD", "7")
	t.Setenv("CONNSTATUS_POLL_INTERVAL", "3s")
	t.Setenv("CONNSTATUS_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("EVENTS_API_TOKEN", "secret")

	cfg, err := Parse([]byte("connection_status:\n  retry_threshold: 2\n"))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.Target.Origin != "http://10.0.0.1:9000" {
		t.Fatalf("origin 未被覆盖: %s", cfg.Target.Origin)
	}
	if cfg.ConnectionStatus.RetryThreshold != 7 {
		t.Fatalf("环境变量应覆盖文件配置, got %d", cfg.ConnectionStatus.RetryThreshold)
	}
	if cfg.ConnectionStatus.PollIntervalDuration != 3*time.Second {
		t.Fatalf("poll_interval 未被覆盖: %v", cfg.ConnectionStatus.PollIntervalDuration)
	}
	if cfg.Storage.SQLite.Path != "/tmp/x.db" {
		t.Fatalf("sqlite path 未被覆盖: %s", cfg.Storage.SQLite.Path)
	}
	if cfg.Events.APIToken != "secret" {
		t.Fatalf("events token 未被覆盖")
	}
}

func TestApplyEnvOverridesIgnoresInvalidInt(t *testing.T) {
	t.Setenv("CONNSTATUS_RETRY_THRESHOLD", "many")

	cfg, err := Parse([]byte("connection_status:\n  retry_threshold: 2\n"))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.ConnectionStatus.RetryThreshold != 2 {
		t.Fatalf("无效环境变量应被忽略, got %d", cfg.ConnectionStatus.RetryThreshold)
	}
}

func TestLoaderRollback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("connection_status:\n  retry_threshold: 3\n"), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	loader := NewLoader()
	if loader.Current() != nil {
		t.Fatalf("未加载时 Current 应为 nil")
	}
	if _, err := loader.Load(path); err != nil {
		t.Fatalf("首次加载失败: %v", err)
	}

	if err := os.WriteFile(path, []byte("connection_status:\n  retry_threshold: -3\n"), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	if _, err := loader.LoadOrRollback(path); err == nil {
		t.Fatalf("无效配置应返回错误")
	}
	if got := loader.Current().ConnectionStatus.RetryThreshold; got != 3 {
		t.Fatalf("回滚后应保留旧配置, got threshold=%d", got)
	}

	if err := os.WriteFile(path, []byte("connection_status:\n  retry_threshold: 4\n"), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	cfg, err := loader.LoadOrRollback(path)
	if err != nil {
		t.Fatalf("有效配置加载失败: %v", err)
	}
	if cfg.ConnectionStatus.RetryThreshold != 4 || loader.Current().ConnectionStatus.RetryThreshold != 4 {
		t.Fatalf("新配置未生效")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	enabled := true
	cfg := &AppConfig{
		Server:  ServerConfig{CORSOrigins: []string{"a"}},
		Storage: StorageConfig{Retention: RetentionConfig{Enabled: &enabled}},
	}
	clone := cfg.Clone()
	clone.Server.CORSOrigins[0] = "b"
	*clone.Storage.Retention.Enabled = false

	if cfg.Server.CORSOrigins[0] != "a" || !*cfg.Storage.Retention.Enabled {
		t.Fatalf("Clone 未深拷贝")
	}
}

func TestPollerChanged(t *testing.T) {
	t.Parallel()

	base, err := Parse(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	same := base.Clone()
	same.Server.CORSOrigins = []string{"x"}
	same.Events.APIToken = "new"
	if base.PollerChanged(same) {
		t.Fatalf("与探测无关的变更不应重建 poller")
	}

	threshold := base.Clone()
	threshold.ConnectionStatus.RetryThreshold = 9
	if !base.PollerChanged(threshold) {
		t.Fatalf("阈值变化应重建 poller")
	}

	target := base.Clone()
	target.Target.AlivePath = "/ping"
	if !base.PollerChanged(target) {
		t.Fatalf("目标变化应重建 poller")
	}
}

func TestLoadDotenvKnownKeys(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"CONNSTATUS_ORIGIN=http://dotenv.example.com",
		"CONNSTATUS_PORT=9999",
		"CONNSTATUS_ORIGN=http://typo.example.com",
		"DOTENV_TEST_EXTRA=1",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}

	// 进程中已有的变量不被覆盖，其余变量在测试结束后恢复
	t.Setenv(EnvPort, "7777")
	for _, key := range []string{EnvOrigin, "CONNSTATUS_ORIGN", "DOTENV_TEST_EXTRA"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	res, err := LoadDotenvFromConfigDir(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("加载 .env 失败: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != EnvOrigin {
		t.Fatalf("Applied = %v", res.Applied)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != EnvPort {
		t.Fatalf("Skipped = %v", res.Skipped)
	}
	if len(res.Unknown) != 1 || res.Unknown[0] != "CONNSTATUS_ORIGN" || res.Other != 1 {
		t.Fatalf("Unknown = %v, Other = %d", res.Unknown, res.Other)
	}
	if _, ok := os.LookupEnv("CONNSTATUS_ORIGN"); ok {
		t.Fatalf("未知配置键不应写入环境")
	}
	if os.Getenv(EnvPort) != "7777" {
		t.Fatalf("已存在的环境变量被覆盖")
	}

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.Target.Origin != "http://dotenv.example.com" || cfg.Server.Port != "7777" {
		t.Fatalf(".env 覆盖未生效: origin=%s port=%s", cfg.Target.Origin, cfg.Server.Port)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	t.Parallel()

	res, err := LoadDotenvFromConfigDir(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil || res != nil {
		t.Fatalf("缺少 .env 应静默忽略: res=%v err=%v", res, err)
	}
}
