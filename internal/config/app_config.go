// Package config 提供配置文件解析、校验、环境变量覆盖与热更新
package config

import (
	"strings"
	"time"
)

// AppConfig 应用配置
type AppConfig struct {
	// 被探测的后端存活端点
	Target TargetConfig `yaml:"target" json:"target"`

	// 心跳探测参数（每个 poller 实例固定，变更需重建 poller）
	ConnectionStatus ConnectionStatusOptions `yaml:"connection_status" json:"connection_status"`

	// HTTP 服务
	Server ServerConfig `yaml:"server" json:"server"`

	// 状态事件 API
	Events EventsConfig `yaml:"events" json:"events"`

	// 状态通知（webhook）
	Notify NotifyConfig `yaml:"notify" json:"notify"`

	// 存储配置
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// 日志
	Log LogConfig `yaml:"log" json:"log"`
}

// TargetConfig 存活探测目标
type TargetConfig struct {
	// 目标名称（写入探测记录与状态事件，默认 "backend"）
	Name string `yaml:"name" json:"name"`

	// 存活端点所在源站，例如 http://127.0.0.1:8080（默认指向本服务）
	Origin string `yaml:"origin" json:"origin"`

	// 存活端点路径（默认 /alive）
	AlivePath string `yaml:"alive_path" json:"alive_path"`

	// 期望的响应体，逐字节比较（默认 OK）
	ExpectBody string `yaml:"expect_body" json:"expect_body"`
}

// AliveURL 拼接完整的存活端点地址
func (t TargetConfig) AliveURL() string {
	origin := strings.TrimRight(strings.TrimSpace(t.Origin), "/")
	path := strings.TrimSpace(t.AlivePath)
	if path == "" {
		path = "/alive"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin + path
}

// ConnectionStatusOptions 心跳探测参数
type ConnectionStatusOptions struct {
	// 单次探测超时（默认 "1s"）
	ProbeTimeout string `yaml:"probe_timeout" json:"probe_timeout"`

	// 判定窗口：最近 retry_threshold 次探测全部失败才视为连接丢失（默认 5）
	RetryThreshold int `yaml:"retry_threshold" json:"retry_threshold"`

	// 探测间隔（默认 "2s"）
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// 解析后的时间（内部使用，不序列化）
	ProbeTimeoutDuration time.Duration `yaml:"-" json:"-"`
	PollIntervalDuration time.Duration `yaml:"-" json:"-"`
}

// 心跳参数默认值
const (
	DefaultProbeTimeout   = time.Second
	DefaultRetryThreshold = 5
	DefaultPollInterval   = 2 * time.Second

	// DefaultExpectBody 存活端点的规范响应体
	DefaultExpectBody = "OK"

	defaultWebhookTimeout = 5 * time.Second
)

// DefaultConnectionStatusOptions 返回已规范化的默认心跳参数
func DefaultConnectionStatusOptions() ConnectionStatusOptions {
	return ConnectionStatusOptions{
		ProbeTimeout:         DefaultProbeTimeout.String(),
		RetryThreshold:       DefaultRetryThreshold,
		PollInterval:         DefaultPollInterval.String(),
		ProbeTimeoutDuration: DefaultProbeTimeout,
		PollIntervalDuration: DefaultPollInterval,
	}
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port        string   `yaml:"port" json:"port"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// EventsConfig 状态事件 API 配置
type EventsConfig struct {
	// 访问 /api/events 所需的 Bearer Token（为空时接口返回 503）
	APIToken string `yaml:"api_token" json:"-"`
}

// NotifyConfig 状态通知配置
type NotifyConfig struct {
	// Webhook 地址（为空则只写日志）
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`

	// 每分钟最多投递次数（默认 30）
	WebhookRatePerMinute int `yaml:"webhook_rate_per_minute" json:"webhook_rate_per_minute"`

	// 投递队列长度（默认 64，满时丢弃最新消息）
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// 单次投递超时（默认 "5s"）
	WebhookTimeout string `yaml:"webhook_timeout" json:"webhook_timeout"`

	WebhookTimeoutDuration time.Duration `yaml:"-" json:"-"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug|info|warn|error
	Format string `yaml:"format" json:"format"` // text|json
}
