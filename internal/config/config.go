package config

import (
	"fmt"
	"strings"

	"connstatus/internal/logger"
)

// Normalize 填充默认值并解析 duration 字段
func (c *AppConfig) Normalize() error {
	// 服务端口（默认 8080）
	if strings.TrimSpace(c.Server.Port) == "" {
		c.Server.Port = "8080"
	}

	if err := c.normalizeTarget(); err != nil {
		return err
	}
	if err := c.ConnectionStatus.Normalize(); err != nil {
		return err
	}
	if err := c.normalizeNotify(); err != nil {
		return err
	}
	if err := c.Storage.normalize(); err != nil {
		return err
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	return nil
}

// normalizeTarget 探测目标默认值：未配置 origin 时探测本服务自身的存活端点
func (c *AppConfig) normalizeTarget() error {
	t := &c.Target
	if strings.TrimSpace(t.Name) == "" {
		t.Name = "backend"
	}
	if strings.TrimSpace(t.Origin) == "" {
		t.Origin = "http://127.0.0.1:" + strings.TrimSpace(c.Server.Port)
	}
	t.Origin = strings.TrimRight(strings.TrimSpace(t.Origin), "/")

	t.AlivePath = strings.TrimSpace(t.AlivePath)
	if t.AlivePath == "" {
		t.AlivePath = "/alive"
	}
	if !strings.HasPrefix(t.AlivePath, "/") {
		t.AlivePath = "/" + t.AlivePath
	}

	if t.ExpectBody == "" {
		t.ExpectBody = DefaultExpectBody
	}
	return nil
}

// Normalize 规范化心跳参数（填充默认值并解析 duration）
func (o *ConnectionStatusOptions) Normalize() error {
	var err error
	if o.ProbeTimeoutDuration, err = parsePositiveDuration(&o.ProbeTimeout, DefaultProbeTimeout, "connection_status.probe_timeout"); err != nil {
		return err
	}
	if o.PollIntervalDuration, err = parsePositiveDuration(&o.PollInterval, DefaultPollInterval, "connection_status.poll_interval"); err != nil {
		return err
	}

	if o.RetryThreshold == 0 {
		o.RetryThreshold = DefaultRetryThreshold
	}
	if o.RetryThreshold < 1 {
		return fmt.Errorf("connection_status.retry_threshold 必须 >= 1，当前值: %d", o.RetryThreshold)
	}

	// 超时大于间隔时探测仍然串行执行，只是实际周期被拉长
	if o.ProbeTimeoutDuration > o.PollIntervalDuration {
		logger.Warn("config", "probe_timeout 大于 poll_interval，实际探测周期将被拉长",
			"probe_timeout", o.ProbeTimeout, "poll_interval", o.PollInterval)
	}
	return nil
}

func (c *AppConfig) normalizeNotify() error {
	n := &c.Notify
	n.WebhookURL = strings.TrimSpace(n.WebhookURL)
	if n.WebhookRatePerMinute == 0 {
		n.WebhookRatePerMinute = 30
	}
	if n.WebhookRatePerMinute < 0 {
		return fmt.Errorf("notify.webhook_rate_per_minute 必须 >= 1，当前值: %d", n.WebhookRatePerMinute)
	}
	if n.QueueSize == 0 {
		n.QueueSize = 64
	}
	if n.QueueSize < 0 {
		return fmt.Errorf("notify.queue_size 必须 >= 1，当前值: %d", n.QueueSize)
	}

	d, err := parsePositiveDuration(&n.WebhookTimeout, defaultWebhookTimeout, "notify.webhook_timeout")
	if err != nil {
		return err
	}
	n.WebhookTimeoutDuration = d
	return nil
}

// Validate 校验配置（在 Normalize 之后调用）
func (c *AppConfig) Validate() error {
	if err := validatePort(c.Server.Port); err != nil {
		return err
	}

	if err := validateURL(c.Target.Origin, "target.origin"); err != nil {
		return err
	}
	if strings.ContainsAny(c.Target.AlivePath, "?#") {
		return fmt.Errorf("target.alive_path 不能包含查询参数或锚点: %s", c.Target.AlivePath)
	}

	if c.ConnectionStatus.RetryThreshold < 1 {
		return fmt.Errorf("connection_status.retry_threshold 必须 >= 1，当前值: %d", c.ConnectionStatus.RetryThreshold)
	}
	if c.ConnectionStatus.ProbeTimeoutDuration <= 0 || c.ConnectionStatus.PollIntervalDuration <= 0 {
		return fmt.Errorf("connection_status 未规范化或 duration 非法")
	}

	if c.Notify.WebhookURL != "" {
		if err := validateURL(c.Notify.WebhookURL, "notify.webhook_url"); err != nil {
			return err
		}
		if strings.HasPrefix(strings.ToLower(c.Notify.WebhookURL), "http://") {
			logger.Warn("config", "webhook 使用了非加密的 http:// 协议", "url", c.Notify.WebhookURL)
		}
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level 无效: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format 仅支持 text 或 json，当前值: %s", c.Log.Format)
	}

	return nil
}
