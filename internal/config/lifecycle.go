package config

import (
	"os"
	"strconv"
	"strings"

	"connstatus/internal/logger"
)

// ApplyEnvOverrides 应用环境变量覆盖（在 Normalize 之前调用）
// 格式：CONNSTATUS_<FIELD>；Events API Token 沿用 EVENTS_API_TOKEN
func (c *AppConfig) ApplyEnvOverrides() {
	// 探测目标
	if v := os.Getenv(EnvOrigin); v != "" {
		c.Target.Origin = v
	}
	if v := os.Getenv(EnvAlivePath); v != "" {
		c.Target.AlivePath = v
	}

	// 心跳参数
	if v := os.Getenv(EnvProbeTimeout); v != "" {
		c.ConnectionStatus.ProbeTimeout = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		c.ConnectionStatus.PollInterval = v
	}
	if v := os.Getenv(EnvRetryThreshold); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.ConnectionStatus.RetryThreshold = n
		} else {
			logger.Warn("config", "环境变量不是有效整数，已忽略", "key", EnvRetryThreshold, "value", v)
		}
	}

	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}

	// 存储配置
	if v := os.Getenv(EnvStorageType); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv(EnvPostgresHost); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv(EnvPostgresPort); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Storage.Postgres.Port = n
		} else {
			logger.Warn("config", "环境变量不是有效整数，已忽略", "key", EnvPostgresPort, "value", v)
		}
	}
	if v := os.Getenv(EnvPostgresUser); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv(EnvPostgresPassword); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv(EnvPostgresDatabase); v != "" {
		c.Storage.Postgres.Database = v
	}
	if v := os.Getenv(EnvPostgresSSLMode); v != "" {
		c.Storage.Postgres.SSLMode = v
	}

	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Notify.WebhookURL = v
	}

	// Events API Token 环境变量覆盖
	if v := os.Getenv(EnvEventsAPIToken); v != "" {
		c.Events.APIToken = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Clone 深拷贝配置（用于热更新回滚）
func (c *AppConfig) Clone() *AppConfig {
	clone := *c

	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = make([]string, len(c.Server.CORSOrigins))
		copy(clone.Server.CORSOrigins, c.Server.CORSOrigins)
	}
	if c.Storage.Retention.Enabled != nil {
		value := *c.Storage.Retention.Enabled
		clone.Storage.Retention.Enabled = &value
	}

	return &clone
}

// PollerChanged 判断热更新是否需要重建 poller（探测目标或心跳参数变化）
func (c *AppConfig) PollerChanged(next *AppConfig) bool {
	if c == nil || next == nil {
		return true
	}
	return c.Target != next.Target || c.ConnectionStatus != next.ConnectionStatus
}

// StorageChanged 判断存储配置是否变化（存储不支持热更新，仅用于提示）
func (c *AppConfig) StorageChanged(next *AppConfig) bool {
	if c == nil || next == nil {
		return false
	}
	a, b := c.Storage, next.Storage
	return a.Type != b.Type || a.SQLite != b.SQLite || a.Postgres != b.Postgres
}
