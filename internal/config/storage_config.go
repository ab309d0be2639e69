package config

import (
	"fmt"
	"strings"
	"time"
)

// StorageConfig 存储配置
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // "sqlite" 或 "postgres"

	// SQLite 配置
	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`

	// PostgreSQL 配置
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`

	// 探测记录保留与清理配置（默认禁用，需显式开启）
	Retention RetentionConfig `yaml:"retention" json:"retention"`
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"` // 数据库文件路径
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"-"` // 不输出到 JSON
	Database        string `yaml:"database" json:"database"`
	SSLMode         string `yaml:"sslmode" json:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	ConnMaxLifetimeDuration time.Duration `yaml:"-" json:"-"`
}

// RetentionConfig 探测记录保留与清理配置
// 状态事件（DOWN/UP）数量很少，不参与清理
type RetentionConfig struct {
	// 是否启用清理任务（默认 false，需要显式开启）
	Enabled *bool `yaml:"enabled" json:"enabled"`

	// 探测记录保留天数（默认 7）
	Days int `yaml:"days" json:"days"`

	// 清理任务执行间隔（默认 "1h"）
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval"`

	// 每批删除的最大行数（默认 5000）
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// 单轮运行最多批次数（默认 100）
	// 用于限制单次清理耗时，避免长期占用写锁或造成抖动
	MaxBatchesPerRun int `yaml:"max_batches_per_run" json:"max_batches_per_run"`

	// 启动后延迟多久开始首次清理（默认 "1m"）
	// 用于避免服务启动抖动或多实例同时启动造成的峰值冲击
	StartupDelay string `yaml:"startup_delay" json:"startup_delay"`

	// 调度抖动比例（默认 0.2）
	// 取值范围 [0,1]，用于在 interval 基础上增加随机偏移，避免多实例同刻执行
	Jitter float64 `yaml:"jitter" json:"jitter"`

	// 解析后的时间间隔（内部使用，不序列化）
	CleanupIntervalDuration time.Duration `yaml:"-" json:"-"`
	StartupDelayDuration    time.Duration `yaml:"-" json:"-"`
}

// IsEnabled 返回是否启用清理任务
func (c *RetentionConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return false // 默认禁用（需要显式开启）
	}
	return *c.Enabled
}

// Normalize 规范化 retention 配置（填充默认值并解析 duration）
func (c *RetentionConfig) Normalize() error {
	// 保留天数（默认 7）
	if c.Days == 0 {
		c.Days = 7
	}
	if c.Days < 1 {
		return fmt.Errorf("storage.retention.days 必须 >= 1，当前值: %d", c.Days)
	}

	// 清理间隔（默认 1h）
	if strings.TrimSpace(c.CleanupInterval) == "" {
		c.CleanupInterval = "1h"
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.CleanupInterval))
	if err != nil {
		return fmt.Errorf("storage.retention.cleanup_interval 解析失败: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("storage.retention.cleanup_interval 必须 > 0")
	}
	c.CleanupIntervalDuration = d

	// 批大小（默认 5000）
	if c.BatchSize == 0 {
		c.BatchSize = 5000
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("storage.retention.batch_size 必须 >= 1，当前值: %d", c.BatchSize)
	}

	// 单轮最多批次数（默认 100）
	if c.MaxBatchesPerRun == 0 {
		c.MaxBatchesPerRun = 100
	}
	if c.MaxBatchesPerRun < 1 {
		return fmt.Errorf("storage.retention.max_batches_per_run 必须 >= 1，当前值: %d", c.MaxBatchesPerRun)
	}

	// 启动延迟（默认 1m）
	if strings.TrimSpace(c.StartupDelay) == "" {
		c.StartupDelay = "1m"
	}
	d, err = time.ParseDuration(strings.TrimSpace(c.StartupDelay))
	if err != nil {
		return fmt.Errorf("storage.retention.startup_delay 解析失败: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("storage.retention.startup_delay 必须 >= 0")
	}
	c.StartupDelayDuration = d

	// 抖动比例（默认 0.2）
	if c.Jitter == 0 {
		c.Jitter = 0.2
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("storage.retention.jitter 必须在 [0,1] 范围内，当前值: %g", c.Jitter)
	}

	return nil
}

// normalize 填充存储默认值并校验
func (c *StorageConfig) normalize() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = "sqlite" // 默认使用 SQLite
	}

	switch c.Type {
	case "sqlite":
		if c.SQLite.Path == "" {
			c.SQLite.Path = "connstatus.db" // 默认路径
		}
	case "postgres":
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		// 单目标写入量很小，保守的连接池即可
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 10
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 2
		}
		if c.Postgres.ConnMaxLifetime == "" {
			c.Postgres.ConnMaxLifetime = "1h"
		}
		d, err := time.ParseDuration(c.Postgres.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("storage.postgres.conn_max_lifetime 解析失败: %w", err)
		}
		c.Postgres.ConnMaxLifetimeDuration = d
	default:
		return fmt.Errorf("storage.type 仅支持 sqlite 或 postgres，当前值: %s", c.Type)
	}

	return c.Retention.Normalize()
}

// validate 校验存储配置（在 normalize 之后调用）
func (c *StorageConfig) validate() error {
	if c.Type != "postgres" {
		return nil
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("storage.postgres.host 不能为空")
	}
	if c.Postgres.User == "" {
		return fmt.Errorf("storage.postgres.user 不能为空")
	}
	if c.Postgres.Database == "" {
		return fmt.Errorf("storage.postgres.database 不能为空")
	}
	return nil
}
