package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"connstatus/internal/logger"
)

// 环境变量覆盖项（ApplyEnvOverrides 读取）
const (
	EnvOrigin           = "CONNSTATUS_ORIGIN"
	EnvAlivePath        = "CONNSTATUS_ALIVE_PATH"
	EnvProbeTimeout     = "CONNSTATUS_PROBE_TIMEOUT"
	EnvPollInterval     = "CONNSTATUS_POLL_INTERVAL"
	EnvRetryThreshold   = "CONNSTATUS_RETRY_THRESHOLD"
	EnvPort             = "CONNSTATUS_PORT"
	EnvStorageType      = "CONNSTATUS_STORAGE_TYPE"
	EnvSQLitePath       = "CONNSTATUS_SQLITE_PATH"
	EnvPostgresHost     = "CONNSTATUS_POSTGRES_HOST"
	EnvPostgresPort     = "CONNSTATUS_POSTGRES_PORT"
	EnvPostgresUser     = "CONNSTATUS_POSTGRES_USER"
	EnvPostgresPassword = "CONNSTATUS_POSTGRES_PASSWORD"
	EnvPostgresDatabase = "CONNSTATUS_POSTGRES_DATABASE"
	EnvPostgresSSLMode  = "CONNSTATUS_POSTGRES_SSLMODE"
	EnvWebhookURL       = "CONNSTATUS_WEBHOOK_URL"
	EnvEventsAPIToken   = "EVENTS_API_TOKEN"
	EnvLogLevel         = "CONNSTATUS_LOG_LEVEL"

	envPrefix = "CONNSTATUS_"
)

// EnvKeys 全部可覆盖配置的环境变量名
var EnvKeys = []string{
	EnvOrigin, EnvAlivePath, EnvProbeTimeout, EnvPollInterval, EnvRetryThreshold, EnvPort,
	EnvStorageType, EnvSQLitePath,
	EnvPostgresHost, EnvPostgresPort, EnvPostgresUser, EnvPostgresPassword, EnvPostgresDatabase, EnvPostgresSSLMode,
	EnvWebhookURL, EnvEventsAPIToken, EnvLogLevel,
}

func isEnvKey(key string) bool {
	for _, k := range EnvKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DotenvResult .env 加载结果（只含 key，不含 value）
type DotenvResult struct {
	Path    string
	Applied []string // 写入进程环境的配置键
	Skipped []string // 进程中已存在而未覆盖的配置键
	Unknown []string // CONNSTATUS_ 前缀但无对应配置项的键（多为拼写错误）
	Other   int      // 其它键（原样写入，供外部使用）
}

// LoadDotenvFromConfigDir 从配置文件所在目录加载 .env
//
// 用于本地开发和 connctl；生产环境应通过 Docker/systemd 等方式注入环境变量。
// 进程中已存在的环境变量不被覆盖；.env 不存在时返回 nil, nil。
func LoadDotenvFromConfigDir(configPath string) (*DotenvResult, error) {
	if configPath == "" {
		return nil, nil
	}
	dotenvPath := filepath.Join(filepath.Dir(configPath), ".env")

	res, err := loadDotenv(dotenvPath)
	if err != nil {
		return nil, err
	}
	if res == nil {
		logger.Debug("config", "未找到 .env，跳过加载", "path", dotenvPath)
		return nil, nil
	}

	logger.Info("config", "已加载 .env", "path", res.Path,
		"applied", strings.Join(res.Applied, ","), "skipped", len(res.Skipped), "other", res.Other)
	for _, key := range res.Unknown {
		logger.Warn("config", ".env 中存在未知配置键，已忽略", "key", key)
	}
	return res, nil
}

func loadDotenv(path string) (*DotenvResult, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("加载 .env 失败 (%s): %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &DotenvResult{Path: path}
	for _, key := range keys {
		known := isEnvKey(key)
		if !known && strings.HasPrefix(key, envPrefix) {
			res.Unknown = append(res.Unknown, key)
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			if known {
				res.Skipped = append(res.Skipped, key)
			}
			continue
		}
		if err := os.Setenv(key, values[key]); err != nil {
			return nil, fmt.Errorf("设置环境变量 %s 失败: %w", key, err)
		}
		if known {
			res.Applied = append(res.Applied, key)
		} else {
			res.Other++
		}
	}
	return res, nil
}
