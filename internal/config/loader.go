package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"connstatus/internal/logger"
)

// Loader 配置加载器，保存最近一次成功加载的配置用于回滚
type Loader struct {
	mu      sync.RWMutex
	current *AppConfig
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// Parse 解析 YAML 并完成环境变量覆盖、规范化与校验
// 空文档视为全部使用默认值
func Parse(data []byte) (*AppConfig, error) {
	cfg := &AppConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("配置规范化失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// Load 读取并解析配置文件，成功后替换当前配置
func (l *Loader) Load(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()

	return cfg.Clone(), nil
}

// LoadOrRollback 热更新专用：加载失败时保留上一次成功的配置
// 返回 error 表示本次变更未生效
func (l *Loader) LoadOrRollback(filename string) (*AppConfig, error) {
	cfg, err := l.Load(filename)
	if err == nil {
		return cfg, nil
	}

	l.mu.RLock()
	hasPrevious := l.current != nil
	l.mu.RUnlock()

	if hasPrevious {
		logger.Warn("config", "新配置无效，继续使用上一次成功加载的配置", "file", filename, "error", err)
	}
	return nil, err
}

// Current 返回当前配置的副本（尚未成功加载时为 nil）
func (l *Loader) Current() *AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return nil
	}
	return l.current.Clone()
}
