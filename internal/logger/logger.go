// Package logger 提供统一的结构化日志支持
// 基于 Go 1.21+ 标准库 log/slog，不引入额外依赖
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

// 初始化默认 logger
func init() {
	defaultLogger.Store(newLogger(os.Stdout, slog.LevelInfo, "text"))
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("app", "connstatus")
}

// ParseLevel 解析日志级别字符串（debug/info/warn/error），未知值回退为 info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure 按配置替换默认 logger
// format 支持 text（默认）和 json
// 应在启动阶段、各组件开始记录日志之前调用
func Configure(level, format string) {
	ConfigureOutput(os.Stdout, level, format)
}

// ConfigureOutput 与 Configure 相同，但允许指定输出（测试中用于捕获日志）
func ConfigureOutput(w io.Writer, level, format string) {
	defaultLogger.Store(newLogger(w, ParseLevel(level), strings.ToLower(strings.TrimSpace(format))))
}

// Default 返回默认 logger
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// WithComponent 创建带有组件标识的 logger
func WithComponent(component string) *slog.Logger {
	return Default().With("component", component)
}

// context key 类型（避免与其他包冲突）
type ctxKey string

const (
	// RequestIDKey 用于存储 request_id 的 context key
	RequestIDKey ctxKey = "request_id"
)

// WithRequestID 将 request_id 存入 context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext 从 context 获取 logger，自动附加 request_id（如果存在）
func FromContext(ctx context.Context, component string) *slog.Logger {
	l := WithComponent(component)
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		l = l.With("request_id", reqID)
	}
	return l
}

// 便捷方法：直接记录日志

// Info 记录 INFO 级别日志
func Info(component, msg string, args ...any) {
	WithComponent(component).Info(msg, args...)
}

// Warn 记录 WARN 级别日志
func Warn(component, msg string, args ...any) {
	WithComponent(component).Warn(msg, args...)
}

// Error 记录 ERROR 级别日志
func Error(component, msg string, args ...any) {
	WithComponent(component).Error(msg, args...)
}

// Debug 记录 DEBUG 级别日志
func Debug(component, msg string, args ...any) {
	WithComponent(component).Debug(msg, args...)
}
