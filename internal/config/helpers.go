package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// validateURL 验证 URL 格式和协议
func validateURL(rawURL, fieldName string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return fmt.Errorf("%s 不能为空", fieldName)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%s 格式无效: %w", fieldName, err)
	}

	// 只允许 http 和 https 协议
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%s 只支持 http:// 或 https:// 协议，收到: %q", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s 缺少主机名", fieldName)
	}
	return nil
}

// parsePositiveDuration 解析必须为正数的 duration 字段，空值使用默认值
func parsePositiveDuration(raw *string, def time.Duration, fieldName string) (time.Duration, error) {
	if strings.TrimSpace(*raw) == "" {
		*raw = def.String()
	}
	d, err := time.ParseDuration(strings.TrimSpace(*raw))
	if err != nil {
		return 0, fmt.Errorf("%s 解析失败: %w", fieldName, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须 > 0，当前值: %s", fieldName, *raw)
	}
	return d, nil
}

// validatePort 验证端口号
func validatePort(port string) error {
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return fmt.Errorf("server.port 不是有效数字: %q", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("server.port 必须在 [1,65535] 范围内，当前值: %d", n)
	}
	return nil
}
