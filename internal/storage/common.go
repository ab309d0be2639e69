package storage

import (
	"encoding/json"
	"fmt"
)

// 查询条数上限
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 500
)

// clampLimit 规范化查询条数
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// reverseRecords 反转记录数组（DESC 取数后翻转为时间升序）
func reverseRecords(records []*ProbeRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

// marshalMeta 序列化事件 meta，空 meta 返回 nil（写入 NULL）
func marshalMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("序列化事件 meta 失败: %w", err)
	}
	return data, nil
}

// unmarshalMeta 反序列化事件 meta，失败时忽略
func unmarshalMeta(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return meta
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
