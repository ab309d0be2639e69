// Package notify 用户消息通道：日志、Webhook 与扇出
package notify

import "connstatus/internal/logger"

// LogMessages 把用户消息写入日志
type LogMessages struct{}

// Info 信息消息
func (LogMessages) Info(message string) {
	logger.Info("notify", message)
}

// Error 错误消息
func (LogMessages) Error(message string) {
	logger.Error("notify", message)
}

// MessageService 与 listeners.MessageService 同形，避免包间循环依赖
type MessageService interface {
	Info(message string)
	Error(message string)
}

// Fanout 依次转发到多个消息通道
type Fanout []MessageService

// Info 信息消息
func (f Fanout) Info(message string) {
	for _, s := range f {
		if s != nil {
			s.Info(message)
		}
	}
}

// Error 错误消息
func (f Fanout) Error(message string) {
	for _, s := range f {
		if s != nil {
			s.Error(message)
		}
	}
}
