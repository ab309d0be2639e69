package api

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"connstatus/internal/config"
	"connstatus/internal/listeners"
	"connstatus/internal/logger"
	"connstatus/internal/status"
	"connstatus/internal/storage"
)

// StatusSource 当前连接状态来源
type StatusSource interface {
	Machine() status.Machine
	Running() bool
	Target() config.TargetConfig
}

// Deps 处理器依赖
type Deps struct {
	Source      StatusSource
	Storage     storage.Storage
	StatusBar   *listeners.MemoryStatusBar
	Notice      *listeners.BlockingNotice
	Broadcaster *listeners.Broadcaster
}

// Handler API处理器
type Handler struct {
	deps   Deps
	config *config.AppConfig
	cfgMu  sync.RWMutex // 保护config的并发访问

	keepAlive time.Duration
}

// NewHandler 创建处理器
func NewHandler(cfg *config.AppConfig, deps Deps) *Handler {
	return &Handler{
		deps:      deps,
		config:    cfg,
		keepAlive: 15 * time.Second,
	}
}

// UpdateConfig 更新配置（热更新时调用）
func (h *Handler) UpdateConfig(cfg *config.AppConfig) {
	h.cfgMu.Lock()
	h.config = cfg
	h.cfgMu.Unlock()
}

// Alive 存活端点：固定返回 200 "OK"
func (h *Handler) Alive(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.String(http.StatusOK, "OK")
}

// StatusResponse 当前状态
type StatusResponse struct {
	State          string                   `json:"state"`
	Health         int                      `json:"health"`
	HistorySize    int                      `json:"history_size"`
	Threshold      int                      `json:"threshold"`
	Target         string                   `json:"target"`
	URL            string                   `json:"url"`
	Running        bool                     `json:"running"`
	BlockingNotice listeners.NoticeSnapshot `json:"blocking_notice"`
}

// GetStatus 获取当前连接状态
func (h *Handler) GetStatus(c *gin.Context) {
	m := h.deps.Source.Machine()
	target := h.deps.Source.Target()

	resp := StatusResponse{
		State:       m.State().String(),
		Health:      m.Health(),
		HistorySize: m.HistoryLen(),
		Threshold:   m.Threshold(),
		Target:      target.Name,
		URL:         target.AliveURL(),
		Running:     h.deps.Source.Running(),
	}
	if h.deps.Notice != nil {
		resp.BlockingNotice = h.deps.Notice.Snapshot()
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// GetStatusBar 获取状态栏元素
func (h *Handler) GetStatusBar(c *gin.Context) {
	if h.deps.StatusBar == nil {
		c.JSON(http.StatusOK, gin.H{"elements": []listeners.StatusBarElement{}})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"elements": h.deps.StatusBar.Elements()})
}

// ProbeItem 单条探测样本
type ProbeItem struct {
	ID          int64  `json:"id"`
	Success     bool   `json:"success"`
	FailureKind string `json:"failure_kind,omitempty"`
	HttpCode    int    `json:"http_code"`
	Latency     int    `json:"latency"`
	State       string `json:"state"`
	Health      int    `json:"health"`
	Timestamp   int64  `json:"timestamp"`
}

// GetProbes 最近探测样本（按时间升序）
// GET /api/probes?limit=50，limit 默认 50，最大 500
func (h *Handler) GetProbes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	target := h.deps.Source.Target().Name
	records, err := h.deps.Storage.WithContext(c.Request.Context()).GetRecentRecords(target, limit)
	if err != nil {
		logger.FromContext(c.Request.Context(), "api").Error("查询探测记录失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询探测记录失败"})
		return
	}

	items := make([]ProbeItem, 0, len(records))
	for _, r := range records {
		items = append(items, ProbeItem{
			ID:          r.ID,
			Success:     r.Success,
			FailureKind: r.FailureKind,
			HttpCode:    r.HttpCode,
			Latency:     r.Latency,
			State:       r.State,
			Health:      r.Health,
			Timestamp:   r.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"target": target,
		"count":  len(items),
		"probes": items,
	})
}

// streamEvent SSE 事件载荷
type streamEvent struct {
	State  string `json:"state"`
	Health int    `json:"health"`
	At     int64  `json:"at"`
}

// StreamStatus SSE 推送每次状态事件
// 新连接先收到最近一次事件；每 keepAlive 发送一次 ping
func (h *Handler) StreamStatus(c *gin.Context) {
	if h.deps.Broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "状态推送未启用"})
		return
	}

	// 长连接不受服务端写超时限制
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	events, cancel := h.deps.Broadcaster.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("status", streamEvent{State: e.State.String(), Health: e.Health, At: time.Now().Unix()})
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
