package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"connstatus/internal/storage"
)

// EventsResponse 事件列表响应
type EventsResponse struct {
	Events []EventItem `json:"events"`
	Meta   EventsMeta  `json:"meta"`
}

// EventItem 单个事件
type EventItem struct {
	ID              int64          `json:"id"`
	Target          string         `json:"target"`
	Session         string         `json:"session"`
	Type            string         `json:"type"`
	FromState       string         `json:"from_state"`
	ToState         string         `json:"to_state"`
	Health          int            `json:"health"`
	TriggerRecordID int64          `json:"trigger_record_id"`
	ObservedAt      int64          `json:"observed_at"`
	CreatedAt       int64          `json:"created_at"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// EventsMeta 事件列表元数据
type EventsMeta struct {
	NextSinceID int64 `json:"next_since_id"`
	HasMore     bool  `json:"has_more"`
	Count       int   `json:"count"`
}

// LatestEventResponse 最新事件ID响应
type LatestEventResponse struct {
	LatestID int64 `json:"latest_id"`
}

// GetEvents 获取事件列表
// GET /api/events?since_id=0&limit=20&target=xxx&types=DOWN,UP
// limit 默认 20，最大 100
func (h *Handler) GetEvents(c *gin.Context) {
	if !h.checkEventsAPIToken(c) {
		return
	}

	sinceID, _ := strconv.ParseInt(c.DefaultQuery("since_id", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var filters *storage.EventFilters
	target := c.Query("target")
	typesStr := c.Query("types")
	if target != "" || typesStr != "" {
		filters = &storage.EventFilters{Target: target}
		for _, t := range strings.Split(typesStr, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == string(storage.EventTypeDown) || t == string(storage.EventTypeUp) {
				filters.Types = append(filters.Types, storage.EventType(t))
			}
		}
	}

	// 多取一条判断是否还有更多
	events, err := h.deps.Storage.WithContext(c.Request.Context()).GetStatusEvents(sinceID, limit+1, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询事件失败"})
		return
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	nextSinceID := sinceID
	if len(events) > 0 {
		nextSinceID = events[len(events)-1].ID
	}

	items := make([]EventItem, 0, len(events))
	for _, e := range events {
		items = append(items, EventItem{
			ID:              e.ID,
			Target:          e.Target,
			Session:         e.Session,
			Type:            string(e.EventType),
			FromState:       e.FromState,
			ToState:         e.ToState,
			Health:          e.Health,
			TriggerRecordID: e.TriggerRecordID,
			ObservedAt:      e.ObservedAt,
			CreatedAt:       e.CreatedAt,
			Meta:            e.Meta,
		})
	}

	c.JSON(http.StatusOK, EventsResponse{
		Events: items,
		Meta: EventsMeta{
			NextSinceID: nextSinceID,
			HasMore:     hasMore,
			Count:       len(items),
		},
	})
}

// GetLatestEventID 获取最新事件ID
// GET /api/events/latest
func (h *Handler) GetLatestEventID(c *gin.Context) {
	if !h.checkEventsAPIToken(c) {
		return
	}

	latestID, err := h.deps.Storage.WithContext(c.Request.Context()).GetLatestEventID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询最新事件ID失败"})
		return
	}
	c.JSON(http.StatusOK, LatestEventResponse{LatestID: latestID})
}

// checkEventsAPIToken 检查事件 API Token（强制鉴权）
// 未配置 api_token 时返回 503；返回 false 时已写入错误响应
func (h *Handler) checkEventsAPIToken(c *gin.Context) bool {
	h.cfgMu.RLock()
	apiToken := h.config.Events.APIToken
	h.cfgMu.RUnlock()

	if apiToken == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "events API 未配置，请设置 EVENTS_API_TOKEN 环境变量",
		})
		return false
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少 Authorization 请求头"})
		return false
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization 格式错误，应为: Bearer <token>"})
		return false
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "API token 无效"})
		return false
	}
	return true
}
