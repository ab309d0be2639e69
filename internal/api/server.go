// Package api 连接状态 HTTP 服务：存活端点、状态查询、SSE 推送与事件 API
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"connstatus/internal/buildinfo"
	"connstatus/internal/config"
	"connstatus/internal/logger"
)

// AlivePath 本服务自身的存活端点
const AlivePath = "/alive"

// streamPath SSE 推送路径（不参与 gzip）
const streamPath = "/api/status/stream"

// 事件 API 每个 IP 的限流参数
const (
	eventsRatePerMinute = 120
	eventsRateBurst     = 20
)

// Server HTTP服务器
type Server struct {
	handler    *Handler
	router     *gin.Engine
	httpServer *http.Server
	port       string
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	// Request ID：为每个请求生成唯一 ID，便于日志追踪
	router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	})

	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))

	// 安全头
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer-when-downgrade")
		c.Next()
	})

	handler := NewHandler(cfg, deps)

	router.GET(AlivePath, handler.Alive)
	router.HEAD(AlivePath, handler.Alive)

	router.GET("/api/status", handler.GetStatus)
	router.GET("/api/statusbar", handler.GetStatusBar)
	router.GET(streamPath, handler.StreamStatus)
	router.GET("/api/probes", handler.GetProbes)

	// 事件 API 需要 token，按 IP 限流以抑制暴力尝试
	eventsAPI := router.Group("/api/events", newClientLimiter(eventsRatePerMinute, eventsRateBurst).middleware())
	eventsAPI.GET("", handler.GetEvents)
	eventsAPI.GET("/latest", handler.GetLatestEventID)

	router.GET("/api/version", func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, gin.H{
			"version":    buildinfo.GetVersion(),
			"git_commit": buildinfo.GetGitCommit(),
			"build_time": buildinfo.GetBuildTime(),
			"go_version": buildinfo.GetGoVersion(),
		})
	})

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return &Server{
		handler: handler,
		router:  router,
		port:    cfg.Server.Port,
	}
}

// corsConfig 未配置来源时只允许本机
func corsConfig(origins []string) cors.Config {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	return cors.Config{
		AllowOrigins:     allowed,
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "Accept-Encoding"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// Handler 返回路由（测试与嵌入使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器（阻塞）
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        ":" + s.port,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout 由各 handler 控制，SSE 连接需要长期写入
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("api", "Started connection status endpoint",
		"alive", fmt.Sprintf("http://localhost:%s%s", s.port, AlivePath),
		"api", fmt.Sprintf("http://localhost:%s/api/status", s.port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("启动HTTP服务失败: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("api", "正在关闭HTTP服务器")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// UpdateConfig 更新配置（热更新时调用）
func (s *Server) UpdateConfig(cfg *config.AppConfig) {
	s.handler.UpdateConfig(cfg)
}
