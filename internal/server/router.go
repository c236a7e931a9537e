package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/config"
	"github.com/Slick-Silver/toehubfinalplj/internal/metrics"
	"github.com/Slick-Silver/toehubfinalplj/internal/mw"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"
	"github.com/Slick-Silver/toehubfinalplj/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 网关端点。
func SetupRouter(cfg config.Config, st store.Storage, gw *ws.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免匿名入口被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/healthz", health)
	r.GET("/api/health", health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(st, gw)
	api := r.Group("/api/v1")
	api.GET("/channels", h.ListChannels)
	api.GET("/users", h.ListUsers)
	api.GET("/channels/:id/messages", h.ListMessages)

	r.GET("/ws", gw.Handler())

	// 存在前端构建产物时兜底到静态文件，SPA 路由回落到 index.html。
	webDir := filepath.Join(".", "web")
	if _, err := os.Stat(filepath.Join(webDir, "index.html")); err == nil {
		r.NoRoute(func(c *gin.Context) {
			rel := strings.TrimPrefix(filepath.Clean(c.Request.URL.Path), "/")
			if strings.HasPrefix(rel, "api/") || rel == "metrics" || rel == "healthz" || strings.HasPrefix(rel, "ws") {
				c.Status(http.StatusNotFound)
				return
			}
			target := filepath.Join(webDir, rel)
			if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
				c.File(target)
				return
			}
			if strings.Contains(rel, ".") {
				c.Status(http.StatusNotFound)
				return
			}
			c.File(filepath.Join(webDir, "index.html"))
		})
	}
	return r
}
