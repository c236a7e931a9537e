package ws

import (
	"net/http"

	"github.com/Slick-Silver/toehubfinalplj/internal/config"
	"github.com/Slick-Silver/toehubfinalplj/internal/metrics"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway 拥有监听端点背后的全部会话基础设施：注册表、广播引擎与存储依赖。
// 连接句柄始终显式经由各组件传递，不存在进程级的“当前 socket”。
type Gateway struct {
	cfg      config.Config
	store    store.Storage
	registry *Registry
	hub      *Hub
}

func NewGateway(st store.Storage, cfg config.Config) *Gateway {
	registry := NewRegistry()
	return &Gateway{cfg: cfg, store: st, registry: registry, hub: NewHub(registry, st)}
}

// Online 返回当前在册连接数，供 REST 接口复用。
func (g *Gateway) Online() int { return g.registry.Online() }

// Handler 把 HTTP 请求升级为 websocket 连接，以匿名会话起步并启动读写泵。
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(conn, g.cfg)
		session := newSession(client, g.store, g.registry, g.hub)
		log.Info().Str("conn_id", client.id).Str("remote", c.Request.RemoteAddr).Msg("client connected")
		metrics.WsConnections.Inc()

		go client.writePump()
		client.readPump(session)

		metrics.WsConnections.Dec()
		log.Info().Str("conn_id", client.id).Msg("client disconnected")
	}
}
