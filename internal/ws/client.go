package ws

import (
	"sync"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/config"
	"github.com/Slick-Silver/toehubfinalplj/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client 包装一条存活的双工连接：出站队列、读写泵与活性探测。
// 读写各占一个 goroutine，帧处理始终在读泵里按到达顺序串行执行。
type Client struct {
	id   string
	conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	readLimit    int64
}

func newClient(conn *websocket.Conn, cfg config.Config) *Client {
	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		pingInterval: time.Duration(cfg.PingIntervalSeconds) * time.Second,
		pongWait:     time.Duration(cfg.PongWaitSeconds) * time.Second,
		writeWait:    time.Duration(cfg.WriteWaitSeconds) * time.Second,
		readLimit:    cfg.ReadLimitBytes,
	}
}

// enqueue 非阻塞投递一帧。队列打满说明对端读得太慢，按掉线处理；
// 单个连接的投递失败不影响其它连接。
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("conn_id", c.id).Msg("send buffer full, dropping connection")
		c.Close()
		return false
	}
}

// Close 幂等地关闭连接并唤醒两个泵。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// readPump 串行处理入站帧；读错误（含 pong 超时的死线到期）统一走收尾路径。
func (c *Client) readPump(s *Session) {
	defer func() {
		s.teardown()
		c.Close()
	}()
	c.conn.SetReadLimit(c.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(data)
	}
}

// writePump 串行写出站帧，并按固定周期发活性探测 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WsFramesTotal.Inc()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
