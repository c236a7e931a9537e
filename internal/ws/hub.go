package ws

import (
	"github.com/Slick-Silver/toehubfinalplj/internal/metrics"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"

	"github.com/rs/zerolog/log"
)

// Hub 是广播引擎：把事件按注册表的时点快照扇出给全部存活连接。
// 投递是尽力而为的 at-most-once：单个连接失败只丢该连接，不中断其余投递。
type Hub struct {
	registry *Registry
	store    store.Storage
}

func NewHub(registry *Registry, st store.Storage) *Hub {
	return &Hub{registry: registry, store: st}
}

// BroadcastMessage 把一条已持久化的聊天消息发给所有存活连接。
// 不按频道过滤，客户端根据载荷里的 channelId 自行筛选。
func (h *Hub) BroadcastMessage(msg store.ChatMessage) {
	data, err := encodeEnvelope(TypeNewMessage, msg)
	if err != nil {
		log.Error().Err(err).Msg("encode new message")
		return
	}
	h.fanout(data)
	metrics.WsMessagesTotal.Inc()
}

// BroadcastPresence 从存储重算全量在线状态并发给所有存活连接。
func (h *Hub) BroadcastPresence() {
	users, err := h.store.ListUsers()
	if err != nil {
		log.Error().Err(err).Msg("presence list users")
		return
	}
	data, err := encodeEnvelope(TypeUsersStatus, UsersStatusPayload{Users: userStatuses(users)})
	if err != nil {
		log.Error().Err(err).Msg("encode users status")
		return
	}
	h.fanout(data)
}

func (h *Hub) fanout(data []byte) {
	for _, c := range h.registry.Snapshot() {
		c.enqueue(data)
	}
	metrics.WsBroadcastsTotal.Inc()
}
