package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Slick-Silver/toehubfinalplj/internal/store"
	"github.com/Slick-Silver/toehubfinalplj/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合只读 REST 接口，网关协议之外的 CRUD 查询走这里。
type Handler struct {
	store store.Storage
	gw    *ws.Gateway
}

func NewHandler(st store.Storage, gw *ws.Gateway) *Handler {
	return &Handler{store: st, gw: gw}
}

// ListChannels 返回全部频道。
func (h *Handler) ListChannels(c *gin.Context) {
	channels, err := h.store.ListChannels()
	if err != nil {
		log.Error().Err(err).Msg("list channels")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list channels"})
		return
	}
	type channelDTO struct {
		ID          uint    `json:"id"`
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	out := make([]channelDTO, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelDTO{ID: ch.ID, Name: ch.Name, Description: ch.Description})
	}
	c.JSON(http.StatusOK, gin.H{"channels": out})
}

// ListUsers 返回全量用户的在线状态投影，并附带当前在册连接数。
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers()
	if err != nil {
		log.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	type userDTO struct {
		UserID   uint   `json:"userId"`
		Username string `json:"username"`
		Online   bool   `json:"online"`
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO{UserID: u.ID, Username: u.Username, Online: u.Online})
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "connections": h.gw.Online()})
}

// ListMessages 返回指定频道的历史消息，按时间升序。
func (h *Handler) ListMessages(c *gin.Context) {
	channelID, err := strconv.Atoi(c.Param("id"))
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	if _, err := h.store.GetChannel(uint(channelID)); err != nil {
		if errors.Is(err, store.ErrChannelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
			return
		}
		log.Error().Err(err).Int("channel_id", channelID).Msg("get channel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	msgs, err := h.store.ListChannelMessages(uint(channelID))
	if err != nil {
		log.Error().Err(err).Int("channel_id", channelID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
