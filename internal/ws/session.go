package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/metrics"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"

	"github.com/rs/zerolog/log"
)

type sessionState int

const (
	stateAnonymous sessionState = iota
	stateAuthenticated
	stateClosed
)

// Session 是单条连接的协议状态机：ANONYMOUS → AUTHENTICATED → CLOSED。
// 所有方法只会在该连接的读泵 goroutine 里被调用，状态无需加锁。
type Session struct {
	client   *Client
	store    store.Storage
	registry *Registry
	hub      *Hub

	state    sessionState
	userID   uint
	username string
}

func newSession(client *Client, st store.Storage, registry *Registry, hub *Hub) *Session {
	return &Session{client: client, store: st, registry: registry, hub: hub}
}

// handleFrame 处理一帧入站数据。任何错误都转成 ERROR 信封回给发送方，
// 连接保持打开；协议错误永远不会让网关进程崩溃。
func (s *Session) handleFrame(data []byte) {
	if s.state == stateClosed {
		return
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		s.sendError(errProcessFailed, "")
		return
	}
	switch env.Type {
	case TypeJoin:
		s.handleJoin(env.Payload)
	case TypeSwitchChannel:
		s.handleSwitchChannel(env.Payload)
	case TypeSendMessage:
		s.handleSendMessage(env.Payload)
	case TypePing:
		s.handlePing()
	default:
		s.sendError(errUnknownType, "")
	}
}

// handleJoin 绑定用户名对应的身份：已存在则置为在线，否则新建。
// 成功后回 JOIN_SUCCESS 并向所有连接广播在线状态；失败只告知发起方。
func (s *Session) handleJoin(payload json.RawMessage) {
	var p JoinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(errBadUsername, "")
		return
	}
	username := strings.TrimSpace(p.Username)
	if username == "" || len(username) > 64 {
		s.sendError(errBadUsername, "username must be 1-64 characters")
		return
	}

	user, err := s.store.GetUserByUsername(username)
	switch {
	case err == nil:
		user, err = s.store.SetUserOnline(user.ID, true)
	case errors.Is(err, store.ErrUserNotFound):
		user, err = s.store.CreateUser(username)
	}
	if err != nil {
		log.Error().Err(err).Str("conn_id", s.client.id).Str("username", username).Msg("join")
		s.sendError(errJoinFailed, "")
		return
	}

	channels, err := s.store.ListChannels()
	if err != nil {
		log.Error().Err(err).Str("conn_id", s.client.id).Msg("join list channels")
		s.sendError(errJoinFailed, "")
		return
	}

	// 同一连接换名重入：先解除旧身份的绑定并把它置为离线。
	if s.state == stateAuthenticated && s.userID != user.ID {
		if s.registry.Unbind(s.userID, s.client) {
			if _, err := s.store.SetUserOnline(s.userID, false); err != nil {
				log.Warn().Err(err).Uint("user_id", s.userID).Msg("rejoin set offline")
			}
		}
	}

	s.userID = user.ID
	s.username = user.Username
	s.state = stateAuthenticated
	if old := s.registry.Bind(user.ID, s.client); old != nil {
		// 同一身份从新连接加入：旧连接被顶替，异步关掉以免悬着收不到任何广播。
		log.Info().Uint("user_id", user.ID).Str("old_conn_id", old.id).Str("conn_id", s.client.id).Msg("connection superseded")
		go old.Close()
	}

	s.send(TypeJoinSuccess, JoinSuccessPayload{User: userDTO(user), Channels: channelDTOs(channels)})
	s.hub.BroadcastPresence()
}

// handleSwitchChannel 返回目标频道的全部历史，只回给发起方，不广播。
func (s *Session) handleSwitchChannel(payload json.RawMessage) {
	if s.state != stateAuthenticated {
		s.sendError(errNotAuth, "")
		return
	}
	var p SwitchChannelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(errSwitchFailed, "")
		return
	}
	if _, err := s.store.GetChannel(p.ChannelID); err != nil {
		if errors.Is(err, store.ErrChannelNotFound) {
			s.sendError(errChannelGone, "")
		} else {
			log.Error().Err(err).Uint("channel_id", p.ChannelID).Msg("switch channel")
			s.sendError(errSwitchFailed, "")
		}
		return
	}
	messages, err := s.store.ListChannelMessages(p.ChannelID)
	if err != nil {
		log.Error().Err(err).Uint("channel_id", p.ChannelID).Msg("switch channel history")
		s.sendError(errSwitchFailed, "")
		return
	}
	s.send(TypeChannelMessages, ChannelMessagesPayload{ChannelID: p.ChannelID, Messages: messages})
}

// handleSendMessage 持久化消息后向所有存活连接广播 NEW_MESSAGE。
// 持久化失败只告知发送方，不产生广播。
func (s *Session) handleSendMessage(payload json.RawMessage) {
	if s.state != stateAuthenticated {
		s.sendError(errNotAuth, "")
		return
	}
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(errBadMessage, "")
		return
	}
	msg, err := s.store.AppendMessage(p.Content, s.userID, p.ChannelID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", s.userID).Uint("channel_id", p.ChannelID).Msg("append message")
		s.sendError(errSendFailed, "")
		return
	}
	// 发送时点解析作者用户名，改名等变更以存储为准。
	user, err := s.store.GetUser(s.userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.sendError(errUserGone, "")
		} else {
			log.Error().Err(err).Uint("user_id", s.userID).Msg("resolve sender")
			s.sendError(errSendFailed, "")
		}
		return
	}
	s.hub.BroadcastMessage(store.ChatMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		UserID:    msg.UserID,
		Username:  user.Username,
		ChannelID: msg.ChannelID,
		Timestamp: store.FormatTimestamp(msg.Timestamp),
	})
}

// handlePing 任意状态都直接回 PONG，不要求认证也不广播。
func (s *Session) handlePing() {
	s.send(TypePong, PongPayload{Timestamp: store.FormatTimestamp(time.Now())})
}

// teardown 是显式断开与活性超时共用的收尾路径：置离线、解绑、广播在线状态。
// 收尾只尽力而为，存储失败记日志后继续；匿名连接直接进入 CLOSED。
func (s *Session) teardown() {
	if s.state == stateClosed {
		return
	}
	wasAuthenticated := s.state == stateAuthenticated
	s.state = stateClosed
	if !wasAuthenticated {
		return
	}
	if !s.registry.Unbind(s.userID, s.client) {
		// 映射已被同一身份的新连接顶替，在线状态归新连接负责。
		return
	}
	if _, err := s.store.SetUserOnline(s.userID, false); err != nil {
		log.Warn().Err(err).Uint("user_id", s.userID).Msg("teardown set offline")
	}
	log.Info().Uint("user_id", s.userID).Str("username", s.username).Str("conn_id", s.client.id).Msg("session closed")
	s.hub.BroadcastPresence()
}

func (s *Session) send(typ string, payload interface{}) {
	data, err := encodeEnvelope(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("type", typ).Msg("encode envelope")
		return
	}
	s.client.enqueue(data)
}

func (s *Session) sendError(message, details string) {
	metrics.WsProtocolErrorsTotal.Inc()
	s.send(TypeError, ErrorPayload{Message: message, Details: details})
}
