package ws

import (
	"encoding/json"

	"github.com/Slick-Silver/toehubfinalplj/internal/models"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"
)

// 客户端与网关之间往返的信封类型标签。
const (
	TypeJoin          = "JOIN"
	TypeSwitchChannel = "SWITCH_CHANNEL"
	TypeSendMessage   = "SEND_MESSAGE"
	TypePing          = "PING"

	TypeJoinSuccess     = "JOIN_SUCCESS"
	TypeChannelMessages = "CHANNEL_MESSAGES"
	TypeNewMessage      = "NEW_MESSAGE"
	TypeUsersStatus     = "USERS_STATUS"
	TypePong            = "PONG"
	TypeError           = "ERROR"
)

// Envelope 是连接上交换的最小单位：类型标签加上类型决定形状的载荷。
// 载荷先保留原始字节，按标签再二次解码，未知标签在边界处直接拒绝。
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Username string `json:"username"`
}

type SwitchChannelPayload struct {
	ChannelID uint `json:"channelId"`
}

type SendMessagePayload struct {
	Content   string `json:"content"`
	ChannelID uint   `json:"channelId"`
}

type JoinSuccessPayload struct {
	User     UserDTO      `json:"user"`
	Channels []ChannelDTO `json:"channels"`
}

type ChannelMessagesPayload struct {
	ChannelID uint                `json:"channelId"`
	Messages  []store.ChatMessage `json:"messages"`
}

type UsersStatusPayload struct {
	Users []UserStatus `json:"users"`
}

type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// UserDTO 是 JOIN_SUCCESS 返回的完整用户数据。
type UserDTO struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen"`
}

type ChannelDTO struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// UserStatus 是按需重算的在线状态投影。
type UserStatus struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

func userDTO(u *models.User) UserDTO {
	return UserDTO{ID: u.ID, Username: u.Username, Online: u.Online, LastSeen: store.FormatTimestamp(u.LastSeen)}
}

func channelDTOs(channels []models.Channel) []ChannelDTO {
	out := make([]ChannelDTO, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelDTO{ID: ch.ID, Name: ch.Name, Description: ch.Description})
	}
	return out
}

func userStatuses(users []models.User) []UserStatus {
	out := make([]UserStatus, 0, len(users))
	for _, u := range users {
		out = append(out, UserStatus{UserID: u.ID, Username: u.Username, Online: u.Online})
	}
	return out
}

// encodeEnvelope 把载荷包进信封并序列化成一帧。
func encodeEnvelope(typ string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}
