package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/models"
)

// MemStore 是内存版 Storage，主要用于测试与无数据库的本地运行。
type MemStore struct {
	mu        sync.Mutex
	users     map[uint]models.User
	channels  map[uint]models.Channel
	messages  map[uint]models.Message
	userID    uint
	channelID uint
	messageID uint
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[uint]models.User),
		channels: make(map[uint]models.Channel),
		messages: make(map[uint]models.Message),
	}
}

// NewSeededMemStore 返回预置了四个默认频道的 MemStore。
func NewSeededMemStore() *MemStore {
	s := NewMemStore()
	for _, name := range []string{"general", "toe-tips", "toe-tales", "toe-support"} {
		s.AddChannel(name, nil)
	}
	return s
}

// AddChannel 注册一个频道，返回其 id。
func (s *MemStore) AddChannel(name string, description *string) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelID++
	s.channels[s.channelID] = models.Channel{ID: s.channelID, Name: name, Description: description}
	return s.channelID
}

func (s *MemStore) GetUser(id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemStore) GetUserByUsername(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemStore) CreateUser(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			u.Online = true
			u.LastSeen = time.Now()
			s.users[u.ID] = u
			return &u, nil
		}
	}
	s.userID++
	u := models.User{ID: s.userID, Username: username, Online: true, LastSeen: time.Now()}
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemStore) SetUserOnline(id uint, online bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Online = online
	u.LastSeen = time.Now()
	s.users[id] = u
	return &u, nil
}

func (s *MemStore) ListUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetChannel(id uint) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return &ch, nil
}

func (s *MemStore) ListChannels() ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) AppendMessage(content string, userID, channelID uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageID++
	m := models.Message{ID: s.messageID, Content: content, UserID: userID, ChannelID: channelID, Timestamp: time.Now()}
	s.messages[m.ID] = m
	return &m, nil
}

// AppendMessageAt 按给定时间戳写入消息，测试用来构造历史排序场景。
func (s *MemStore) AppendMessageAt(content string, userID, channelID uint, ts time.Time) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageID++
	m := models.Message{ID: s.messageID, Content: content, UserID: userID, ChannelID: channelID, Timestamp: ts}
	s.messages[m.ID] = m
	return &m
}

func (s *MemStore) ListChannelMessages(channelID uint) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ChannelID == channelID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		username := "Unknown"
		if u, ok := s.users[m.UserID]; ok {
			username = u.Username
		}
		out = append(out, ChatMessage{
			ID:        m.ID,
			Content:   m.Content,
			UserID:    m.UserID,
			Username:  username,
			ChannelID: m.ChannelID,
			Timestamp: FormatTimestamp(m.Timestamp),
		})
	}
	return out, nil
}
