package store

import (
	"errors"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/models"

	"gorm.io/gorm"
)

// 存储层通用错误，会话协议据此区分“找不到”与真正的存储故障。
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrChannelNotFound = errors.New("channel not found")
)

// ChatMessage 是广播与历史查询对外输出的消息数据，时间戳为 ISO-8601 字符串。
type ChatMessage struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	ChannelID uint   `json:"channelId"`
	Timestamp string `json:"timestamp"`
}

// Storage 是网关依赖的持久化协作方：用户、频道与消息的读写。
// 每个调用自身保证原子性，跨调用不提供事务。
type Storage interface {
	GetUser(id uint) (*models.User, error)
	// GetUserByUsername 按用户名查找，大小写不敏感。
	GetUserByUsername(username string) (*models.User, error)
	// CreateUser 创建在线状态的新用户；用户名唯一索引冲突时回退为
	// 再次查找已有用户（并发 JOIN 同名时的约定行为）。
	CreateUser(username string) (*models.User, error)
	// SetUserOnline 更新在线标记并刷新 last_seen。
	SetUserOnline(id uint, online bool) (*models.User, error)
	ListUsers() ([]models.User, error)

	GetChannel(id uint) (*models.Channel, error)
	ListChannels() ([]models.Channel, error)

	AppendMessage(content string, userID, channelID uint) (*models.Message, error)
	// ListChannelMessages 返回频道历史，按 timestamp 升序、同刻按 id 升序。
	ListChannelMessages(channelID uint) ([]ChatMessage, error)
}

// GormStore 是基于 gorm + Postgres 的 Storage 实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) CreateUser(username string) (*models.User, error) {
	user := models.User{Username: username, Online: true, LastSeen: time.Now()}
	if err := s.db.Create(&user).Error; err != nil {
		// 并发 JOIN 撞上唯一索引：当作“用户已存在”，重试一次查找。
		if existing, err2 := s.GetUserByUsername(username); err2 == nil {
			return s.SetUserOnline(existing.ID, true)
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) SetUserOnline(id uint, online bool) (*models.User, error) {
	updates := map[string]interface{}{"online": online, "last_seen": time.Now()}
	res := s.db.Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(id)
}

func (s *GormStore) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) GetChannel(id uint) (*models.Channel, error) {
	var ch models.Channel
	if err := s.db.First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (s *GormStore) ListChannels() ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.db.Order("id asc").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *GormStore) AppendMessage(content string, userID, channelID uint) (*models.Message, error) {
	msg := models.Message{Content: content, UserID: userID, ChannelID: channelID, Timestamp: time.Now()}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *GormStore) ListChannelMessages(channelID uint) ([]ChatMessage, error) {
	type row struct {
		ID        uint
		Content   string
		UserID    uint
		Username  string
		ChannelID uint
		Timestamp time.Time
	}
	var rows []row
	err := s.db.Table("messages").
		Select("messages.id, messages.content, messages.user_id, users.username, messages.channel_id, messages.timestamp").
		Joins("JOIN users ON users.id = messages.user_id").
		Where("messages.channel_id = ?", channelID).
		Order("messages.timestamp asc, messages.id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, ChatMessage{
			ID:        r.ID,
			Content:   r.Content,
			UserID:    r.UserID,
			Username:  r.Username,
			ChannelID: r.ChannelID,
			Timestamp: FormatTimestamp(r.Timestamp),
		})
	}
	return out, nil
}

// FormatTimestamp 统一输出 ISO-8601(UTC) 时间戳。
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
