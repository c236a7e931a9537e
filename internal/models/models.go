package models

import "time"

type User struct {
	ID       uint      `gorm:"primaryKey"`
	Username string    `gorm:"uniqueIndex;size:64;not null"`
	Online   bool      `gorm:"not null;default:false"`
	LastSeen time.Time `gorm:"not null"`
}

type Channel struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"uniqueIndex;size:128;not null"`
	Description *string `gorm:"type:text"`
}

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	UserID    uint      `gorm:"index;not null"`
	ChannelID uint      `gorm:"index:idx_msg_channel_id;not null"`
	Timestamp time.Time `gorm:"index;not null"`
}
