package db

import (
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect 负责建立到 Postgres 的连接，并带有简单的重试来等待容器就绪。
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// Migrate 自动迁移网关涉及的全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &models.Channel{}, &models.Message{})
}

// defaultChannels 是启动时内置的频道集合，缺失时补齐、已存在时保持不动。
var defaultChannels = []models.Channel{
	{Name: "general", Description: strPtr("General toe discussion")},
	{Name: "toe-tips", Description: strPtr("Share advice and toe care tips")},
	{Name: "toe-tales", Description: strPtr("Share funny toe stories")},
	{Name: "toe-support", Description: strPtr("Get help with your toe issues")},
}

// SeedChannels 按名称幂等地创建默认频道。
func SeedChannels(gdb *gorm.DB) error {
	for _, ch := range defaultChannels {
		var count int64
		if err := gdb.Model(&models.Channel{}).Where("LOWER(name) = LOWER(?)", ch.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := gdb.Create(&ch).Error; err != nil {
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
