package main

import (
	"github.com/Slick-Silver/toehubfinalplj/internal/config"
	"github.com/Slick-Silver/toehubfinalplj/internal/db"
	clog "github.com/Slick-Silver/toehubfinalplj/internal/log"
	"github.com/Slick-Silver/toehubfinalplj/internal/server"
	"github.com/Slick-Silver/toehubfinalplj/internal/store"
	"github.com/Slick-Silver/toehubfinalplj/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动网关服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	if err := db.SeedChannels(gdb); err != nil {
		log.Fatal().Err(err).Msg("db seed channels")
	}

	st := store.NewGormStore(gdb)
	gw := ws.NewGateway(st, cfg)
	r := server.SetupRouter(cfg, st, gw)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("gateway listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
