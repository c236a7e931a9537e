package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                string
	DatabaseDSN         string
	Env                 string
	PingIntervalSeconds int
	PongWaitSeconds     int
	WriteWaitSeconds    int
	ReadLimitBytes      int64
	SendBuffer          int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	port := getenv("APP_PORT", "8080")
	dsn := getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=toehub port=5432 sslmode=disable TimeZone=UTC")
	env := getenv("APP_ENV", "dev")
	return Config{
		Port:                port,
		DatabaseDSN:         dsn,
		Env:                 env,
		PingIntervalSeconds: getenvInt("WS_PING_INTERVAL_SECONDS", 30),
		PongWaitSeconds:     getenvInt("WS_PONG_WAIT_SECONDS", 60),
		WriteWaitSeconds:    getenvInt("WS_WRITE_WAIT_SECONDS", 10),
		ReadLimitBytes:      int64(getenvInt("WS_READ_LIMIT_BYTES", 1<<20)),
		SendBuffer:          getenvInt("WS_SEND_BUFFER", 256),
	}
}
