// Package config defines runtime defaults and environment-variable
// overrides for the chatrelay server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arvhov/chatrelay/internal/logger"
)

// Config holds the server configuration.
type Config struct {
	Addr           string
	DBPath         string
	NATSURL        string
	AllowedOrigins []string

	// Per-connection limits.
	MaxMessageSize int64
	SendBuffer     int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration

	// Default number of messages returned by the history endpoint.
	HistoryLimit int

	ShutdownTimeout time.Duration

	Log logger.LogConfig
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Addr:            ":8080",
		DBPath:          "chatrelay.db",
		NATSURL:         "",
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  4096,
		SendBuffer:      256,
		IdleTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		HistoryLimit:    50,
		ShutdownTimeout: 15 * time.Second,
		Log:             logger.DefaultLogConfig(),
	}
}

// NewConfigFromEnv returns a Config built from environment variables,
// falling back to defaults for anything unset or unparsable.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	if addr := os.Getenv("CHATRELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if path := os.Getenv("CHATRELAY_DB_PATH"); path != "" {
		cfg.DBPath = path
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATSURL = url
	}
	if origins := os.Getenv("CHATRELAY_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if size := os.Getenv("CHATRELAY_MAX_MESSAGE_SIZE"); size != "" {
		cfg.MaxMessageSize = parseInt64(size, cfg.MaxMessageSize)
	}
	if buffer := os.Getenv("CHATRELAY_SEND_BUFFER"); buffer != "" {
		cfg.SendBuffer = parseInt(buffer, cfg.SendBuffer)
	}
	if idle := os.Getenv("CHATRELAY_IDLE_TIMEOUT"); idle != "" {
		cfg.IdleTimeout = parseSeconds(idle, cfg.IdleTimeout)
	}
	if limit := os.Getenv("CHATRELAY_HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseInt(limit, cfg.HistoryLimit)
	}
	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if file := os.Getenv("CHATRELAY_LOG_FILE"); file != "" {
		cfg.Log.LogToFile = true
		cfg.Log.FilePath = file
	}

	return cfg
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func parseInt64(value string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func parseSeconds(value string, fallback time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
