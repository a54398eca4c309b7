package config

import (
	"fmt"
	"time"
)

// This file defines the configuration structures used by viper_config.go
// The actual loading is handled by viper in viper_config.go

// ServerConfig represents the full server configuration
type ServerConfig struct {
	Server ServerSettings `yaml:"server"`
	Redis  RedisSettings  `yaml:"redis"`
	Game   GameSettings   `yaml:"game"`
}

// ServerSettings contains server-wide settings
type ServerSettings struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"` // 0 for SSE support
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"` // non-SSE requests only
	SSEIdleTimeout  time.Duration `yaml:"sseIdleTimeout"` // stream retired after this much silence

	// Rate limiting (golang.org/x/time/rate)
	RateLimit      float64 `yaml:"rateLimit"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	MaxRequestSize int64 `yaml:"maxRequestSize"`

	// CORS origins for the host screen and player phones. "*" allows all.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	EnableMetrics bool   `yaml:"enableMetrics"`
	EnableDebug   bool   `yaml:"enableDebug"` // gates admin overrides like mafia force-phase
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
}

// RedisSettings selects the state store backend. An empty Addr selects the
// in-process memory store.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GameSettings carries protocol knobs that do not change semantics
type GameSettings struct {
	RoomTTL          time.Duration `yaml:"roomTTL"`
	RoomCodeLength   int           `yaml:"roomCodeLength"`
	MaxNicknameLen   int           `yaml:"maxNicknameLen"`
	QuizRoundSeconds int           `yaml:"quizRoundSeconds"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Port:            "",
			Host:            "",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // 0 for SSE support
			IdleTimeout:     0,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
			SSEIdleTimeout:  time.Hour,

			RateLimit:      20,
			RateLimitBurst: 40,

			MaxRequestSize: 1048576, // 1MB

			AllowedOrigins: []string{"*"},

			EnableMetrics: false,
			EnableDebug:   false,
			LogLevel:      "info",
			LogFormat:     "json",
		},
		Redis: RedisSettings{
			Addr: "",
			DB:   0,
		},
		Game: GameSettings{
			RoomTTL:          6 * time.Hour,
			RoomCodeLength:   4,
			MaxNicknameLen:   8,
			QuizRoundSeconds: 120,
		},
	}
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT environment variable must be set")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("HOST environment variable must be set")
	}

	if c.Game.RoomCodeLength < 3 {
		return fmt.Errorf("roomCodeLength must be at least 3")
	}
	if c.Game.RoomTTL < time.Minute {
		return fmt.Errorf("roomTTL must be at least 1m")
	}
	if c.Game.MaxNicknameLen < 1 {
		return fmt.Errorf("maxNicknameLen must be at least 1")
	}
	if c.Game.QuizRoundSeconds < 1 {
		return fmt.Errorf("quizRoundSeconds must be at least 1")
	}
	if c.Server.SSEIdleTimeout < time.Minute {
		return fmt.Errorf("sseIdleTimeout must be at least 1m")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rateLimit must be positive")
	}
	if c.Server.MaxRequestSize < 1024 {
		return fmt.Errorf("maxRequestSize must be at least 1KB")
	}

	switch c.Server.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("logFormat must be json or console, got %q", c.Server.LogFormat)
	}

	return nil
}
