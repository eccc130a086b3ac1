package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	MessageStorePostgres = "postgres"
	MessageStoreBadger   = "badger"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	MessageStore    string        `env:"MESSAGE_STORE" envDefault:"postgres"`
	BadgerPath      string        `env:"BADGER_PATH" envDefault:"./data/messages"`
	LogDevelopment  bool          `env:"LOG_DEVELOPMENT" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"30s"`

	JWTSecret            string `env:"JWT_SECRET,required"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`
	CookieSecure         bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CORSOrigin           string `env:"CORS_ORIGIN" envDefault:"http://localhost:5173"`

	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"10m"`
	LoginRateMax    int           `env:"LOGIN_RATE_MAX" envDefault:"5"`
	LoginIPRateMax  int           `env:"LOGIN_IP_RATE_MAX" envDefault:"20"`

	WebSocket        WebSocketConfig
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
}

// WebSocketConfig agrupa los tiempos y límites de las conexiones de chat.
type WebSocketConfig struct {
	PingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	PongWait      time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait     time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	MaxFrameBytes int64         `env:"WS_MAX_FRAME_BYTES" envDefault:"8192"`
	SendBuffer    int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	RequireAuth   bool          `env:"WS_REQUIRE_AUTH" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones que env no puede expresar con tags.
func (c *Config) Validate() error {
	switch c.MessageStore {
	case MessageStorePostgres, MessageStoreBadger:
	default:
		return fmt.Errorf("unknown MESSAGE_STORE %q", c.MessageStore)
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	return nil
}
