package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	API struct {
		BaseURL string
		Token   string
		Timeout time.Duration
		// Requests per second allowed towards the REST API.
		RateLimit int
	}
	WS struct {
		URL               string
		HandshakeTimeout  time.Duration
		PingInterval      time.Duration
		ReconnectBase     time.Duration
		ReconnectMax      time.Duration
		ReconnectAttempts int
	}
	Sync struct {
		PollInterval    time.Duration
		FreshnessTTL    time.Duration
		CurrentUser     string
		SharedTransport bool
	}
	Cache struct {
		Backend string
		Key     string
		Dir     string
		DSN     string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Kafka struct {
		Broker string
		Topic  string
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Server struct {
		Addr     string
		BasePath string
	}
	Logging struct {
		Level    string
		Format   string
		Output   string
		FilePath string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Remote SLA API
	cfg.API.BaseURL = os.Getenv("API_BASE_URL")
	cfg.API.Token = os.Getenv("API_TOKEN")
	cfg.API.Timeout = durationEnv("API_TIMEOUT", 10*time.Second)
	cfg.API.RateLimit = intEnv("API_RATE_LIMIT", 5)

	// Push channel
	cfg.WS.URL = os.Getenv("SLA_WS_URL")
	cfg.WS.HandshakeTimeout = durationEnv("HANDSHAKE_TIMEOUT", 5*time.Second)
	cfg.WS.PingInterval = durationEnv("WS_PING_INTERVAL", 30*time.Second)
	cfg.WS.ReconnectBase = durationEnv("WS_RECONNECT_BASE", time.Second)
	cfg.WS.ReconnectMax = durationEnv("WS_RECONNECT_MAX", 30*time.Second)
	cfg.WS.ReconnectAttempts = intEnv("WS_RECONNECT_ATTEMPTS", 0)

	// Reconciliation
	cfg.Sync.PollInterval = durationEnv("POLL_INTERVAL", 30*time.Second)
	cfg.Sync.FreshnessTTL = durationEnv("CACHE_FRESHNESS", 5*time.Minute)
	cfg.Sync.CurrentUser = os.Getenv("CURRENT_USER")
	cfg.Sync.SharedTransport = os.Getenv("SHARED_TRANSPORT") != "false"

	// Cache
	cfg.Cache.Backend = os.Getenv("CACHE_BACKEND")
	cfg.Cache.Key = os.Getenv("CACHE_KEY")
	cfg.Cache.Dir = os.Getenv("CACHE_DIR")
	cfg.Cache.DSN = os.Getenv("CACHE_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = intEnv("REDIS_DB", 0)

	// Outbound alert fan-out
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RateLimit = intEnv("TELEGRAM_RATE_LIMIT", 1)
	cfg.Notification.QueueSize = intEnv("QUEUE_SIZE", 0)
	cfg.Notification.MaxWorkers = intEnv("MAX_WORKERS", 0)

	cfg.Server.Addr = os.Getenv("SERVER_ADDR")
	cfg.Server.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	cfg.Logging.Format = os.Getenv("LOG_FORMAT")
	cfg.Logging.Output = os.Getenv("LOG_OUTPUT")
	cfg.Logging.FilePath = os.Getenv("LOG_FILE")

	// Validate required settings
	missing := []string{}
	if cfg.API.BaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if cfg.WS.URL == "" {
		missing = append(missing, "SLA_WS_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.CurrentUser == "" {
		cfg.Sync.CurrentUser = "admin"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "file"
	}
	if cfg.Cache.Key == "" {
		cfg.Cache.Key = "sla-monitor:cache:v1"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = ".cache"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sla_alert_events"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 100
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 2
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/api/v0"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "logs/slamonitor.log"
	}
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// durationEnv accepts Go duration strings ("5s") or plain seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if s, err := strconv.Atoi(raw); err == nil {
		return time.Duration(s) * time.Second
	}
	return def
}
