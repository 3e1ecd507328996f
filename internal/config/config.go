package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Optional infrastructure
	PostgresDSN string
	RedisURL    string

	// PocketBase backend
	PocketBaseURL           string
	PocketBaseAdminIdentity string
	PocketBaseAdminPassword string
	RequestCollection       string
	UserCollection          string

	// Request monitor
	RequestThreshold    int
	MonitorWindow       time.Duration
	MonitorInterval     time.Duration
	MonitorWorkers      int
	MonitorLockTTL      time.Duration
	MonitorRunOnStart   bool
	MonitorTriggerToken string
	MonitorWSToken      string

	// Moderation proxy
	OpenAIAPIKey    string
	ModerationURL   string
	ModerationModel string

	// 3D generation
	GenerationAPIURL string

	// Upstream HTTP
	UpstreamTimeout    time.Duration
	RateLimitPerMinute int

	// Server
	APIPort     string
	MonitorPort string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		PocketBaseURL:           strings.TrimRight(getEnv("POCKETBASE_URL", "http://localhost:8090"), "/"),
		PocketBaseAdminIdentity: getEnv("POCKETBASE_ADMIN_IDENTITY", ""),
		PocketBaseAdminPassword: getEnv("POCKETBASE_ADMIN_PASSWORD", ""),
		RequestCollection:       getEnv("POCKETBASE_REQUEST_COLLECTION", "requests"),
		UserCollection:          getEnv("POCKETBASE_USER_COLLECTION", "users"),

		RequestThreshold:    getEnvInt("REQUEST_THRESHOLD", 20),
		MonitorWindow:       time.Duration(getEnvInt("MONITOR_WINDOW_SECONDS", 300)) * time.Second,
		MonitorInterval:     time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 300)) * time.Second,
		MonitorWorkers:      getEnvInt("MONITOR_WORKERS", 1),
		MonitorLockTTL:      time.Duration(getEnvInt("MONITOR_LOCK_TTL_SECONDS", 120)) * time.Second,
		MonitorRunOnStart:   getEnvBool("MONITOR_RUN_ON_START", false),
		MonitorTriggerToken: getEnv("MONITOR_TRIGGER_TOKEN", ""),
		MonitorWSToken:      getEnv("MONITOR_WS_TOKEN", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ModerationURL:   getEnv("MODERATION_URL", "https://api.openai.com/v1/moderations"),
		ModerationModel: getEnv("MODERATION_MODEL", "omni-moderation-latest"),

		GenerationAPIURL: strings.TrimRight(getEnv("GENERATION_API_URL", "https://trellis.fyrean.com"), "/"),

		UpstreamTimeout:    time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		APIPort:     getEnv("API_PORT", "3000"),
		MonitorPort: getEnv("MONITOR_PORT", "3001"),
	}
}

// Validate only warns; each binary decides what it cannot run without.
func (c *Config) Validate(log *zap.Logger) {
	if c.PocketBaseAdminIdentity == "" || c.PocketBaseAdminPassword == "" {
		log.Warn("POCKETBASE_ADMIN_IDENTITY or POCKETBASE_ADMIN_PASSWORD is not set")
	}
	if c.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is not set")
	}
	if c.RequestThreshold <= 0 {
		log.Warn("REQUEST_THRESHOLD must be positive, using 20", zap.Int("value", c.RequestThreshold))
		c.RequestThreshold = 20
	}
	if c.MonitorWorkers < 1 {
		c.MonitorWorkers = 1
	}
	if c.MonitorWindow <= 0 {
		log.Warn("MONITOR_WINDOW_SECONDS must be positive, using 300", zap.Duration("value", c.MonitorWindow))
		c.MonitorWindow = 5 * time.Minute
	}
	if c.MonitorInterval <= 0 {
		log.Warn("MONITOR_INTERVAL_SECONDS must be positive, using 300", zap.Duration("value", c.MonitorInterval))
		c.MonitorInterval = 5 * time.Minute
	}
	if c.MonitorLockTTL <= 0 {
		log.Warn("MONITOR_LOCK_TTL_SECONDS must be positive, using 120", zap.Duration("value", c.MonitorLockTTL))
		c.MonitorLockTTL = 2 * time.Minute
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 30 * time.Second
	}
	if c.RedisURL == "" {
		log.Info("REDIS_URL is not set, using in-process run lock and event hub")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}
