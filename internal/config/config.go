package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	CORSAllowOrigins string
	LogLevel         string
	LogFormat        string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	EventsChannel  string
	JWTSecret      string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	AIProvider        string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AIModel           string
	AITemperature     float32
	AIMaxRetries      int
	AIInitialDelay    time.Duration
	AICallTimeout     time.Duration
	AIRateLimitPerMin int

	RegradeConcurrency int
	RegradeLockTTL     time.Duration
	ScanMaxUploadBytes int64
	SummaryCacheTTL    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AIAPIKey returns the credential of the selected provider.
func (c Config) AIAPIKey() string {
	if c.AIProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AVINCI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "AVinci API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:avinci.db?cache=shared")
	v.SetDefault("events.channel", "avinci:grading")
	v.SetDefault("cloudinary.folder", "avinci/scans")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.initial_delay", "2s")
	v.SetDefault("ai.call_timeout", "60s")
	v.SetDefault("ai.rate_limit_per_minute", 30)
	v.SetDefault("regrade.concurrency", 1)
	v.SetDefault("regrade.lock_ttl", "15m")
	v.SetDefault("scan.max_upload_mb", 10)
	v.SetDefault("summary.cache_ttl", "60s")

	initialDelay, err := parseDuration(v, "ai.initial_delay")
	if err != nil {
		return Config{}, err
	}
	callTimeout, err := parseDuration(v, "ai.call_timeout")
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := parseDuration(v, "regrade.lock_ttl")
	if err != nil {
		return Config{}, err
	}
	summaryTTL, err := parseDuration(v, "summary.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		LogLevel:               v.GetString("log.level"),
		LogFormat:              strings.ToLower(v.GetString("log.format")),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsChannel:          v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		GeminiAPIKey:           v.GetString("gemini_api_key"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:          v.GetString("openai_base_url"),
		AIModel:                v.GetString("ai.model"),
		AITemperature:          float32(v.GetFloat64("ai.temperature")),
		AIMaxRetries:           v.GetInt("ai.max_retries"),
		AIInitialDelay:         initialDelay,
		AICallTimeout:          callTimeout,
		AIRateLimitPerMin:      v.GetInt("ai.rate_limit_per_minute"),
		RegradeConcurrency:     v.GetInt("regrade.concurrency"),
		RegradeLockTTL:         lockTTL,
		ScanMaxUploadBytes:     v.GetInt64("scan.max_upload_mb") * 1024 * 1024,
		SummaryCacheTTL:        summaryTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.AIProvider {
	case "gemini", "openai":
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	if cfg.AIMaxRetries < 0 {
		cfg.AIMaxRetries = 0
	}
	if cfg.RegradeConcurrency <= 0 {
		cfg.RegradeConcurrency = 1
	}
	if cfg.AIRateLimitPerMin <= 0 {
		cfg.AIRateLimitPerMin = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
