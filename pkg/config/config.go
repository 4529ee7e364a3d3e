package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Upstream   UpstreamConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	BruteForce BruteForceConfig
	ShareLink  ShareLinkConfig
}

type AppConfig struct {
	Env      string
	Port     string
	BaseURL  string
	LogLevel string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

type UpstreamConfig struct {
	BaseURL             string
	APIKey              string
	MetadataTimeout     time.Duration
	AvailabilityTimeout time.Duration
	AvailabilityTTL     time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type RateLimitConfig struct {
	PublicRequests int
	PublicWindow   time.Duration
	APIRequests    int
	APIWindow      time.Duration
}

type BruteForceConfig struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

type ShareLinkConfig struct {
	MaxLinksPerOrganizer int
	MaxEventsPerLink     int
	CodeLength           int
}

func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional, env vars take precedence.
	_ = viper.ReadInConfig()

	cfg := &Config{
		App: AppConfig{
			Env:      viper.GetString("APP_ENV"),
			Port:     viper.GetString("APP_PORT"),
			BaseURL:  viper.GetString("APP_BASE_URL"),
			LogLevel: viper.GetString("APP_LOG_LEVEL"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetString("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			MaxConns: viper.GetInt("POSTGRES_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
		},
		Upstream: UpstreamConfig{
			BaseURL:             viper.GetString("UPSTREAM_BASE_URL"),
			APIKey:              viper.GetString("UPSTREAM_API_KEY"),
			MetadataTimeout:     viper.GetDuration("UPSTREAM_METADATA_TIMEOUT"),
			AvailabilityTimeout: viper.GetDuration("UPSTREAM_AVAILABILITY_TIMEOUT"),
			AvailabilityTTL:     viper.GetDuration("UPSTREAM_AVAILABILITY_TTL"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("AUTH_JWT_SECRET"),
			Issuer:    viper.GetString("AUTH_ISSUER"),
		},
		RateLimit: RateLimitConfig{
			PublicRequests: viper.GetInt("RATE_LIMIT_PUBLIC_REQUESTS"),
			PublicWindow:   viper.GetDuration("RATE_LIMIT_PUBLIC_WINDOW"),
			APIRequests:    viper.GetInt("RATE_LIMIT_API_REQUESTS"),
			APIWindow:      viper.GetDuration("RATE_LIMIT_API_WINDOW"),
		},
		BruteForce: BruteForceConfig{
			MaxAttempts: viper.GetInt("BRUTE_FORCE_MAX_ATTEMPTS"),
			Window:      viper.GetDuration("BRUTE_FORCE_WINDOW"),
			Lockout:     viper.GetDuration("BRUTE_FORCE_LOCKOUT"),
		},
		ShareLink: ShareLinkConfig{
			MaxLinksPerOrganizer: viper.GetInt("SHARE_LINK_MAX_PER_ORGANIZER"),
			MaxEventsPerLink:     viper.GetInt("SHARE_LINK_MAX_EVENTS"),
			CodeLength:           viper.GetInt("SHARE_LINK_CODE_LENGTH"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8080")
	viper.SetDefault("APP_LOG_LEVEL", "info")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_USER", "sharegateway")
	viper.SetDefault("POSTGRES_PASSWORD", "sharegateway")
	viper.SetDefault("POSTGRES_DB", "sharegateway")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 25)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 10)

	viper.SetDefault("UPSTREAM_BASE_URL", "https://core.example.com")
	viper.SetDefault("UPSTREAM_API_KEY", "")
	viper.SetDefault("UPSTREAM_METADATA_TIMEOUT", "10s")
	viper.SetDefault("UPSTREAM_AVAILABILITY_TIMEOUT", "3s")
	viper.SetDefault("UPSTREAM_AVAILABILITY_TTL", "30s")

	viper.SetDefault("AUTH_JWT_SECRET", "change-me-in-production")
	viper.SetDefault("AUTH_ISSUER", "share-gateway")

	viper.SetDefault("RATE_LIMIT_PUBLIC_REQUESTS", 30)
	viper.SetDefault("RATE_LIMIT_PUBLIC_WINDOW", "1m")
	viper.SetDefault("RATE_LIMIT_API_REQUESTS", 120)
	viper.SetDefault("RATE_LIMIT_API_WINDOW", "1m")

	viper.SetDefault("BRUTE_FORCE_MAX_ATTEMPTS", 5)
	viper.SetDefault("BRUTE_FORCE_WINDOW", "300s")
	viper.SetDefault("BRUTE_FORCE_LOCKOUT", "600s")

	viper.SetDefault("SHARE_LINK_MAX_PER_ORGANIZER", 50)
	viper.SetDefault("SHARE_LINK_MAX_EVENTS", 20)
	viper.SetDefault("SHARE_LINK_CODE_LENGTH", 10)
}

func (c *PostgresConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}
