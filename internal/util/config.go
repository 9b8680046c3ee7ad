package util

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour

	defaultRateLimit     = 100
	defaultRateInterval  = 1 * time.Minute
	defaultRateBlockTime = 5 * time.Minute

	defaultBaseURL          = "http://localhost:8080/api/v1"
	defaultRequestTimeout   = 15 * time.Second
	defaultTokenLifetime    = 23 * time.Hour
	defaultRefreshLookahead = 5 * time.Minute
	defaultRefreshInterval  = 60 * time.Second
	defaultProbeInterval    = 5 * time.Minute
	defaultStoreNamespace   = "default"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	TokenPartsExpected = 2
	RawTokenLength     = 32
	JWTLeeWay          = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:      getEnvOrDefault("SERVER_ADDRESS", defaultServerAddr),
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	JwtSecretKey []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		AccessTTL:    parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:   parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
	}
}

type RateLimiterConfig struct {
	Limit     int
	Interval  time.Duration
	BlockTime time.Duration
}

func NewRateLimiterConfig() *RateLimiterConfig {
	limitStr := os.Getenv("RATE_LIMIT_LIMIT")
	limit := defaultRateLimit
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		} else {
			log.Printf("Invalid RATE_LIMIT_LIMIT: %s, using default %d", limitStr, defaultRateLimit)
		}
	}

	return &RateLimiterConfig{
		Limit:     limit,
		Interval:  parseDurationOrDefault("RATE_LIMIT_INTERVAL", defaultRateInterval),
		BlockTime: parseDurationOrDefault("RATE_LIMIT_BLOCK_TIME", defaultRateBlockTime),
	}
}

// StoreConfig selects and addresses the credential store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Namespace   string `yaml:"namespace"`
	RedisAddr   string `yaml:"redis_addr"`
	DatabaseURL string `yaml:"database_url"`
}

// ClientConfig configures the session daemon. Values come from defaults,
// then the optional YAML file named by SESSION_CONFIG_FILE, then the environment.
type ClientConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	TokenLifetime    time.Duration `yaml:"token_lifetime"`
	RefreshLookahead time.Duration `yaml:"refresh_lookahead"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	Store            StoreConfig   `yaml:"store"`
	WebhookURL       string        `yaml:"webhook_url"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:          defaultBaseURL,
		RequestTimeout:   defaultRequestTimeout,
		TokenLifetime:    defaultTokenLifetime,
		RefreshLookahead: defaultRefreshLookahead,
		RefreshInterval:  defaultRefreshInterval,
		ProbeInterval:    defaultProbeInterval,
		Store: StoreConfig{
			Backend:   StoreMemory,
			Namespace: defaultStoreNamespace,
		},
	}
}

func NewClientConfig() (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path := os.Getenv("SESSION_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("API_BASE_URL", cfg.BaseURL), "/")
	cfg.APIKey = getEnvOrDefault("API_KEY", cfg.APIKey)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.TokenLifetime = parseDurationOrDefault("TOKEN_LIFETIME", cfg.TokenLifetime)
	cfg.RefreshLookahead = parseDurationOrDefault("REFRESH_LOOKAHEAD", cfg.RefreshLookahead)
	cfg.RefreshInterval = parseDurationOrDefault("REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.ProbeInterval = parseDurationOrDefault("PROBE_INTERVAL", cfg.ProbeInterval)
	cfg.Store.Backend = strings.ToLower(getEnvOrDefault("CREDENTIAL_STORE", cfg.Store.Backend))
	cfg.Store.Namespace = getEnvOrDefault("STORE_NAMESPACE", cfg.Store.Namespace)
	cfg.Store.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.Store.DatabaseURL)
	cfg.WebhookURL = getEnvOrDefault("WEBHOOK_URL", cfg.WebhookURL)
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Username = getEnvOrDefault("SESSION_USERNAME", cfg.Username)
	cfg.Password = getEnvOrDefault("SESSION_PASSWORD", cfg.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if c.TokenLifetime <= 0 || c.RefreshLookahead < 0 || c.RefreshInterval <= 0 {
		return fmt.Errorf("token lifetime and refresh interval must be positive")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis credential store")
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres credential store")
		}
	default:
		return fmt.Errorf("unknown credential store %q", c.Store.Backend)
	}
	return nil
}

func GetServiceAPIKey() string {
	return os.Getenv("AUTH_SERVICE_API_KEY")
}

func getEnvOrDefault(varName, def string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return def
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}

func GetRedisAddr() string {
	return os.Getenv("REDIS_ADDR")
}
