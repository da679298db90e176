package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/surface"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Store    string
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	Vault    VaultConfig
	Surface  SurfaceConfig
	Campaign CampaignConfig
	Slack    SlackConfig
	Account  AccountConfig
	Log      LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables
// campaign event streaming.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds operator token settings.
type JWTConfig struct {
	Secret   string //nolint:gosec // G117: JWT signing secret config
	TokenTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        bool
}

// VaultConfig holds the session blob encryption key. Key wins over
// Passphrase when both are set.
type VaultConfig struct {
	Key        []byte
	Passphrase string //nolint:gosec // G117: vault passphrase config
	Salt       string
}

// SurfaceConfig holds automation gateway settings and outcome markers.
type SurfaceConfig struct {
	GatewayURL           string
	GatewayToken         string //nolint:gosec // G117: gateway bearer token config
	RequestTimeout       time.Duration
	ActionTimeout        time.Duration
	ChallengeMarkers     []string
	BadCredentialMarkers []string
	LoggedInMarkers      []string
}

// CampaignConfig holds campaign runner settings.
type CampaignConfig struct {
	FailureCooldown time.Duration
	MaxIterations   int
}

// SlackConfig holds Slack integration settings. An empty BotToken disables
// operator alerts.
type SlackConfig struct {
	BotToken      string
	SigningSecret string
	ChannelID     string
	AlertTTL      time.Duration
}

// AccountConfig optionally seeds one credential at start-up.
type AccountConfig struct {
	ID     string
	Secret string //nolint:gosec // G117: seeded credential
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level  string
	Format string
}

// LoadDotenv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config.LoadDotenv: %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, vault key, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("PARLEY_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("PARLEY_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("PARLEY_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tokenTTL, err := getEnvDuration("PARLEY_JWT_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("PARLEY_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("PARLEY_SERVER_WRITE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateRPS, err := getEnvFloat("PARLEY_RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("PARLEY_RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	metricsEnabled, err := getEnvBool("PARLEY_METRICS_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	vaultKey, err := getEnvHex("PARLEY_VAULT_KEY")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	requestTimeout, err := getEnvDuration("PARLEY_GATEWAY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	actionTimeout, err := getEnvDuration("PARLEY_ACTION_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cooldown, err := getEnvDuration("PARLEY_CAMPAIGN_FAILURE_COOLDOWN", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxIterations, err := getEnvInt("PARLEY_CAMPAIGN_MAX_ITERATIONS", 500)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	alertTTL, err := getEnvDuration("PARLEY_SLACK_ALERT_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	defaults := surface.DefaultRules()

	cfg := &Config{
		Store: getEnv("PARLEY_STORE", StoreMemory),
		Database: DatabaseConfig{
			Host:     getEnv("PARLEY_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("PARLEY_DB_USER", "parley"),
			Password: getEnv("PARLEY_DB_PASSWORD", ""),
			DBName:   getEnv("PARLEY_DB_NAME", "parley_dev"),
			SSLMode:  getEnv("PARLEY_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("PARLEY_REDIS_ADDR", ""),
			Password: getEnv("PARLEY_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:   getEnv("PARLEY_JWT_SECRET", ""),
			TokenTTL: tokenTTL,
		},
		Server: ServerConfig{
			Addr:           getEnv("PARLEY_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    getEnvList("PARLEY_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitRPS:   rateRPS,
			RateLimitBurst: rateBurst,
			Metrics:        metricsEnabled,
		},
		Vault: VaultConfig{
			Key:        vaultKey,
			Passphrase: getEnv("PARLEY_VAULT_PASSPHRASE", ""),
			Salt:       getEnv("PARLEY_VAULT_SALT", "parley"),
		},
		Surface: SurfaceConfig{
			GatewayURL:           getEnv("PARLEY_GATEWAY_URL", "http://localhost:9222"),
			GatewayToken:         getEnv("PARLEY_GATEWAY_TOKEN", ""),
			RequestTimeout:       requestTimeout,
			ActionTimeout:        actionTimeout,
			ChallengeMarkers:     getEnvList("PARLEY_RULES_CHALLENGE", defaults.ChallengeMarkers),
			BadCredentialMarkers: getEnvList("PARLEY_RULES_BAD_CREDENTIALS", defaults.BadCredentialMarkers),
			LoggedInMarkers:      getEnvList("PARLEY_RULES_LOGGED_IN", defaults.LoggedInMarkers),
		},
		Campaign: CampaignConfig{
			FailureCooldown: cooldown,
			MaxIterations:   maxIterations,
		},
		Slack: SlackConfig{
			BotToken:      getEnv("PARLEY_SLACK_BOT_TOKEN", ""),
			SigningSecret: getEnv("PARLEY_SLACK_SIGNING_SECRET", ""),
			ChannelID:     getEnv("PARLEY_SLACK_CHANNEL_ID", ""),
			AlertTTL:      alertTTL,
		},
		Account: AccountConfig{
			ID:     getEnv("PARLEY_ACCOUNT_ID", ""),
			Secret: getEnv("PARLEY_ACCOUNT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("PARLEY_LOG_LEVEL", "info"),
			Format: getEnv("PARLEY_LOG_FORMAT", "json"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("PARLEY_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("PARLEY_JWT_SECRET must be at least 32 characters")
	}
	if c.JWT.TokenTTL <= 0 {
		return fmt.Errorf("PARLEY_JWT_TOKEN_TTL must be positive, got %s", c.JWT.TokenTTL)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if len(c.Vault.Key) == 0 && c.Vault.Passphrase == "" {
			return errors.New("PARLEY_VAULT_KEY or PARLEY_VAULT_PASSPHRASE is required with PARLEY_STORE=postgres")
		}
		if len(c.Vault.Key) != 0 && len(c.Vault.Key) != 32 {
			return fmt.Errorf("PARLEY_VAULT_KEY must decode to 32 bytes, got %d", len(c.Vault.Key))
		}
		if c.Database.SSLMode == "disable" {
			log.Warn().Msg("PARLEY_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	default:
		return fmt.Errorf("PARLEY_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("PARLEY_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("PARLEY_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("PARLEY_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("PARLEY_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("PARLEY_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("PARLEY_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}
	if c.Surface.GatewayURL == "" {
		return errors.New("PARLEY_GATEWAY_URL is required")
	}
	if c.Surface.RequestTimeout <= 0 {
		return fmt.Errorf("PARLEY_GATEWAY_TIMEOUT must be positive, got %s", c.Surface.RequestTimeout)
	}
	if c.Surface.ActionTimeout <= 0 {
		return fmt.Errorf("PARLEY_ACTION_TIMEOUT must be positive, got %s", c.Surface.ActionTimeout)
	}
	if c.Campaign.FailureCooldown < 0 {
		return fmt.Errorf("PARLEY_CAMPAIGN_FAILURE_COOLDOWN must not be negative, got %s", c.Campaign.FailureCooldown)
	}
	if c.Campaign.MaxIterations < 0 {
		return fmt.Errorf("PARLEY_CAMPAIGN_MAX_ITERATIONS must be >= 0, got %d", c.Campaign.MaxIterations)
	}
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		return errors.New("PARLEY_SLACK_CHANNEL_ID is required when PARLEY_SLACK_BOT_TOKEN is set")
	}
	if (c.Account.ID == "") != (c.Account.Secret == "") {
		return errors.New("PARLEY_ACCOUNT_ID and PARLEY_ACCOUNT_SECRET must be set together")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Rules returns the outcome classification markers.
func (c *SurfaceConfig) Rules() surface.Rules {
	return surface.Rules{
		ChallengeMarkers:     c.ChallengeMarkers,
		BadCredentialMarkers: c.BadCredentialMarkers,
		LoggedInMarkers:      c.LoggedInMarkers,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvHex(key string) ([]byte, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("parsing %s as hex: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
