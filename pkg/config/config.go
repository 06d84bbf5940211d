package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Webhooks    WebhookConfig
	Booking     BookingConfig
	Enrollments EnrollmentConfig
	FollowUps   FollowUpConfig
	Cohorts     CohortConfig
	Exports     ExportConfig
	Airtable    AirtableConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WebhookConfig points outbound calls at the automation service.
type WebhookConfig struct {
	BaseURL          string
	CalendarPath     string
	FollowUpPath     string
	AbandonedPath    string
	Timeout          time.Duration
	DispatchWorkers  int
	DispatchRetries  int
	DispatchInterval time.Duration
}

// BookingConfig shapes private-class booking and checkout URL construction.
type BookingConfig struct {
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

// EnrollmentConfig tunes the stalled-enrollment abandonment sweep.
type EnrollmentConfig struct {
	StallAfter    time.Duration
	SweepInterval time.Duration
}

// FollowUpConfig tunes the automated follow-up scheduler.
type FollowUpConfig struct {
	ScanInterval time.Duration
	BatchSize    int
}

// CohortConfig governs cohort listing cache behaviour and class generation.
type CohortConfig struct {
	BeginnerCacheTTL     time.Duration
	DefaultGenerateWeeks int
}

// ExportConfig controls attendance-sheet export storage and signed links.
type ExportConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// AirtableConfig holds credentials for the one-off migration CLI.
type AirtableConfig struct {
	APIKey string
	BaseID string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Webhooks = WebhookConfig{
		BaseURL:          v.GetString("AUTOMATION_BASE_URL"),
		CalendarPath:     v.GetString("AUTOMATION_CALENDAR_PATH"),
		FollowUpPath:     v.GetString("AUTOMATION_FOLLOWUP_PATH"),
		AbandonedPath:    v.GetString("AUTOMATION_ABANDONED_PATH"),
		Timeout:          parseDuration(v.GetString("AUTOMATION_TIMEOUT"), 10*time.Second),
		DispatchWorkers:  v.GetInt("WEBHOOK_DISPATCH_WORKERS"),
		DispatchRetries:  v.GetInt("WEBHOOK_DISPATCH_RETRIES"),
		DispatchInterval: parseDuration(v.GetString("WEBHOOK_DISPATCH_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Booking = BookingConfig{
		CheckoutSuccessURL: v.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:  v.GetString("CHECKOUT_CANCEL_URL"),
	}

	cfg.Enrollments = EnrollmentConfig{
		StallAfter:    parseDuration(v.GetString("ENROLLMENT_STALL_AFTER"), 14*24*time.Hour),
		SweepInterval: parseDuration(v.GetString("ENROLLMENT_SWEEP_INTERVAL"), time.Hour),
	}

	cfg.FollowUps = FollowUpConfig{
		ScanInterval: parseDuration(v.GetString("FOLLOWUP_SCAN_INTERVAL"), 5*time.Minute),
		BatchSize:    v.GetInt("FOLLOWUP_BATCH_SIZE"),
	}

	cfg.Cohorts = CohortConfig{
		BeginnerCacheTTL:     parseDuration(v.GetString("BEGINNER_COHORTS_CACHE_TTL"), 5*time.Minute),
		DefaultGenerateWeeks: v.GetInt("COHORT_GENERATE_WEEKS"),
	}

	cfg.Exports = ExportConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Airtable = AirtableConfig{
		APIKey: v.GetString("AIRTABLE_API_KEY"),
		BaseID: v.GetString("AIRTABLE_BASE_ID"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_ops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUTOMATION_BASE_URL", "http://localhost:5678")
	v.SetDefault("AUTOMATION_CALENDAR_PATH", "/webhook/calendar-events")
	v.SetDefault("AUTOMATION_FOLLOWUP_PATH", "/webhook/follow-up-message")
	v.SetDefault("AUTOMATION_ABANDONED_PATH", "/webhook/abandoned-enrollment")
	v.SetDefault("AUTOMATION_TIMEOUT", "10s")
	v.SetDefault("WEBHOOK_DISPATCH_WORKERS", 2)
	v.SetDefault("WEBHOOK_DISPATCH_RETRIES", 3)
	v.SetDefault("WEBHOOK_DISPATCH_RETRY_DELAY", "5s")

	v.SetDefault("CHECKOUT_SUCCESS_URL", "")
	v.SetDefault("CHECKOUT_CANCEL_URL", "")

	v.SetDefault("ENROLLMENT_STALL_AFTER", "336h")
	v.SetDefault("ENROLLMENT_SWEEP_INTERVAL", "1h")

	v.SetDefault("FOLLOWUP_SCAN_INTERVAL", "5m")
	v.SetDefault("FOLLOWUP_BATCH_SIZE", 50)

	v.SetDefault("BEGINNER_COHORTS_CACHE_TTL", "5m")
	v.SetDefault("COHORT_GENERATE_WEEKS", 12)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
