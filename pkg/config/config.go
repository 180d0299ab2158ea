package config

import (
	"errors"
	"io/fs"
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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Applications ApplicationsConfig
	Statistics   StatisticsConfig
	Alerts       AlertsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ApplicationsConfig bounds what a single application may carry.
type ApplicationsConfig struct {
	MinAppointmentDuration    time.Duration
	MaxAppointmentDuration    time.Duration
	MaxAppointmentDescription int
	MaxRejectionReasonLength  int
	MaxResponseTextLength     int
	MaxDescriptiveFieldLength int
	MaxNotesLength            int
}

// StatisticsConfig controls the periodic rejection fold.
type StatisticsConfig struct {
	Enabled   bool
	Schedule  string
	LockTTL   time.Duration
	CacheTTL  time.Duration
	// CommitLag holds the fold window back from now so events stamped
	// before their transaction committed are not skipped.
	CommitLag time.Duration
}

// AlertsConfig controls the upcoming-appointment alert sweep.
type AlertsConfig struct {
	Enabled    bool
	Schedule   string
	Threshold  time.Duration
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Applications = ApplicationsConfig{
		MinAppointmentDuration:    parseDuration(v.GetString("APPLICATIONS_MIN_APPOINTMENT_DURATION"), 5*time.Minute),
		MaxAppointmentDuration:    parseDuration(v.GetString("APPLICATIONS_MAX_APPOINTMENT_DURATION"), 8*time.Hour),
		MaxAppointmentDescription: positiveInt(v.GetInt("APPLICATIONS_MAX_APPOINTMENT_DESCRIPTION"), 200),
		MaxRejectionReasonLength:  positiveInt(v.GetInt("APPLICATIONS_MAX_REJECTION_REASON"), 500),
		MaxResponseTextLength:     positiveInt(v.GetInt("APPLICATIONS_MAX_RESPONSE_TEXT"), 2000),
		MaxDescriptiveFieldLength: positiveInt(v.GetInt("APPLICATIONS_MAX_FIELD_LENGTH"), 250),
		MaxNotesLength:            positiveInt(v.GetInt("APPLICATIONS_MAX_NOTES"), 5000),
	}

	cfg.Statistics = StatisticsConfig{
		Enabled:   v.GetBool("ENABLE_STATISTICS"),
		Schedule:  v.GetString("STATISTICS_SCHEDULE"),
		LockTTL:   parseDuration(v.GetString("STATISTICS_LOCK_TTL"), 5*time.Minute),
		CacheTTL:  parseDuration(v.GetString("STATISTICS_CACHE_TTL"), time.Minute),
		CommitLag: parseDuration(v.GetString("STATISTICS_COMMIT_LAG"), 30*time.Second),
	}

	cfg.Alerts = AlertsConfig{
		Enabled:    v.GetBool("ENABLE_ALERTS"),
		Schedule:   v.GetString("ALERTS_SCHEDULE"),
		Threshold:  parseDuration(v.GetString("ALERTS_THRESHOLD"), 30*time.Minute),
		Workers:    positiveInt(v.GetInt("ALERTS_WORKERS"), 1),
		MaxRetries: positiveInt(v.GetInt("ALERTS_MAX_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("ALERTS_RETRY_DELAY"), 10*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "applications")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("APPLICATIONS_MIN_APPOINTMENT_DURATION", "5m")
	v.SetDefault("APPLICATIONS_MAX_APPOINTMENT_DURATION", "8h")
	v.SetDefault("APPLICATIONS_MAX_APPOINTMENT_DESCRIPTION", 200)
	v.SetDefault("APPLICATIONS_MAX_REJECTION_REASON", 500)
	v.SetDefault("APPLICATIONS_MAX_RESPONSE_TEXT", 2000)
	v.SetDefault("APPLICATIONS_MAX_FIELD_LENGTH", 250)
	v.SetDefault("APPLICATIONS_MAX_NOTES", 5000)

	v.SetDefault("ENABLE_STATISTICS", true)
	v.SetDefault("STATISTICS_SCHEDULE", "@every 5m")
	v.SetDefault("STATISTICS_LOCK_TTL", "5m")
	v.SetDefault("STATISTICS_CACHE_TTL", "1m")
	v.SetDefault("STATISTICS_COMMIT_LAG", "30s")

	v.SetDefault("ENABLE_ALERTS", true)
	v.SetDefault("ALERTS_SCHEDULE", "@every 1m")
	v.SetDefault("ALERTS_THRESHOLD", "30m")
	v.SetDefault("ALERTS_WORKERS", 1)
	v.SetDefault("ALERTS_MAX_RETRIES", 3)
	v.SetDefault("ALERTS_RETRY_DELAY", "10s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
