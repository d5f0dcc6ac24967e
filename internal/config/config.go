package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type GeofenceConfig struct {
	ZoneCacheTTL time.Duration
}

type ReconcileConfig struct {
	BatchSize              int
	MaxAge                 time.Duration
	OvertimeDailyThreshold float64
}

type RetentionConfig struct {
	Days             int
	OrphanZoneMinAge time.Duration
}

type GeneratorConfig struct {
	WorkdayStartTime string
}

type Config struct {
	Environment string
	Timezone    *time.Location
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	NATS        NATSConfig
	Geofence    GeofenceConfig
	Reconcile   ReconcileConfig
	Retention   RetentionConfig
	Generator   GeneratorConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_TIMEZONE", "UTC")
	v.SetDefault("NATS_SUBJECT_PREFIX", "notifications.timesheets")
	v.SetDefault("ZONE_CACHE_TTL", time.Minute)
	v.SetDefault("RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("RECONCILE_MAX_AGE", 24*time.Hour)
	v.SetDefault("OVERTIME_DAILY_THRESHOLD", 8)
	v.SetDefault("RETENTION_DAYS", 90)
	v.SetDefault("ORPHAN_ZONE_MIN_AGE", 30*24*time.Hour)
	v.SetDefault("WORKDAY_START_TIME", "08:00")

	_ = v.ReadInConfig()

	loc, err := time.LoadLocation(v.GetString("APP_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		Timezone:    loc,
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
		Geofence: GeofenceConfig{
			ZoneCacheTTL: v.GetDuration("ZONE_CACHE_TTL"),
		},
		Reconcile: ReconcileConfig{
			BatchSize:              v.GetInt("RECONCILE_BATCH_SIZE"),
			MaxAge:                 v.GetDuration("RECONCILE_MAX_AGE"),
			OvertimeDailyThreshold: v.GetFloat64("OVERTIME_DAILY_THRESHOLD"),
		},
		Retention: RetentionConfig{
			Days:             v.GetInt("RETENTION_DAYS"),
			OrphanZoneMinAge: v.GetDuration("ORPHAN_ZONE_MIN_AGE"),
		},
		Generator: GeneratorConfig{
			WorkdayStartTime: v.GetString("WORKDAY_START_TIME"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be positive")
	}
	if cfg.Retention.Days < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative")
	}
	if _, err := time.Parse("15:04", cfg.Generator.WorkdayStartTime); err != nil {
		return fmt.Errorf("WORKDAY_START_TIME must be HH:MM: %w", err)
	}
	return nil
}

// RequireHTTP checks the settings only the API server needs.
func (c *Config) RequireHTTP() error {
	if c.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	return nil
}
