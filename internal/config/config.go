package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Lifecycle    LifecycleConfig
	Sweep        SweepConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig selects notification sinks.
type NotificationConfig struct {
	EmailFrom          string
	WebhookURL         string
	WebhookTimeoutSec  int
	AlertChannel       string
	RedisPublish       bool
	RedisChannelPrefix string
}

// SLAConfig holds the plan tier policy table.
type SLAConfig struct {
	PlanHours          map[string]int
	DefaultPlan        string
	WarningWindowHours int
}

// LifecycleConfig tunes ticket lifecycle rules.
type LifecycleConfig struct {
	RatingWindowHours int
}

// SweepConfig configures scheduled sweeps.
type SweepConfig struct {
	Enabled               bool
	Timezone              string
	AutoCloseCron         string
	SLAWarningCron        string
	ReminderCron          string
	RollupCron            string
	AutoCloseAfterHours   int
	ReminderAfterHours    int
	ReminderThrottleHours int
	BatchSize             int
	ReconcileHours        int
	LockTTLSeconds        int
	RetryMaxTries         int
	SLAWarningDedup       bool
}

// DefaultPlanHours is the built-in response window table.
const DefaultPlanHours = "standard:24,professional:4,enterprise:1"

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	planHours, err := ParsePlanHours(getEnv("SLA_PLAN_HOURS", DefaultPlanHours))
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_PLAN_HOURS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:          getEnv("NOTIFY_EMAIL_FROM", "support@helpdeskpro.com"),
			WebhookURL:         getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSec:  getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 5),
			AlertChannel:       getEnv("NOTIFY_ALERT_CHANNEL", "#support-tickets"),
			RedisPublish:       getEnvAsBool("NOTIFY_REDIS_PUBLISH", false),
			RedisChannelPrefix: getEnv("NOTIFY_REDIS_CHANNEL_PREFIX", "helpdesk:notifications"),
		},
		SLA: SLAConfig{
			PlanHours:          planHours,
			DefaultPlan:        getEnv("SLA_DEFAULT_PLAN", "standard"),
			WarningWindowHours: getEnvAsInt("SLA_WARNING_WINDOW_HOURS", 4),
		},
		Lifecycle: LifecycleConfig{
			RatingWindowHours: getEnvAsInt("TICKET_RATING_WINDOW_HOURS", 168),
		},
		Sweep: SweepConfig{
			Enabled:               getEnvAsBool("SWEEP_ENABLED", true),
			Timezone:              getEnv("SWEEP_TIMEZONE", "UTC"),
			AutoCloseCron:         getEnv("SWEEP_AUTO_CLOSE_CRON", "0 2 * * *"),
			SLAWarningCron:        getEnv("SWEEP_SLA_WARNING_CRON", "0 */4 * * *"),
			ReminderCron:          getEnv("SWEEP_REMINDER_CRON", "0 9 * * *"),
			RollupCron:            getEnv("SWEEP_ROLLUP_CRON", "0 23 * * *"),
			AutoCloseAfterHours:   getEnvAsInt("SWEEP_AUTO_CLOSE_AFTER_HOURS", 168),
			ReminderAfterHours:    getEnvAsInt("SWEEP_REMINDER_AFTER_HOURS", 24),
			ReminderThrottleHours: getEnvAsInt("SWEEP_REMINDER_THROTTLE_HOURS", 48),
			BatchSize:             getEnvAsInt("SWEEP_BATCH_SIZE", 500),
			ReconcileHours:        getEnvAsInt("SWEEP_METRICS_RECONCILE_HOURS", 72),
			LockTTLSeconds:        getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 300),
			RetryMaxTries:         getEnvAsInt("SWEEP_RETRY_MAX_TRIES", 3),
			SLAWarningDedup:       getEnvAsBool("SWEEP_SLA_WARNING_DEDUP", false),
		},
	}

	if _, ok := cfg.SLA.PlanHours[cfg.SLA.DefaultPlan]; !ok {
		return nil, fmt.Errorf("SLA_DEFAULT_PLAN %q missing from SLA_PLAN_HOURS", cfg.SLA.DefaultPlan)
	}
	if _, err := time.LoadLocation(cfg.Sweep.Timezone); err != nil {
		return nil, fmt.Errorf("invalid SWEEP_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// ParsePlanHours parses "tier:hours,tier:hours" into a policy table.
func ParsePlanHours(raw string) (map[string]int, error) {
	table := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tier, hoursStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected tier:hours", part)
		}
		tier = strings.ToLower(strings.TrimSpace(tier))
		hours, err := strconv.Atoi(strings.TrimSpace(hoursStr))
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("entry %q: hours must be a positive integer", part)
		}
		table[tier] = hours
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("no plan tiers configured")
	}
	return table, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// WarningWindow returns the SLA warning window.
func (s SLAConfig) WarningWindow() time.Duration {
	return time.Duration(s.WarningWindowHours) * time.Hour
}

// RatingWindow returns how long after closure a rating may be attached.
func (l LifecycleConfig) RatingWindow() time.Duration {
	return time.Duration(l.RatingWindowHours) * time.Hour
}

// Location returns the timezone sweeps and rollup windows run in.
func (s SweepConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockTTL returns how long a sweep lock is held.
func (s SweepConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
