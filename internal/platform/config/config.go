package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr            string
	Environment     string
	ShutdownTimeout time.Duration

	DatabaseDriver   string
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int32
	DatabaseMinConns int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string

	JWTSecret         string
	TokenTTL          time.Duration
	DataEncryptionKey string

	OrgFile        string
	RulesFile      string
	StuckThreshold time.Duration
	UploadsDir     string

	EmailFrom    string
	EmailEnabled bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool

	RunMigrations      bool
	RunSeed            bool
	MaxBodyBytes       int64
	MaxUploadBytes     int64
	RateLimitPerMinute int
	CORSOrigins        []string
	MetricsEnabled     bool

	IdempotencyTTL        time.Duration
	NotificationRetention time.Duration
	AuditRetention        time.Duration

	LogLevel  string
	LogFormat string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// envNames keeps the plain variable names working next to the HRFLOW_ prefixed ones.
var envNames = map[string]string{
	"app.addr":                   "APP_ADDR",
	"app.env":                    "APP_ENV",
	"database.url":               "DATABASE_URL",
	"auth.jwt_secret":            "JWT_SECRET",
	"crypto.data_encryption_key": "DATA_ENCRYPTION_KEY",
	"redis.addr":                 "REDIS_ADDR",
	"email.from":                 "EMAIL_FROM",
	"email.enabled":              "EMAIL_ENABLED",
	"smtp.host":                  "SMTP_HOST",
	"smtp.port":                  "SMTP_PORT",
	"smtp.user":                  "SMTP_USER",
	"smtp.password":              "SMTP_PASSWORD",
	"smtp.use_tls":               "SMTP_USE_TLS",
	"run_migrations":             "RUN_MIGRATIONS",
	"run_seed":                   "RUN_SEED",
	"http.max_body_bytes":        "MAX_BODY_BYTES",
	"http.rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
	"metrics.enabled":            "METRICS_ENABLED",
	"approval.stuck_threshold":   "STUCK_THRESHOLD",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.shutdown_timeout", "15s")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.sqlite_path", "hrflow.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "hrflow:approvals")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("crypto.data_encryption_key", "")
	v.SetDefault("org.file", "config/org.yaml")
	v.SetDefault("approval.rules_file", "")
	v.SetDefault("approval.stuck_threshold", "24h")
	v.SetDefault("uploads.dir", "data/uploads")
	v.SetDefault("uploads.max_bytes", 24<<20)
	v.SetDefault("email.from", "no-reply@example.com")
	v.SetDefault("email.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.use_tls", true)
	v.SetDefault("run_migrations", true)
	v.SetDefault("run_seed", true)
	v.SetDefault("http.max_body_bytes", 1048576)
	v.SetDefault("http.rate_limit_per_minute", 60)
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("retention.idempotency_keys", "24h")
	v.SetDefault("retention.read_notifications", "720h")
	v.SetDefault("retention.audit_events", "0s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads an optional YAML config file, then the environment. Every key
// can be set as HRFLOW_<SECTION>_<KEY>; the older plain names in envNames
// are honored too.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HRFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range envNames {
		if err := v.BindEnv(key, "HRFLOW_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Addr:               v.GetString("app.addr"),
		Environment:        v.GetString("app.env"),
		ShutdownTimeout:    v.GetDuration("app.shutdown_timeout"),
		DatabaseDriver:     strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:        v.GetString("database.url"),
		SQLitePath:         v.GetString("database.sqlite_path"),
		DatabaseMaxConns:   v.GetInt32("database.max_conns"),
		DatabaseMinConns:   v.GetInt32("database.min_conns"),
		RedisAddr:          v.GetString("redis.addr"),
		RedisPassword:      v.GetString("redis.password"),
		RedisDB:            v.GetInt("redis.db"),
		EventsChannel:      v.GetString("redis.channel"),
		JWTSecret:          v.GetString("auth.jwt_secret"),
		TokenTTL:           v.GetDuration("auth.token_ttl"),
		DataEncryptionKey:  v.GetString("crypto.data_encryption_key"),
		OrgFile:            v.GetString("org.file"),
		RulesFile:          v.GetString("approval.rules_file"),
		StuckThreshold:     v.GetDuration("approval.stuck_threshold"),
		UploadsDir:         v.GetString("uploads.dir"),
		MaxUploadBytes:     v.GetInt64("uploads.max_bytes"),
		EmailFrom:          v.GetString("email.from"),
		EmailEnabled:       v.GetBool("email.enabled"),
		SMTPHost:           v.GetString("smtp.host"),
		SMTPPort:           v.GetInt("smtp.port"),
		SMTPUser:           v.GetString("smtp.user"),
		SMTPPassword:       v.GetString("smtp.password"),
		SMTPUseTLS:         v.GetBool("smtp.use_tls"),
		RunMigrations:      v.GetBool("run_migrations"),
		RunSeed:            v.GetBool("run_seed"),
		MaxBodyBytes:       v.GetInt64("http.max_body_bytes"),
		RateLimitPerMinute: v.GetInt("http.rate_limit_per_minute"),
		CORSOrigins:        splitList(v.GetStringSlice("http.cors_origins")),
		MetricsEnabled:     v.GetBool("metrics.enabled"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),

		IdempotencyTTL:        v.GetDuration("retention.idempotency_keys"),
		NotificationRetention: v.GetDuration("retention.read_notifications"),
		AuditRetention:        v.GetDuration("retention.audit_events"),
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DatabaseDriver))
	}
	if c.StuckThreshold <= 0 {
		errs = append(errs, errors.New("approval.stuck_threshold must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	if c.MaxBodyBytes < 1024 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be at least 1024"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.IdempotencyTTL < 0 || c.NotificationRetention < 0 || c.AuditRetention < 0 {
		errs = append(errs, errors.New("retention durations must not be negative"))
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == "change-me" {
			errs = append(errs, errors.New("JWT_SECRET must be set to a strong value in production"))
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			errs = append(errs, errors.New("DATA_ENCRYPTION_KEY is required in production"))
		}
		if c.EmailEnabled && c.SMTPHost == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when EMAIL_ENABLED is true"))
		}
	}
	return errors.Join(errs...)
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
