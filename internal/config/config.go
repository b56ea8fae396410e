package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DevJWTSecret signs tokens when ENV=development and JWT_SECRET is unset.
const DevJWTSecret = "bloodlink-development-secret-change-me"

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWTExpiresIn         time.Duration `mapstructure:"JWT_EXPIRES_IN"`
	DefaultAdminPassword string        `mapstructure:"DEFAULT_ADMIN_PASSWORD"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	KafkaBrokers         []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic           string        `mapstructure:"KAFKA_TOPIC"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ExpirySweepSchedule  string        `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	NearExpiryDays       int           `mapstructure:"NEAR_EXPIRY_DAYS"`
	CriticalThreshold    int           `mapstructure:"CRITICAL_THRESHOLD"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"JWT_SECRET", "JWT_EXPIRES_IN", "DEFAULT_ADMIN_PASSWORD", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "EXPIRY_SWEEP_SCHEDULE", "NEAR_EXPIRY_DAYS", "CRITICAL_THRESHOLD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("DEFAULT_ADMIN_PASSWORD", "admin123")
	v.SetDefault("KAFKA_TOPIC", "bloodlink.blood-units")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("EXPIRY_SWEEP_SCHEDULE", "@daily")
	v.SetDefault("NEAR_EXPIRY_DAYS", 7)
	v.SetDefault("CRITICAL_THRESHOLD", 2)

	// Unmarshal only sees env vars that were bound explicitly.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = DevJWTSecret
	}

	return cfg, nil
}

// splitList normalizes comma-separated env values, which viper may decode as
// a single-element slice.
func splitList(decoded []string, raw string) []string {
	if len(decoded) > 1 {
		return decoded
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SweepEnabled reports whether the periodic expiry sweep should run.
func (c *Config) SweepEnabled() bool {
	s := strings.TrimSpace(strings.ToLower(c.ExpirySweepSchedule))
	return s != "" && s != "off" && s != "disabled"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.JWTSecret == DevJWTSecret {
		return fmt.Errorf("JWT_SECRET must not use the development default in production")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production, got %d", len(c.JWTSecret))
	}
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.JWTExpiresIn)
	}
	if c.NearExpiryDays < 0 {
		return fmt.Errorf("NEAR_EXPIRY_DAYS must not be negative, got %d", c.NearExpiryDays)
	}
	if c.CriticalThreshold < 0 {
		return fmt.Errorf("CRITICAL_THRESHOLD must not be negative, got %d", c.CriticalThreshold)
	}
	if c.SweepEnabled() {
		if _, err := cron.ParseStandard(c.ExpirySweepSchedule); err != nil {
			return fmt.Errorf("EXPIRY_SWEEP_SCHEDULE %q is not a valid cron expression: %w", c.ExpirySweepSchedule, err)
		}
	}
	return nil
}
