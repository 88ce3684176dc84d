package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"API_PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	DBTimeout       time.Duration `mapstructure:"DB_TIMEOUT"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	JWTTTL          time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	KVBackend       string        `mapstructure:"KV_BACKEND"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDatabase   string        `mapstructure:"MONGO_DATABASE"`
	OTPTTL          time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts  int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	RegistrationTTL time.Duration `mapstructure:"REGISTRATION_TTL"`
	MailTimeout     time.Duration `mapstructure:"MAIL_TIMEOUT"`
	SMTPHost        string        `mapstructure:"SMTP_HOST"`
	SMTPPort        int           `mapstructure:"SMTP_PORT"`
	SMTPUser        string        `mapstructure:"SMTP_USER"`
	SMTPPass        string        `mapstructure:"SMTP_PASS"`
	SMTPFrom        string        `mapstructure:"SMTP_FROM"`
	TextbeltAPIKey  string        `mapstructure:"TEXTBELT_API_KEY"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	PasswordCost    int           `mapstructure:"PASSWORD_COST"`
}

var envKeys = []string{
	"APP_ENV", "API_PORT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_TIMEOUT",
	"JWT_SECRET", "JWT_TTL", "CORS_ORIGINS",
	"KV_BACKEND", "REDIS_URL", "MONGO_URI", "MONGO_DATABASE",
	"OTP_TTL", "OTP_MAX_ATTEMPTS", "REGISTRATION_TTL", "MAIL_TIMEOUT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
	"TEXTBELT_API_KEY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "PASSWORD_COST",
}

// Load reads the optional .env file and the process environment.
// It does not validate; callers decide which keys their command needs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("API_PORT", "8080")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_TIMEOUT", "5s")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("KV_BACKEND", "memory")
	v.SetDefault("MONGO_DATABASE", "clinic")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("REGISTRATION_TTL", "30m")
	v.SetDefault("MAIL_TIMEOUT", "5s")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("PASSWORD_COST", 12)

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.KVBackend = strings.ToLower(strings.TrimSpace(cfg.KVBackend))

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SMTPConfigured reports whether enough SMTP settings are present to send mail.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Validate checks the settings the API server cannot run without.
func (c *Config) Validate() error {
	missing := []string{}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.IsProduction() {
		if c.SMTPHost == "" {
			missing = append(missing, "SMTP_HOST")
		}
		if c.SMTPUser == "" {
			missing = append(missing, "SMTP_USER")
		}
		if c.SMTPPass == "" {
			missing = append(missing, "SMTP_PASS")
		}
		if c.SMTPFrom == "" {
			missing = append(missing, "SMTP_FROM")
		}
	}
	switch c.KVBackend {
	case "memory":
		if c.IsProduction() {
			return errors.New("KV_BACKEND=memory is not allowed in production")
		}
	case "redis":
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case "mongo":
		if c.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		return fmt.Errorf("KV_BACKEND must be \"memory\", \"redis\" or \"mongo\", got %q", c.KVBackend)
	}

	if len(missing) > 0 {
		return errors.New("missing env: " + strings.Join(missing, ", "))
	}
	if c.OTPTTL <= 0 {
		return errors.New("OTP_TTL must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("OTP_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
