package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// AppBaseURL is the public origin used to build checkout redirect links.
	AppBaseURL    string
	AuthJWTSecret string

	// SeedUserID, when set outside production, is inserted into users at startup.
	SeedUserID    string
	SeedUserEmail string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Xendit    XenditConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

type XenditConfig struct {
	BaseURL              string
	SecretKey            string
	WebhookToken         string
	WebhookSigningSecret string
	Timeout              time.Duration
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CheckoutUserRate       float64
	CheckoutUserBurst      int
	CheckoutLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "nclexprep"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AppBaseURL:    strings.TrimRight(strings.TrimSpace(getenv("APP_BASE_URL", "")), "/"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		SeedUserID:    strings.TrimSpace(getenv("SEED_USER_ID", "")),
		SeedUserEmail: strings.TrimSpace(getenv("SEED_USER_EMAIL", "student@nclexprep.local")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "nclexprep"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Xendit: XenditConfig{
			BaseURL:              strings.TrimRight(getenv("XENDIT_BASE_URL", "https://api.xendit.co"), "/"),
			SecretKey:            strings.TrimSpace(getenv("XENDIT_SECRET_KEY", "")),
			WebhookToken:         strings.TrimSpace(getenv("XENDIT_WEBHOOK_TOKEN", "")),
			WebhookSigningSecret: strings.TrimSpace(getenv("XENDIT_WEBHOOK_SIGNING_SECRET", "")),
			Timeout:              getenvDuration("XENDIT_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "NCLEX Prep <no-reply@nclexprep.local>"),
		},
		RateLimit: RateLimitConfig{
			Enabled:                getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:              strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:          getenv("REDIS_PASSWORD", ""),
			RedisDB:                getenvInt("REDIS_DB", 0),
			CheckoutUserRate:       getenvFloat("CHECKOUT_USER_RATE", 0.2),
			CheckoutUserBurst:      getenvInt("CHECKOUT_USER_BURST", 3),
			CheckoutLockTTLSeconds: getenvInt("CHECKOUT_LOCK_TTL_SECONDS", 30),
		},
	}

	return cfg
}

// Validate reports missing or malformed required settings.
func (c Config) Validate() error {
	var errs []error
	if c.AppBaseURL == "" {
		errs = append(errs, errors.New("APP_BASE_URL is required"))
	} else if u, err := url.ParseRequestURI(c.AppBaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_BASE_URL is invalid: %q", c.AppBaseURL))
	}
	if c.Xendit.SecretKey == "" {
		errs = append(errs, errors.New("XENDIT_SECRET_KEY is required"))
	}
	if c.Xendit.WebhookToken == "" {
		errs = append(errs, errors.New("XENDIT_WEBHOOK_TOKEN is required"))
	}
	if c.Xendit.BaseURL == "" {
		errs = append(errs, errors.New("XENDIT_BASE_URL is required"))
	}
	if c.AuthJWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when RATE_LIMIT_ENABLED"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
