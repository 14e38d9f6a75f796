package config

import (
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

	Logger LoggerConfig

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

	HTTP    HTTPConfig
	Email   EmailConfig
	Stripe  StripeConfig
	Discord DiscordConfig
	Worker  WorkerConfig
}

type HTTPConfig struct {
	Addr       string
	AdminToken string
}

type LoggerConfig struct {
	Level string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type DiscordConfig struct {
	BotToken string
	GuildID  string
	BaseURL  string
}

type WorkerConfig struct {
	PollInterval  time.Duration
	StaleTimeout  time.Duration
	PurgeInterval time.Duration
	Retention     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "backoffice"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "backoffice"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		HTTP: HTTPConfig{
			Addr:       getenv("HTTP_ADDR", ":8080"),
			AdminToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "noreply@studioordo.com"),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:       getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
		},
		Discord: DiscordConfig{
			BotToken: strings.TrimSpace(getenv("DISCORD_BOT_TOKEN", "")),
			GuildID:  getenv("DISCORD_GUILD_ID", ""),
			BaseURL:  getenv("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
		},
		Worker: WorkerConfig{
			PollInterval:  getenvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			StaleTimeout:  getenvDuration("WORKER_STALE_TIMEOUT", 10*time.Minute),
			PurgeInterval: getenvDuration("WORKER_PURGE_INTERVAL", time.Hour),
			Retention:     getenvDuration("WORKER_COMPLETED_RETENTION", 7*24*time.Hour),
		},
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
