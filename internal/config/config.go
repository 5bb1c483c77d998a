package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort        int
	CookieSecure   bool
	AllowedOrigins []string
	TrustedProxies []string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// MigrationsPath switches schema management from AutoMigrate to SQL
	// migrations when set.
	MigrationsPath string
	// RedisURL holds guard state. Empty keeps it in memory.
	RedisURL string

	// Access configuration
	AdminSecret         string
	ViewerSecret        string
	LockoutSeconds      int
	HeartbeatSeconds    int
	ClientIdleMinutes   int
	StaleSessionMinutes int
	// MaxClients bounds the client guards held in memory.
	MaxClients int

	// GeoIPURL is an ipapi compatible endpoint. Empty disables lookups.
	GeoIPURL string

	// Kafka mirror of the change feed. No brokers disables it.
	KafkaBrokers []string
	KafkaTopic   string

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
	AlertEmail   string

	// Notification configuration
	TelegramBotToken         string
	TelegramChatID           string
	TelegramAllowedUsernames []string

	// Receipt configuration
	TaxRate     float64
	CompanyName string
}

func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutSeconds) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c *Config) ClientIdleTimeout() time.Duration {
	return time.Duration(c.ClientIdleMinutes) * time.Minute
}

func (c *Config) StaleSessionAfter() time.Duration {
	return time.Duration(c.StaleSessionMinutes) * time.Minute
}

// EmailEnabled reports whether SMTP alerts can be sent.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPSender != ""
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "campaigndesk"),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", ""),
		RedisURL:         getEnv("REDIS_URL", ""),

		AdminSecret:         getEnv("ADMIN_SECRET", ""),
		ViewerSecret:        getEnv("VIEWER_SECRET", ""),
		LockoutSeconds:      getEnvAsInt("LOCKOUT_SECONDS", 120),
		HeartbeatSeconds:    getEnvAsInt("HEARTBEAT_SECONDS", 30),
		ClientIdleMinutes:   getEnvAsInt("CLIENT_IDLE_MINUTES", 60),
		StaleSessionMinutes: getEnvAsInt("STALE_SESSION_MINUTES", 30),
		MaxClients:          getEnvAsInt("MAX_CLIENTS", 10000),

		GeoIPURL: getEnv("GEOIP_URL", "https://ipapi.co"),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "campaigndesk.changes"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),
		AlertEmail:   getEnv("ALERT_EMAIL", ""),

		TelegramBotToken:         getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:           getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAllowedUsernames: getEnvAsList("TELEGRAM_ALLOWED_USERNAMES", nil),

		TaxRate:     getEnvAsFloat("TAX_RATE", 0.18),
		CompanyName: getEnv("COMPANY_NAME", ""),

		APIPort:        getEnvAsInt("API_PORT", 8080),
		CookieSecure:   getEnvAsBool("COOKIE_SECURE", true),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required")
	}

	if c.ViewerSecret == "" {
		return fmt.Errorf("VIEWER_SECRET is required")
	}

	// Equal secrets would make the role of a login ambiguous.
	if c.AdminSecret == c.ViewerSecret {
		return fmt.Errorf("ADMIN_SECRET and VIEWER_SECRET must differ")
	}

	if c.LockoutSeconds <= 0 {
		return fmt.Errorf("LOCKOUT_SECONDS must be positive")
	}

	if c.HeartbeatSeconds <= 0 {
		return fmt.Errorf("HEARTBEAT_SECONDS must be positive")
	}

	if c.StaleSessionMinutes <= 0 {
		return fmt.Errorf("STALE_SESSION_MINUTES must be positive")
	}

	if c.MaxClients <= 0 {
		return fmt.Errorf("MAX_CLIENTS must be positive")
	}

	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("TAX_RATE must be in [0, 1), got %v", c.TaxRate)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(name string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
