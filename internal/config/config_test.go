package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "admin")
	t.Setenv("VIEWER_SECRET", "viewer")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.LockoutDuration())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 0.18, cfg.TaxRate)
	assert.Equal(t, 10000, cfg.MaxClients)
	assert.True(t, cfg.CookieSecure)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ADMIN_SECRET", "admin")
	t.Setenv("VIEWER_SECRET", "viewer")
	t.Setenv("LOCKOUT_SECONDS", "300")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("TELEGRAM_ALLOWED_USERNAMES", "@ops,owner")
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("HEARTBEAT_SECONDS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.LockoutDuration())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"@ops", "owner"}, cfg.TelegramAllowedUsernames)
	assert.Equal(t, 0.2, cfg.TaxRate)
	assert.False(t, cfg.CookieSecure)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AdminSecret:         "admin",
			ViewerSecret:        "viewer",
			LockoutSeconds:      120,
			HeartbeatSeconds:    30,
			StaleSessionMinutes: 30,
			MaxClients:          100,
			TaxRate:             0.18,
			PostgresDB:          "campaigndesk",
			PostgresHost:        "localhost",
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"ADMIN_SECRET is required":  func(c *Config) { c.AdminSecret = "" },
		"VIEWER_SECRET is required": func(c *Config) { c.ViewerSecret = "" },
		"must differ":               func(c *Config) { c.ViewerSecret = c.AdminSecret },
		"LOCKOUT_SECONDS":           func(c *Config) { c.LockoutSeconds = 0 },
		"TAX_RATE":                  func(c *Config) { c.TaxRate = 1.5 },
		"MAX_CLIENTS":               func(c *Config) { c.MaxClients = 0 },
		"KAFKA_TOPIC":               func(c *Config) { c.KafkaBrokers = []string{"k:9092"} },
	}
	for want, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		assert.ErrorContains(t, cfg.Validate(), want)
	}
}
