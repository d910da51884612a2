package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	MigrationsFolder string        `env:"MIGRATIONS_FOLDER"`
	ScriptsFile      string        `env:"SCRIPTS_FILE"`
	ScriptTimeout    time.Duration `env:"SCRIPT_TIMEOUT" envDefault:"30s"`
	FlushInterval    time.Duration `env:"VARIABLE_FLUSH_INTERVAL" envDefault:"10s"`
	HealthInterval   time.Duration `env:"HEALTH_INTERVAL" envDefault:"1m"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"192h"`
	CleanupCron      string        `env:"CLEANUP_CRON" envDefault:"CRON_TZ=UTC 0 3 * * *"`

	// Gateways lists the plugin gateways to start.
	Gateways []string `env:"GATEWAYS" envDefault:"tado,lifx,weather,ifttt,amber"`
	// GatewaySettings holds per-gateway settings as gateway.key:value pairs,
	// e.g. tado.username:me,tado.password:secret.
	GatewaySettings map[string]string `env:"GATEWAY_SETTINGS"`

	Mqtt   MqttConfig   `envPrefix:"MQTT_"`
	Influx InfluxConfig `envPrefix:"INFLUX_"`
	Auth   AuthConfig   `envPrefix:"AUTH_"`
}

type MqttConfig struct {
	Host     string `env:"HOST"`
	Username string `env:"USER"`
	Password string `env:"PASS"`
	ClientID string `env:"CLIENT_ID" envDefault:"homehub"`
	Prefix   string `env:"PREFIX" envDefault:"homehub"`
}

type InfluxConfig struct {
	URL    string `env:"URL"`
	Token  string `env:"TOKEN"`
	Org    string `env:"ORG"`
	Bucket string `env:"BUCKET" envDefault:"homehub"`
}

type AuthConfig struct {
	// PasswordHash is the bcrypt hash of the API password.
	PasswordHash string        `env:"PASSWORD_HASH"`
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Enabled reports whether the named gateway is listed in Gateways.
func (c *Config) Enabled(gateway string) bool {
	for _, g := range c.Gateways {
		if strings.EqualFold(strings.TrimSpace(g), gateway) {
			return true
		}
	}
	return false
}

// Settings returns the settings of one gateway with the gateway prefix removed.
func (c *Config) Settings(gateway string) Settings {
	prefix := strings.ToLower(gateway) + "."
	out := Settings{}
	for k, v := range c.GatewaySettings {
		if strings.HasPrefix(strings.ToLower(k), prefix) {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

// Settings is the key/value configuration of a single gateway.
type Settings map[string]string

// Get returns the trimmed value for key, or "" when unset.
func (s Settings) Get(key string) string {
	return strings.TrimSpace(s[key])
}
