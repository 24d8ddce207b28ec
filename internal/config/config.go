package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// ConnString renders the pgx connection URL.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type DiscordConfig struct {
	Token         string `yaml:"token"`
	ClientID      string `yaml:"client_id"`
	NotifyChannel string `yaml:"notify_channel"`
}

// Enabled reports whether the Discord console should be started.
func (d DiscordConfig) Enabled() bool {
	return d.Token != "" && d.ClientID != ""
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	PresenceTopic  string `yaml:"presence_topic"`
	PositionPrefix string `yaml:"position_prefix"`
}

type TrackingConfig struct {
	// Source is "mqtt" or "sim".
	Source         string        `yaml:"source"`
	DeviceID       string        `yaml:"device_id"`
	ThresholdM     float64       `yaml:"threshold_meters"`
	Timeout        time.Duration `yaml:"timeout"`
	InsertAttempts int           `yaml:"insert_attempts"`
	SimInterval    time.Duration `yaml:"sim_interval"`
	SimLatitude    float64       `yaml:"sim_latitude"`
	SimLongitude   float64       `yaml:"sim_longitude"`
}

type AgentConfig struct {
	StatePath   string        `yaml:"state_path"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type AuthConfig struct {
	MasterAdminEmail string `yaml:"master_admin_email"`
	MasterAdminCode  string `yaml:"master_admin_code"`
}

type APIConfig struct {
	Addr         string        `yaml:"addr"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Tracking TrackingConfig `yaml:"tracking"`
	Agent    AgentConfig    `yaml:"agent"`
	Auth     AuthConfig     `yaml:"auth"`
	API      APIConfig      `yaml:"api"`
}

// Load reads the YAML file at path, substituting ${VAR} placeholders with
// environment values before parsing.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment placeholders in data and decodes it.
func Parse(data []byte) (*Config, error) {
	content := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// DB_PORT may be set without a placeholder in the file
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT value: %w", err)
		}
		cfg.Database.Port = port
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func expandEnv(content string) string {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		placeholder := "${" + pair[0] + "}"
		content = strings.ReplaceAll(content, placeholder, pair[1])
	}
	return content
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.MQTT.PresenceTopic == "" {
		c.MQTT.PresenceTopic = "timeclock/presence/online-users"
	}
	if c.MQTT.PositionPrefix == "" {
		c.MQTT.PositionPrefix = "timeclock/positions"
	}
	if c.Tracking.Source == "" {
		c.Tracking.Source = "mqtt"
	}
	if c.Tracking.ThresholdM <= 0 {
		c.Tracking.ThresholdM = 10
	}
	if c.Tracking.Timeout <= 0 {
		c.Tracking.Timeout = 10 * time.Second
	}
	if c.Tracking.InsertAttempts <= 0 {
		c.Tracking.InsertAttempts = 1
	}
	if c.Tracking.SimInterval <= 0 {
		c.Tracking.SimInterval = 5 * time.Second
	}
	if c.Agent.StatePath == "" {
		c.Agent.StatePath = "data/timeclock-agent.db"
	}
	if c.Agent.IdleTimeout <= 0 {
		c.Agent.IdleTimeout = 20 * time.Second
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.TokenTTL <= 0 {
		c.API.TokenTTL = 12 * time.Hour
	}
	c.API.PollInterval = ClampPollInterval(c.API.PollInterval)
}

// ClampPollInterval keeps admin view polling between 5 and 20 seconds.
func ClampPollInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return 10 * time.Second
	case d < 5*time.Second:
		return 5 * time.Second
	case d > 20*time.Second:
		return 20 * time.Second
	}
	return d
}
