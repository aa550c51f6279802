package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete configuration for the bridge process
type Config struct {
	Env     string        `json:"env"`
	Network NetworkConfig `json:"network"`
	Bridge  BridgeConfig  `json:"bridge"`
	Logging LoggingConfig `json:"logging"`
	Events  EventsConfig  `json:"events"`
}

// NetworkConfig contains listener configuration for both transports
type NetworkConfig struct {
	WebSocketAddr   string   `json:"websocket_addr"`
	HTTPAddr        string   `json:"http_addr"`
	AllowedOrigins  []string `json:"allowed_origins"`
	MaxMessageBytes int64    `json:"max_message_bytes"`
}

// BridgeConfig contains capacity limits and maintenance intervals.
// Durations are Go duration strings (e.g. "30s").
type BridgeConfig struct {
	MaxClients          int    `json:"max_clients"`
	HistorySize         int    `json:"history_size"`
	QueueBatchSize      int    `json:"queue_batch_size"`
	MaxQueuedPerClient  int    `json:"max_queued_per_client"`
	MaxQueuedTotal      int    `json:"max_queued_total"`
	RegistrationHistory int    `json:"registration_history"`
	HeartbeatInterval   string `json:"heartbeat_interval"`
	CleanupInterval     string `json:"cleanup_interval"`
	StaleThreshold      string `json:"stale_threshold"`
}

// LoggingConfig selects log level and output format
type LoggingConfig struct {
	Level  string `json:"level"`  // zerolog level name
	Format string `json:"format"` // "console", "json", or empty to follow env
}

// EventsConfig configures optional external event publishing
type EventsConfig struct {
	RedisURL     string `json:"redis_url,omitempty"`
	RedisChannel string `json:"redis_channel,omitempty"`
}

// Load reads configuration from a JSON file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := LoadDefault()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault returns a configuration with sensible defaults
func LoadDefault() *Config {
	return &Config{
		Env: "development",
		Network: NetworkConfig{
			WebSocketAddr:   "0.0.0.0:8765",
			HTTPAddr:        "0.0.0.0:8766",
			AllowedOrigins:  []string{"*"},
			MaxMessageBytes: 1 << 20,
		},
		Bridge: BridgeConfig{
			MaxClients:          1000,
			HistorySize:         500,
			QueueBatchSize:      10,
			MaxQueuedPerClient:  1000,
			MaxQueuedTotal:      100000,
			RegistrationHistory: 10,
			HeartbeatInterval:   "30s",
			CleanupInterval:     "60s",
			StaleThreshold:      "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Events: EventsConfig{
			RedisChannel: "agent-bridge:events",
		},
	}
}

// LoadDotEnv loads a .env file into the process environment if one exists
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides configuration from BRIDGE_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("BRIDGE_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("BRIDGE_WS_ADDR"); v != "" {
		c.Network.WebSocketAddr = v
	}
	if v := os.Getenv("BRIDGE_HTTP_ADDR"); v != "" {
		c.Network.HTTPAddr = v
	}
	if v := os.Getenv("BRIDGE_ALLOWED_ORIGINS"); v != "" {
		c.Network.AllowedOrigins = splitList(v)
	}
	if err := envInt("BRIDGE_MAX_CLIENTS", &c.Bridge.MaxClients); err != nil {
		return err
	}
	if err := envInt("BRIDGE_HISTORY_SIZE", &c.Bridge.HistorySize); err != nil {
		return err
	}
	if v := os.Getenv("BRIDGE_HEARTBEAT_INTERVAL"); v != "" {
		c.Bridge.HeartbeatInterval = v
	}
	if v := os.Getenv("BRIDGE_STALE_THRESHOLD"); v != "" {
		c.Bridge.StaleThreshold = v
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BRIDGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("BRIDGE_REDIS_URL"); v != "" {
		c.Events.RedisURL = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var result []string
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			result = append(result, entry)
		}
	}
	return result
}

// Validate rejects configurations the bridge cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Network.WebSocketAddr == "" {
		errs = append(errs, errors.New("network.websocket_addr is required"))
	}
	if c.Network.HTTPAddr == "" {
		errs = append(errs, errors.New("network.http_addr is required"))
	}
	if c.Network.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("network.max_message_bytes must be positive"))
	}

	for name, v := range map[string]int{
		"bridge.max_clients":           c.Bridge.MaxClients,
		"bridge.history_size":          c.Bridge.HistorySize,
		"bridge.queue_batch_size":      c.Bridge.QueueBatchSize,
		"bridge.max_queued_per_client": c.Bridge.MaxQueuedPerClient,
		"bridge.max_queued_total":      c.Bridge.MaxQueuedTotal,
		"bridge.registration_history":  c.Bridge.RegistrationHistory,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	for name, v := range map[string]string{
		"bridge.heartbeat_interval": c.Bridge.HeartbeatInterval,
		"bridge.cleanup_interval":   c.Bridge.CleanupInterval,
		"bridge.stale_threshold":    c.Bridge.StaleThreshold,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, v))
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LogFormat returns the configured log format. When unset, development
// logs to the console and every other env logs JSON.
func (c *Config) LogFormat() string {
	if c.Logging.Format != "" {
		return c.Logging.Format
	}
	if c.IsDevelopment() {
		return "console"
	}
	return "json"
}

// HeartbeatInterval returns the parsed heartbeat interval
func (c *Config) HeartbeatInterval() time.Duration {
	return ParseDuration(c.Bridge.HeartbeatInterval, 30*time.Second)
}

// CleanupInterval returns the parsed cleanup interval
func (c *Config) CleanupInterval() time.Duration {
	return ParseDuration(c.Bridge.CleanupInterval, 60*time.Second)
}

// StaleThreshold returns the parsed staleness threshold
func (c *Config) StaleThreshold() time.Duration {
	return ParseDuration(c.Bridge.StaleThreshold, 5*time.Minute)
}

// ParseDuration parses a duration string, returning default if empty or invalid
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
