// Package config manages vdabridge daemon configuration using koanf/v2.
//
// The daemon config covers the broker link, the fleet directory, publish
// cadences and the admin surfaces. Per-robot descriptors are separate YAML
// files handled by fleet.go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete vdabridge configuration.
type Config struct {
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Fleet     FleetConfig     `koanf:"fleet"`
	Intervals IntervalsConfig `koanf:"intervals"`
	Admin     AdminConfig     `koanf:"admin"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// MQTTConfig holds the fleet-plane broker connection parameters.
type MQTTConfig struct {
	// Host is the broker hostname or IP address.
	Host string `koanf:"host"`

	// Port is the broker TCP port.
	Port int `koanf:"port"`

	// Username and Password are optional broker credentials.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// KeepaliveSecs is the MQTT keepalive interval in seconds.
	KeepaliveSecs int `koanf:"keepalive"`

	// ClientIDPrefix is extended with a random suffix so parallel bridge
	// instances never collide on the broker.
	ClientIDPrefix string `koanf:"client_id_prefix"`

	// TopicPrefix is the leading segment of every VDA topic, e.g.
	// "/uagv/v2" yields "/uagv/v2/{manufacturer}/{serial}/state".
	TopicPrefix string `koanf:"topic_prefix"`

	// Retain marks uplink publishes as retained on the broker.
	Retain bool `koanf:"retain"`
}

// BrokerURL returns the paho broker address for this config.
func (mc MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", mc.Host, mc.Port)
}

// Keepalive returns the keepalive interval as a duration.
func (mc MQTTConfig) Keepalive() time.Duration {
	return time.Duration(mc.KeepaliveSecs) * time.Second
}

// FleetConfig locates the robot descriptor directory and sets the
// controller identity.
type FleetConfig struct {
	// Dir is the directory scanned for per-robot YAML descriptors.
	Dir string `koanf:"dir"`

	// Nickname is the controller identity sent in authority claims.
	// Robots may override it in their descriptor. Empty disables claims.
	Nickname string `koanf:"nickname"`
}

// IntervalsConfig holds the default publish cadence per uplink topic.
// Robots may override these in their descriptor.
type IntervalsConfig struct {
	State         time.Duration `koanf:"state"`
	Visualization time.Duration `koanf:"visualization"`
	Connection    time.Duration `koanf:"connection"`
	Factsheet     time.Duration `koanf:"factsheet"`
}

// AdminConfig holds the admin API listen address.
type AdminConfig struct {
	// Addr is the HTTP listen address for health and REST endpoints.
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// The cadence defaults are the VDA5050 reporting rhythm the fleet manager
// expects: state every second, visualization every two, connection
// heartbeat every five, factsheet every thirty.
func DefaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:           "127.0.0.1",
			Port:           1883,
			KeepaliveSecs:  30,
			ClientIDPrefix: "vdabridge",
			TopicPrefix:    "/uagv/v2",
		},
		Fleet: FleetConfig{
			Dir:      "robot_config",
			Nickname: "vdabridge",
		},
		Intervals: IntervalsConfig{
			State:         1 * time.Second,
			Visualization: 2 * time.Second,
			Connection:    5 * time.Second,
			Factsheet:     30 * time.Second,
		},
		Admin: AdminConfig{
			Addr: ":8088",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for vdabridge configuration.
// Variables are named VDABRIDGE_<section>_<key>, e.g., VDABRIDGE_MQTT_HOST.
const envPrefix = "VDABRIDGE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (VDABRIDGE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	VDABRIDGE_MQTT_HOST     -> mqtt.host
//	VDABRIDGE_MQTT_PORT     -> mqtt.port
//	VDABRIDGE_FLEET_DIR     -> fleet.dir
//	VDABRIDGE_ADMIN_ADDR    -> admin.addr
//	VDABRIDGE_METRICS_ADDR  -> metrics.addr
//	VDABRIDGE_METRICS_PATH  -> metrics.path
//	VDABRIDGE_LOG_LEVEL     -> log.level
//	VDABRIDGE_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// VDABRIDGE_MQTT_HOST -> mqtt.host (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms VDABRIDGE_MQTT_HOST -> mqtt.host.
// Strips the VDABRIDGE_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"mqtt.host":               defaults.MQTT.Host,
		"mqtt.port":               defaults.MQTT.Port,
		"mqtt.keepalive":          defaults.MQTT.KeepaliveSecs,
		"mqtt.client_id_prefix":   defaults.MQTT.ClientIDPrefix,
		"mqtt.topic_prefix":       defaults.MQTT.TopicPrefix,
		"mqtt.retain":             defaults.MQTT.Retain,
		"fleet.dir":               defaults.Fleet.Dir,
		"fleet.nickname":          defaults.Fleet.Nickname,
		"intervals.state":         defaults.Intervals.State.String(),
		"intervals.visualization": defaults.Intervals.Visualization.String(),
		"intervals.connection":    defaults.Intervals.Connection.String(),
		"intervals.factsheet":     defaults.Intervals.Factsheet.String(),
		"admin.addr":              defaults.Admin.Addr,
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyMQTTHost indicates the broker host is empty.
	ErrEmptyMQTTHost = errors.New("mqtt.host must not be empty")

	// ErrInvalidMQTTPort indicates the broker port is out of range.
	ErrInvalidMQTTPort = errors.New("mqtt.port must be in 1..65535")

	// ErrInvalidKeepalive indicates a non-positive keepalive.
	ErrInvalidKeepalive = errors.New("mqtt.keepalive must be >= 1 second")

	// ErrEmptyClientIDPrefix indicates a missing client-id prefix.
	ErrEmptyClientIDPrefix = errors.New("mqtt.client_id_prefix must not be empty")

	// ErrEmptyTopicPrefix indicates a missing topic prefix.
	ErrEmptyTopicPrefix = errors.New("mqtt.topic_prefix must not be empty")

	// ErrEmptyFleetDir indicates a missing fleet descriptor directory.
	ErrEmptyFleetDir = errors.New("fleet.dir must not be empty")

	// ErrInvalidInterval indicates a non-positive publish interval.
	ErrInvalidInterval = errors.New("publish interval must be > 0")

	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.MQTT.Host == "" {
		return ErrEmptyMQTTHost
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		return ErrInvalidMQTTPort
	}
	if cfg.MQTT.KeepaliveSecs < 1 {
		return ErrInvalidKeepalive
	}
	if cfg.MQTT.ClientIDPrefix == "" {
		return ErrEmptyClientIDPrefix
	}
	if cfg.MQTT.TopicPrefix == "" {
		return ErrEmptyTopicPrefix
	}

	if cfg.Fleet.Dir == "" {
		return ErrEmptyFleetDir
	}

	intervals := map[string]time.Duration{
		"intervals.state":         cfg.Intervals.State,
		"intervals.visualization": cfg.Intervals.Visualization,
		"intervals.connection":    cfg.Intervals.Connection,
		"intervals.factsheet":     cfg.Intervals.Factsheet,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s: %w", key, ErrInvalidInterval)
		}
	}

	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
