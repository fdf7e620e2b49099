// Package config loads the spectrum manager configuration from built-in
// defaults, an optional YAML file and SPECTRUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// ServerConfig holds listener addresses. An empty address disables that listener.
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"` // empty serves /metrics on the HTTP listener
}

// SimulationConfig holds the initial operator settings.
type SimulationConfig struct {
	Bands           int    `yaml:"bands"`
	Environment     string `yaml:"environment"`
	AutoRefresh     bool   `yaml:"auto_refresh"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Seed            uint64 `yaml:"seed"` // 0 seeds from the clock
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MQTTConfig controls publishing of cycles to a broker.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Format      string `yaml:"format"` // json | proto
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
		Simulation: SimulationConfig{
			Bands:           model.DefaultBandCount,
			Environment:     string(model.Urban),
			AutoRefresh:     false,
			IntervalSeconds: int(model.DefaultInterval / time.Second),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 10,
		},
		Tracing: TracingConfig{
			ServiceName: "spectrum-manager",
			Exporter:    "stdout",
			SampleRatio: 1.0,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "spectrum",
			Format:      "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPECTRUM_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v, ok := os.LookupEnv("SPECTRUM_GRPC_ADDR"); ok {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("SPECTRUM_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("SPECTRUM_ENVIRONMENT"); v != "" {
		cfg.Simulation.Environment = v
	}
	if v := os.Getenv("SPECTRUM_AUTO_REFRESH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Simulation.AutoRefresh = b
		}
	}
	if v := os.Getenv("SPECTRUM_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SPECTRUM_BANDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Bands = n
		}
	}
	if v := os.Getenv("SPECTRUM_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SPECTRUM_TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("SPECTRUM_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("SPECTRUM_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	cfg.Logging = fromLogging(logging.ConfigFromEnv(cfg.Logging.toLogging()))
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Simulation.Bands <= 0 {
		return fmt.Errorf("%w: simulation.bands must be positive, got %d", ErrInvalidConfig, c.Simulation.Bands)
	}
	if _, err := c.Settings(); err != nil {
		return fmt.Errorf("%w: simulation: %v", ErrInvalidConfig, err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio %v outside [0, 1]", ErrInvalidConfig, c.Tracing.SampleRatio)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("%w: unsupported tracing exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalidConfig)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.MQTT.QoS)
		}
		switch strings.ToLower(c.MQTT.Format) {
		case "", "json", "proto":
		default:
			return fmt.Errorf("%w: mqtt.format must be json or proto, got %q", ErrInvalidConfig, c.MQTT.Format)
		}
	}
	return nil
}

// Settings converts the simulation section into operator settings.
func (c *Config) Settings() (model.Settings, error) {
	env, err := model.ParseEnvironment(c.Simulation.Environment)
	if err != nil {
		return model.Settings{}, err
	}
	s := model.Settings{
		Environment: env,
		AutoRefresh: c.Simulation.AutoRefresh,
		Interval:    time.Duration(c.Simulation.IntervalSeconds) * time.Second,
	}
	if err := s.Validate(); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	return c.Logging.toLogging()
}

func (l LoggingConfig) toLogging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

func fromLogging(l logging.Config) LoggingConfig {
	return LoggingConfig{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}
