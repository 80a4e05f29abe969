// Package config loads the twin's runtime configuration from an optional
// YAML file with TWIN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/internal/observability"
	"github.com/signalsfoundry/flight-twin/internal/twin"
	"github.com/signalsfoundry/flight-twin/model"
	"github.com/signalsfoundry/flight-twin/risk"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses values such as "5s" or "1m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Server   ServerConfig                `yaml:"server"`
	Log      LogConfig                   `yaml:"log"`
	Features core.FeatureConfig          `yaml:"features"`
	Risk     RiskConfig                  `yaml:"risk"`
	Planner  core.PlannerConfig          `yaml:"planner"`
	Mission  MissionConfig               `yaml:"mission"`
	Drones   DroneConfig                 `yaml:"drones"`
	MQTT     MQTTConfig                  `yaml:"mqtt"`
	Kafka    KafkaConfig                 `yaml:"kafka"`
	History  HistoryConfig               `yaml:"history"`
	Report   ReportConfig                `yaml:"report"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	HTTPAddr        string   `yaml:"http_addr"`
	GRPCAddr        string   `yaml:"grpc_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RiskConfig is the scorer configuration plus how the server bootstraps
// training when no historical data is supplied.
type RiskConfig struct {
	risk.Config `yaml:",inline"`
	// TrainingSamples synthetic normal samples are drawn at startup to train
	// the initial model. Zero leaves the twin uninitialized until
	// /v1/initialize is called.
	TrainingSamples int `yaml:"training_samples"`
}

type MissionConfig struct {
	HistoryLimit int    `yaml:"history_limit"`
	Window       int    `yaml:"window"`
	AutoReplan   bool   `yaml:"auto_replan"`
	ReplanAt     string `yaml:"replan_at"`
}

type DroneConfig struct {
	CatalogFile string `yaml:"catalog_file"`
	// DroneID selects the airframe the twin flies. Empty uses the reference
	// quad.
	DroneID string `yaml:"drone_id"`
}

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	QoS       byte   `yaml:"qos"`
	QueueSize int    `yaml:"queue_size"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type HistoryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Features: core.DefaultFeatureConfig(),
		Risk: RiskConfig{
			Config:          risk.DefaultConfig(),
			TrainingSamples: 500,
		},
		Planner: core.DefaultPlannerConfig(),
		Mission: MissionConfig{
			HistoryLimit: 10000,
			Window:       50,
			AutoReplan:   true,
			ReplanAt:     model.RiskHigh.String(),
		},
		MQTT: MQTTConfig{
			Topic:     "twin/telemetry",
			ClientID:  "flight-twin",
			QoS:       1,
			QueueSize: 1024,
		},
		Kafka: KafkaConfig{
			Topic: "twin.risk-events",
		},
		Report: ReportConfig{
			OutputDir: "reports",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("TWIN_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("TWIN_GRPC_ADDR", c.Server.GRPCAddr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Risk.Seed = int64(getEnvInt("TWIN_RISK_SEED", int(c.Risk.Seed)))
	c.Risk.Contamination = getEnvFloat("TWIN_RISK_CONTAMINATION", c.Risk.Contamination)
	c.Risk.TrainingSamples = getEnvInt("TWIN_TRAINING_SAMPLES", c.Risk.TrainingSamples)

	c.Mission.HistoryLimit = getEnvInt("TWIN_HISTORY_LIMIT", c.Mission.HistoryLimit)
	c.Mission.ReplanAt = getEnv("TWIN_REPLAN_AT", c.Mission.ReplanAt)

	c.Drones.CatalogFile = getEnv("TWIN_DRONE_CATALOG", c.Drones.CatalogFile)
	c.Drones.DroneID = getEnv("TWIN_DRONE_ID", c.Drones.DroneID)

	c.MQTT.Broker = getEnv("TWIN_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = getEnv("TWIN_MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.ClientID = getEnv("TWIN_MQTT_CLIENT_ID", c.MQTT.ClientID)

	if brokers := getEnv("TWIN_KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			b = strings.TrimSpace(b)
			if b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	c.Kafka.Topic = getEnv("TWIN_KAFKA_TOPIC", c.Kafka.Topic)

	c.History.DatabasePath = getEnv("TWIN_HISTORY_DB", c.History.DatabasePath)
	c.Report.OutputDir = getEnv("TWIN_REPORT_DIR", c.Report.OutputDir)

	c.Tracing.Enabled = getEnvBool("TWIN_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Exporter = strings.ToLower(getEnv("TWIN_TRACING_EXPORTER", c.Tracing.Exporter))
	c.Tracing.ServiceName = getEnv("TWIN_TRACING_SERVICE_NAME", c.Tracing.ServiceName)
	c.Tracing.Endpoint = getEnv("TWIN_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.SampleRatio = getEnvFloat("TWIN_TRACING_SAMPLE_RATIO", c.Tracing.SampleRatio)
}

// Validate checks cross-field constraints. Component configs are validated
// with their own rules.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if err := c.Features.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("features: %w", err))
	}
	if err := c.Planner.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("planner: %w", err))
	}
	if err := c.Risk.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("risk: %w", err))
	}
	if c.Risk.TrainingSamples < 0 {
		errs = append(errs, fmt.Errorf("risk.training_samples must be >= 0, got %d", c.Risk.TrainingSamples))
	}
	if c.Mission.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("mission.history_limit must be >= 0, got %d", c.Mission.HistoryLimit))
	}
	if _, err := c.MonitorConfig(); err != nil {
		errs = append(errs, fmt.Errorf("mission: %w", err))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.Broker != "" && c.MQTT.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("mqtt.queue_size must be >= 1, got %d", c.MQTT.QueueSize))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MonitorConfig assembles the telemetry monitor settings.
func (c *Config) MonitorConfig() (twin.MonitorConfig, error) {
	tier, err := model.ParseRiskTier(c.Mission.ReplanAt)
	if err != nil {
		return twin.MonitorConfig{}, err
	}
	mc := twin.MonitorConfig{
		Window:     c.Mission.Window,
		Features:   c.Features,
		AutoReplan: c.Mission.AutoReplan,
		ReplanAt:   tier,
	}
	return mc, mc.Validate()
}

// LoggingConfig maps the log section onto the logger's options.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, AddSource: true}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
