package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"signal-streamer/src/models"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// unsetKey is the placeholder deployments use when no market-data key is provisioned.
const unsetKey = "unset"

var validIntervals = map[string]bool{"1s": true, "1m": true, "1h": true, "1d": true}

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// envOverlay holds the secrets and switches that come from the environment.
type envOverlay struct {
	DatabentoKey  string   `envconfig:"DATABENTO_KEY"`
	UseSimulation *bool    `envconfig:"USE_SIMULATION"`
	AccountID     string   `envconfig:"EXECUTION_ACCOUNT_ID"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	LogLevel      string   `envconfig:"LOG_LEVEL"`
}

// -----------------------------------------------------------------------------

// NewConfig creates a Config from a YAML file, overlaid with the environment
// (and an optional .env file next to the process).
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Environment overlay
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// LoadDotEnv loads path into the process environment when it exists. Values
// already set in the environment win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file '%s': %w", path, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyEnv overlays environment variables on top of the file values.
func (c *Config) ApplyEnv() error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.DatabentoKey != "" {
		c.MarketData.APIKey = env.DatabentoKey
	}
	if env.UseSimulation != nil {
		c.MarketData.UseSimulation = *env.UseSimulation
	}
	if env.AccountID != "" {
		c.Execution.AccountID = env.AccountID
	}
	if len(env.KafkaBrokers) > 0 {
		c.Execution.Kafka.Brokers = env.KafkaBrokers
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "signal-streamer"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}

	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 30
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "signal-streamer"
	}

	md := &c.MarketData
	if md.HistoricalURL == "" {
		md.HistoricalURL = "https://hist.databento.com"
	}
	if md.DefaultDataset == "" {
		md.DefaultDataset = "XNAS.ITCH"
	}
	if md.LiveSchema == "" {
		md.LiveSchema = "ohlcv-1m"
	}
	if len(md.Venues) == 0 {
		md.Venues = []models.MVenueConfig{
			{
				Dataset:    "GLBX.MDP3",
				Roots:      []string{"ES", "NQ", "CL", "GC", "RTY", "MNQ", "MES", "BTC"},
				PriceScale: 1e9,
				Calendar:   "xcme",
			},
			{
				Dataset:    "XNAS.ITCH",
				PriceScale: 1,
				Calendar:   "xnys",
			},
		}
	}
	for i := range md.Venues {
		if md.Venues[i].PriceScale == 0 {
			md.Venues[i].PriceScale = 1
		}
	}
	if md.History.Interval == "" {
		md.History.Interval = "1m"
	}
	if md.History.LookbackDays == 0 {
		md.History.LookbackDays = 2
	}
	if md.History.SafetyLagMinutes == 0 {
		md.History.SafetyLagMinutes = 15
	}
	if md.History.FallbackBarCount == 0 {
		md.History.FallbackBarCount = 100
	}
	if md.History.DefaultCalendarID == "" {
		md.History.DefaultCalendarID = "xnys"
	}

	if c.Simulation.StartPrice == 0 {
		c.Simulation.StartPrice = 150.0
	}
	if c.Simulation.TickIntervalMs == 0 {
		c.Simulation.TickIntervalMs = 1000
	}

	if c.Strategy.ATRPeriod == 0 {
		c.Strategy.ATRPeriod = 10
	}
	if c.Strategy.Multiplier == 0 {
		c.Strategy.Multiplier = 1.0
	}

	if len(c.Execution.Sinks) == 0 {
		c.Execution.Sinks = []string{"paper"}
	}
	if c.Execution.Quantity == 0 {
		c.Execution.Quantity = 1
	}
	if c.Execution.QueueSize == 0 {
		c.Execution.QueueSize = 256
	}
	if c.Execution.Journal.DBType == "" {
		c.Execution.Journal.DBType = "none"
	}
	if c.Execution.Kafka.Topic == "" {
		c.Execution.Kafka.Topic = "signals.utbot"
	}
}

// -----------------------------------------------------------------------------

// HasLiveCredentials reports whether a real market-data key is configured.
func (c *Config) HasLiveCredentials() bool {
	key := strings.TrimSpace(c.MarketData.APIKey)
	return key != "" && key != unsetKey
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Market data
	md := c.MarketData
	if md.DefaultDataset == "" {
		return fmt.Errorf("default dataset cannot be empty")
	}
	for i, v := range md.Venues {
		if v.Dataset == "" {
			return fmt.Errorf("venue %d must have a dataset", i)
		}
		if v.PriceScale <= 0 {
			return fmt.Errorf("venue '%s' price scale must be greater than 0", v.Dataset)
		}
	}
	if !validIntervals[md.History.Interval] {
		return fmt.Errorf("invalid history interval '%s'", md.History.Interval)
	}
	if md.History.LookbackDays <= 0 {
		return fmt.Errorf("history lookback days must be greater than 0")
	}
	if md.History.SafetyLagMinutes < 0 {
		return fmt.Errorf("history safety lag cannot be negative")
	}
	if md.History.FallbackBarCount <= 0 {
		return fmt.Errorf("fallback bar count must be greater than 0")
	}

	// Simulation
	if c.Simulation.StartPrice <= 0 {
		return fmt.Errorf("simulation start price must be greater than 0")
	}
	if c.Simulation.TickIntervalMs <= 0 {
		return fmt.Errorf("simulation tick interval must be greater than 0")
	}

	// Strategy
	if c.Strategy.ATRPeriod < 1 {
		return fmt.Errorf("strategy atr period must be at least 1")
	}
	if c.Strategy.Multiplier <= 0 {
		return fmt.Errorf("strategy multiplier must be greater than 0")
	}

	// Execution
	for _, sink := range c.Execution.Sinks {
		switch sink {
		case "paper", "journal", "kafka":
		default:
			return fmt.Errorf("unknown execution sink '%s'", sink)
		}
	}
	if c.Execution.QueueSize <= 0 {
		return fmt.Errorf("execution queue size must be greater than 0")
	}
	switch c.Execution.Journal.DBType {
	case "none":
	case "sqlite":
		if c.Execution.Journal.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Execution.Journal.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unknown journal database type '%s'", c.Execution.Journal.DBType)
	}
	if c.HasSink("journal") && c.Execution.Journal.DBType == "none" {
		return fmt.Errorf("journal sink requires a journal database")
	}
	if c.HasSink("kafka") && len(c.Execution.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka sink requires at least one broker")
	}

	return nil
}

// -----------------------------------------------------------------------------

// HasSink reports whether the named execution sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Execution.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
