package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Network    MNetworkConfig    `yaml:"network"`
	MarketData MMarketDataConfig `yaml:"market_data"`
	Simulation MSimulationConfig `yaml:"simulation"`
	Strategy   MStrategyConfig   `yaml:"strategy"`
	Execution  MExecutionConfig  `yaml:"execution"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	UserAgent      string `yaml:"user_agent"`
}

type MMarketDataConfig struct {
	APIKey         string         `yaml:"api_key"`
	UseSimulation  bool           `yaml:"use_simulation"`
	HistoricalURL  string         `yaml:"historical_url"`
	LiveURL        string         `yaml:"live_url"`
	DefaultDataset string         `yaml:"default_dataset"`
	LiveSchema     string         `yaml:"live_schema"`
	Venues         []MVenueConfig `yaml:"venues"`
	History        MHistoryConfig `yaml:"history"`
}

// MVenueConfig maps symbol roots to an upstream dataset.
type MVenueConfig struct {
	Dataset    string   `yaml:"dataset"`
	Roots      []string `yaml:"roots"`
	PriceScale float64  `yaml:"price_scale"`
	Calendar   string   `yaml:"calendar"`
}

type MHistoryConfig struct {
	Interval          string `yaml:"interval"`
	LookbackDays      int    `yaml:"lookback_days"`
	SafetyLagMinutes  int    `yaml:"safety_lag_minutes"`
	FallbackBarCount  int    `yaml:"fallback_bars"`
	DefaultCalendarID string `yaml:"default_calendar"`
}

type MSimulationConfig struct {
	StartPrice     float64 `yaml:"start_price"`
	TickIntervalMs int     `yaml:"tick_interval_ms"`
	Seed           int64   `yaml:"seed"`
}

type MStrategyConfig struct {
	ATRPeriod  int     `yaml:"atr_period"`
	Multiplier float64 `yaml:"multiplier"`
}

type MExecutionConfig struct {
	Sinks     []string       `yaml:"sinks"`
	AccountID string         `yaml:"account_id"`
	Quantity  int            `yaml:"quantity"`
	QueueSize int            `yaml:"queue_size"`
	Journal   MStorageConfig `yaml:"journal"`
	Kafka     MKafkaConfig   `yaml:"kafka"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MKafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
