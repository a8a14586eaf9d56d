package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Fetch   FetchConfig   `yaml:"fetch" envconfig:"FETCH"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8001"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// AnalysisTimeout bounds one full analysis run, fetch included.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout" envconfig:"ANALYSIS_TIMEOUT" default:"30m"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// PathsConfig contains file system path configuration.
type PathsConfig struct {
	// DataDir overrides the default data directory next to the executable.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// FetchConfig contains data-acquisition configuration for the upstream
// quote and master-data sources.
type FetchConfig struct {
	UserAgent      string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"10s"`
	// RequestsPerSecond throttles the sequential per-constituent quote loop.
	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" default:"10"`
	MasterURL         string  `yaml:"master_url" envconfig:"MASTER_URL" default:"https://indexes.nikkei.co.jp/nkave/archives/file/nikkei_225_price_adjustment_factor_jp.csv"`
	QuoteBaseURL      string  `yaml:"quote_base_url" envconfig:"QUOTE_BASE_URL" default:"https://finance.yahoo.co.jp"`
	IndexURL          string  `yaml:"index_url" envconfig:"INDEX_URL" default:"https://www.nikkei.com/markets/worldidx/chart/nk225/"`
}

// Load loads configuration from environment variables (NK_ prefix) merged
// over an optional nikkeicli.yaml next to the executable.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("NK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		if err := mergeFromFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// mergeFromFile overlays non-zero values from the YAML file onto cfg.
// The file wins over the environment for every field it sets; fields the
// file leaves empty keep their env or default values.
func mergeFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return err
	}

	if fileCfg.Server.Port != 0 {
		cfg.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Logging.Level != "" {
		cfg.Logging.Level = fileCfg.Logging.Level
	}
	if fileCfg.Logging.Output != "" {
		cfg.Logging.Output = fileCfg.Logging.Output
	}
	if fileCfg.Logging.FilePath != "" {
		cfg.Logging.FilePath = fileCfg.Logging.FilePath
	}
	if fileCfg.Paths.DataDir != "" {
		cfg.Paths.DataDir = fileCfg.Paths.DataDir
	}
	if fileCfg.Fetch.UserAgent != "" {
		cfg.Fetch.UserAgent = fileCfg.Fetch.UserAgent
	}
	if fileCfg.Fetch.MasterURL != "" {
		cfg.Fetch.MasterURL = fileCfg.Fetch.MasterURL
	}
	if fileCfg.Fetch.QuoteBaseURL != "" {
		cfg.Fetch.QuoteBaseURL = fileCfg.Fetch.QuoteBaseURL
	}
	if fileCfg.Fetch.IndexURL != "" {
		cfg.Fetch.IndexURL = fileCfg.Fetch.IndexURL
	}
	if fileCfg.Fetch.RequestsPerSecond != 0 {
		cfg.Fetch.RequestsPerSecond = fileCfg.Fetch.RequestsPerSecond
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %f", c.Fetch.RequestsPerSecond)
	}
	return nil
}

func configFilePath() string {
	if p := os.Getenv("NK_CONFIG_FILE"); p != "" {
		return p
	}
	exeDir, err := executableDir()
	if err != nil {
		return "nikkeicli.yaml"
	}
	return exeDir + string(os.PathSeparator) + "nikkeicli.yaml"
}
