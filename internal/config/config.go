package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in data_source.provider.
const (
	ProviderYahoo  = "yahoo"
	ProviderAlpaca = "alpaca"
	ProviderMock   = "mock"
)

// MaxRefreshSeconds bounds the auto-refresh interval.
const MaxRefreshSeconds = 300

// Config holds all application configuration.
type Config struct {
	Dashboard  Dashboard  `yaml:"dashboard"`
	DataSource DataSource `yaml:"data_source"`
	Server     Server     `yaml:"server"`
	Schedule   Schedule   `yaml:"schedule"`
	Proxy      string     `yaml:"proxy"`
	LogLevel   string     `yaml:"log_level"`
	LogPretty  bool       `yaml:"log_pretty"`
}

// Dashboard holds the user-facing defaults of the dashboard.
type Dashboard struct {
	Symbol         string   `yaml:"symbol"`
	Tickers        []string `yaml:"tickers"`
	LookbackDays   int      `yaml:"lookback_days"`
	ShowSMA        bool     `yaml:"show_sma"`
	ShowEMA        bool     `yaml:"show_ema"`
	SMAWindow      int      `yaml:"sma_window"`
	EMAWindow      int      `yaml:"ema_window"`
	SummaryRows    int      `yaml:"summary_rows"`
	TableRows      int      `yaml:"table_rows"`
	RefreshSeconds int      `yaml:"refresh_seconds"`
}

// DataSource selects and configures the market data provider.
type DataSource struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	Feed           string `yaml:"feed"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Server configures the HTTP surface.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Schedule configures the auto-refresh timer.
type Schedule struct {
	MarketHoursOnly bool `yaml:"market_hours_only"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Dashboard: Dashboard{
			Symbol:       "AAPL",
			Tickers:      []string{"AAPL", "AMZN", "BABA", "DIS", "GOOGL", "JPM", "META", "MSFT", "NFLX", "NVDA", "TSLA", "V"},
			LookbackDays: 365,
			ShowSMA:      true,
			ShowEMA:      false,
			SMAWindow:    20,
			EMAWindow:    20,
			SummaryRows:  3,
			TableRows:    60,
		},
		DataSource: DataSource{
			Provider:       ProviderYahoo,
			Feed:           "iex",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8080,
		},
		LogLevel:  "info",
		LogPretty: true,
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Dashboard.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Dashboard.Symbol))
	cfg.DataSource.Provider = strings.ToLower(cfg.DataSource.Provider)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DASHBOARD_SYMBOL"); v != "" {
		c.Dashboard.Symbol = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		c.DataSource.Provider = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.DataSource.APISecret = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REFRESH_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REFRESH_SECONDS: %w", err)
		}
		c.Dashboard.RefreshSeconds = n
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = n
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that all required fields are set and in range.
func (c *Config) Validate() error {
	d := c.Dashboard
	if strings.TrimSpace(d.Symbol) == "" {
		return fmt.Errorf("dashboard.symbol is required")
	}
	if d.LookbackDays <= 0 {
		return fmt.Errorf("dashboard.lookback_days must be positive")
	}
	if d.SMAWindow <= 0 {
		return fmt.Errorf("dashboard.sma_window must be positive")
	}
	if d.EMAWindow <= 0 {
		return fmt.Errorf("dashboard.ema_window must be positive")
	}
	if d.SummaryRows <= 0 {
		return fmt.Errorf("dashboard.summary_rows must be positive")
	}
	if d.TableRows <= 0 {
		return fmt.Errorf("dashboard.table_rows must be positive")
	}
	if d.RefreshSeconds < 0 || d.RefreshSeconds > MaxRefreshSeconds {
		return fmt.Errorf("dashboard.refresh_seconds must be between 0 and %d", MaxRefreshSeconds)
	}

	switch c.DataSource.Provider {
	case ProviderYahoo, ProviderMock:
	case ProviderAlpaca:
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return fmt.Errorf("data_source.api_key and data_source.api_secret are required for alpaca")
		}
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	if c.DataSource.TimeoutSeconds <= 0 {
		return fmt.Errorf("data_source.timeout_seconds must be positive")
	}
	if c.DataSource.MaxRetries < 0 {
		return fmt.Errorf("data_source.max_retries must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
