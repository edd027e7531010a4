package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PatternSentinel/internal/scanner"
	"PatternSentinel/internal/strategy"
)

// Supported data source kinds.
const (
	SourceCSV       = "csv"
	SourceYahoo     = "yahoo"
	SourceREST      = "rest"
	SourceSynthetic = "synthetic"
)

// ErrUnknownSource is returned by Validate for an unsupported data_source.kind.
var ErrUnknownSource = errors.New("unknown data source")

// Config holds all application configuration.
type Config struct {
	DataSource struct {
		Kind     string `yaml:"kind"`
		Path     string `yaml:"path"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Interval string `yaml:"interval"`
		Limit    int    `yaml:"limit"`
		Seed     int64  `yaml:"seed"`
	} `yaml:"data_source"`
	Symbols []string `yaml:"symbols"`
	Scan    struct {
		MaxPatterns      int `yaml:"max_patterns"`
		scanner.Geometry `yaml:",inline"`
	} `yaml:"scan"`
	Rules  strategy.Thresholds `yaml:"rules"`
	Output struct {
		ReportFile  string `yaml:"report_file"`
		PatternsDir string `yaml:"patterns_dir"`
		Charts      bool   `yaml:"charts"`
		Clean       bool   `yaml:"clean"`
	} `yaml:"output"`
	Classifier struct {
		ModelPath string `yaml:"model_path"`
	} `yaml:"classifier"`
	Database struct {
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A .env file next to the working directory is loaded first when present; variables
// already set in the environment win over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	cfg.Output.Charts = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		c.DataSource.Kind = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.DataSource.Path = v
	}
	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("MAX_PATTERNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.MaxPatterns = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Database.PostgresDSN = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("CRON_SCAN"); v != "" {
		c.Schedule.ScanCron = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Classifier.ModelPath = v
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.Kind == "" {
		c.DataSource.Kind = SourceCSV
	}
	c.DataSource.Kind = strings.ToLower(c.DataSource.Kind)
	if c.DataSource.Path == "" {
		c.DataSource.Path = "data/raw_data.csv"
	}
	if c.DataSource.Seed == 0 {
		c.DataSource.Seed = 42
	}
	if len(c.Symbols) == 0 && c.DataSource.Kind != SourceCSV {
		c.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if c.Scan.MaxPatterns == 0 {
		c.Scan.MaxPatterns = 30
	}
	c.Scan.Geometry = c.Scan.Geometry.WithDefaults()
	c.Rules = c.Rules.WithDefaults()
	if c.Output.ReportFile == "" {
		c.Output.ReportFile = "report.csv"
	}
	if c.Output.PatternsDir == "" {
		c.Output.PatternsDir = "patterns"
	}
	if c.Classifier.ModelPath == "" {
		c.Classifier.ModelPath = "models/cup_handle_model.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pattern_sentinel.db"
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 */15 * * * *"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that the configuration can drive a scan.
func (c *Config) Validate() error {
	switch c.DataSource.Kind {
	case SourceCSV:
		if c.DataSource.Path == "" {
			return fmt.Errorf("data_source.path is required for csv")
		}
	case SourceREST:
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for rest")
		}
	case SourceYahoo, SourceSynthetic:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.DataSource.Kind)
	}
	if c.Scan.MaxPatterns < 0 {
		return fmt.Errorf("scan.max_patterns must not be negative")
	}
	if c.Rules.MinCupBars > c.Rules.MaxCupBars {
		return fmt.Errorf("rules.min_cup_bars exceeds rules.max_cup_bars")
	}
	if c.Rules.MinHandleBars > c.Rules.MaxHandleBars {
		return fmt.Errorf("rules.min_handle_bars exceeds rules.max_handle_bars")
	}
	if c.Rules.MinR2 < 0 || c.Rules.MinR2 > 1 {
		return fmt.Errorf("rules.min_r2 must be within [0, 1]")
	}
	return nil
}

// ValidateNotifier checks the fields the Telegram notifier needs.
func (c *Config) ValidateNotifier() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
