package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Download  DownloadConfig  `yaml:"download" envconfig:"DOWNLOAD"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// DownloadConfig drives the per-date pipeline.
type DownloadConfig struct {
	BaseURL          string        `yaml:"base_url" envconfig:"BASE_URL"`
	OutputDir        string        `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	DateFormat       string        `yaml:"date_format" envconfig:"DATE_FORMAT"`
	SkipWeekends     bool          `yaml:"skip_weekends" envconfig:"SKIP_WEEKENDS"`
	KeepIntermediate bool          `yaml:"keep_intermediate" envconfig:"KEEP_INTERMEDIATE"`
	StrictArchive    bool          `yaml:"strict_archive" envconfig:"STRICT_ARCHIVE"`
	RecordSuffix     string        `yaml:"record_suffix" envconfig:"RECORD_SUFFIX"`
	OutputExtension  string        `yaml:"output_extension" envconfig:"OUTPUT_EXTENSION"`
	Workers          int           `yaml:"workers" envconfig:"WORKERS"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxRetries       int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	RequestInterval  time.Duration `yaml:"request_interval" envconfig:"REQUEST_INTERVAL"`
	UserAgent        string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ServerConfig contains HTTP server configuration. Batches submitted over HTTP
// may span at most MaxBatchDays and must write under OutputRoot, which
// defaults to the download output directory.
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	QueueSize       int             `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	MaxBatchDays    int             `yaml:"max_batch_days" envconfig:"MAX_BATCH_DAYS"`
	OutputRoot      string          `yaml:"output_root" envconfig:"OUTPUT_ROOT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// StorageConfig configures the optional S3 mirror of written workbooks.
type StorageConfig struct {
	S3Bucket     string `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	S3Prefix     string `yaml:"s3_prefix" envconfig:"S3_PREFIX"`
	S3Region     string `yaml:"s3_region" envconfig:"S3_REGION"`
	S3Endpoint   string `yaml:"s3_endpoint" envconfig:"S3_ENDPOINT"`
	UsePathStyle bool   `yaml:"use_path_style" envconfig:"USE_PATH_STYLE"`
}

// TelemetryConfig controls OpenTelemetry setup.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceStdout    bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// MirrorEnabled reports whether written workbooks are copied to S3.
func (s StorageConfig) MirrorEnabled() bool {
	return s.S3Bucket != ""
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. A .env file in the working
// directory is read into the environment first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without an environment value keep what defaults and the file set.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) resolvePaths() error {
	dir, err := ExpandHome(c.Download.OutputDir)
	if err != nil {
		return err
	}
	c.Download.OutputDir = dir
	if c.Server.OutputRoot, err = ExpandHome(c.Server.OutputRoot); err != nil {
		return err
	}
	return nil
}

// BatchOutputRoot returns the directory served batches must write under.
func (c *Config) BatchOutputRoot() string {
	if c.Server.OutputRoot != "" {
		return c.Server.OutputRoot
	}
	return c.Download.OutputDir
}

// Validate validates the configuration
func (c *Config) Validate() error {
	d := c.Download
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url: %q", d.BaseURL)
	}
	if strings.TrimSpace(d.OutputDir) == "" {
		return fmt.Errorf("output directory must be set")
	}
	if strings.TrimSpace(d.DateFormat) == "" {
		return fmt.Errorf("date format must be set")
	}
	if !strings.HasPrefix(d.RecordSuffix, ".") || !strings.HasPrefix(d.OutputExtension, ".") {
		return fmt.Errorf("record suffix and output extension must start with a dot")
	}
	if d.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", d.Workers)
	}
	if d.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if d.MaxRetries < 0 || d.RequestInterval < 0 {
		return fmt.Errorf("max retries and request interval cannot be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1")
	}
	if c.Server.MaxBatchDays < 1 {
		return fmt.Errorf("max batch days must be at least 1, got %d", c.Server.MaxBatchDays)
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Download: DownloadConfig{
			BaseURL:          DefaultBaseURL,
			OutputDir:        DefaultOutputDir(),
			DateFormat:       DefaultDateFormat,
			SkipWeekends:     true,
			KeepIntermediate: false,
			StrictArchive:    false,
			RecordSuffix:     DefaultRecordSuffix,
			OutputExtension:  DefaultOutputExtension,
			Workers:          1,
			RequestTimeout:   DefaultRequestTimeout,
			MaxRetries:       0,
			RequestInterval:  0,
			UserAgent:        DefaultUserAgent,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/mktsummary.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			QueueSize:       16,
			MaxBatchDays:    DefaultMaxBatchDays,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			ServiceName:    AppName,
			TraceStdout:    false,
			MetricsEnabled: true,
		},
	}
}
