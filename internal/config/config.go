// Package config loads the command line configuration from an optional TOML
// file and ENMAP_* environment variables, the latter taking precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Version is set at build time.
var Version = "dev"

// Config holds the reader and command line settings.
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// TileCacheSize is the number of decoded tiles kept per product.
	TileCacheSize int  `toml:"tile_cache_size"`
	PixelMasks    bool `toml:"pixel_masks"`
	// WorkDir receives products fetched from object stores. Empty means a
	// temporary directory per product.
	WorkDir             string `toml:"work_dir"`
	DownloadConcurrency int    `toml:"download_concurrency"`

	S3  S3Config  `toml:"s3"`
	GCS GCSConfig `toml:"gcs"`

	level slog.Level
}

// S3Config configures access to s3:// products.
type S3Config struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// GCSConfig configures access to gs:// products.
type GCSConfig struct {
	Enabled         bool   `toml:"enabled"`
	Anonymous       bool   `toml:"anonymous"`
	CredentialsFile string `toml:"credentials_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		TileCacheSize:       256,
		PixelMasks:          true,
		DownloadConcurrency: 4,
		S3:                  S3Config{Region: "eu-central-1"},
		level:               slog.LevelInfo,
	}
}

// Load reads path when it is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.LogLevel = getEnvDefault("ENMAP_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvDefault("ENMAP_LOG_FORMAT", c.LogFormat)
	c.WorkDir = getEnvDefault("ENMAP_WORK_DIR", c.WorkDir)

	if c.TileCacheSize, err = getEnvInt("ENMAP_TILE_CACHE_SIZE", c.TileCacheSize); err != nil {
		return fmt.Errorf("ENMAP_TILE_CACHE_SIZE: %w", err)
	}
	if c.PixelMasks, err = getEnvBool("ENMAP_PIXEL_MASKS", c.PixelMasks); err != nil {
		return fmt.Errorf("ENMAP_PIXEL_MASKS: %w", err)
	}
	if c.DownloadConcurrency, err = getEnvInt("ENMAP_DOWNLOAD_CONCURRENCY", c.DownloadConcurrency); err != nil {
		return fmt.Errorf("ENMAP_DOWNLOAD_CONCURRENCY: %w", err)
	}

	c.S3.Region = getEnvDefault("ENMAP_S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnvDefault("ENMAP_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = getEnvDefault("ENMAP_S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnvDefault("ENMAP_S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.SessionToken = getEnvDefault("ENMAP_S3_SESSION_TOKEN", c.S3.SessionToken)
	if c.S3.UsePathStyle, err = getEnvBool("ENMAP_S3_USE_PATH_STYLE", c.S3.UsePathStyle); err != nil {
		return fmt.Errorf("ENMAP_S3_USE_PATH_STYLE: %w", err)
	}

	if c.GCS.Enabled, err = getEnvBool("ENMAP_GCS_ENABLED", c.GCS.Enabled); err != nil {
		return fmt.Errorf("ENMAP_GCS_ENABLED: %w", err)
	}
	if c.GCS.Anonymous, err = getEnvBool("ENMAP_GCS_ANONYMOUS", c.GCS.Anonymous); err != nil {
		return fmt.Errorf("ENMAP_GCS_ANONYMOUS: %w", err)
	}
	c.GCS.CredentialsFile = getEnvDefault("ENMAP_GCS_CREDENTIALS_FILE", c.GCS.CredentialsFile)
	return nil
}

func (c *Config) validate() error {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	c.level = level
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: log format %q, expected json or text", c.LogFormat)
	}
	if c.TileCacheSize < 0 {
		return fmt.Errorf("config: tile cache size must not be negative, got %d", c.TileCacheSize)
	}
	if c.DownloadConcurrency <= 0 {
		return fmt.Errorf("config: download concurrency must be positive, got %d", c.DownloadConcurrency)
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("config: s3 access key id and secret must be set together")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	return c.level
}

// SetupLogger installs and returns the default logger writing to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", val)
	}
	return b, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, expected debug, info, warn or error", level)
	}
}
