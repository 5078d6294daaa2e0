package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	BackendBigQuery = "bigquery"
	BackendMySQL    = "mysql"
)

// Config is the process environment of an analysis run.
type Config struct {
	AppEnv           string
	LogLevel         string
	WarehouseBackend string
	WarehouseDSN     string
	BigQueryProject  string
	CredentialsEnv   string
	OutputDir        string
	PlotFormats      []string
	TgToken          string
	TgChatID         int64
	MetricsFile      string
	App              string
}

var (
	config *Config
	cfgErr error
	once   sync.Once
)

// GetConfig returns the process-wide configuration, loading it on first use.
func GetConfig() (*Config, error) {
	once.Do(func() {
		config, cfgErr = Load()
	})
	return config, cfgErr
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "production"),
		LogLevel:         getEnv("LOG_LEVEL", ""),
		WarehouseBackend: strings.ToLower(getEnv("WAREHOUSE_BACKEND", BackendBigQuery)),
		WarehouseDSN:     os.Getenv("WAREHOUSE_DSN"),
		BigQueryProject:  os.Getenv("BIGQUERY_PROJECT"),
		CredentialsEnv:   getEnv("CREDENTIALS_ENV", "HARVEST_CREDENTIALS"),
		OutputDir:        getEnv("OUTPUT_DIR", "output"),
		PlotFormats:      splitList(getEnv("PLOT_FORMATS", "png,html")),
		TgToken:          os.Getenv("TG_TOKEN"),
		MetricsFile:      os.Getenv("METRICS_FILE"),
		App:              getEnv("ANALYSIS_APP", "HarvestWeb"),
	}

	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TG_CHAT_ID: %w", err)
		}
		cfg.TgChatID = id
	}

	switch cfg.WarehouseBackend {
	case BackendBigQuery:
		if cfg.BigQueryProject == "" {
			return nil, fmt.Errorf("BIGQUERY_PROJECT is required for the %s backend", BackendBigQuery)
		}
	case BackendMySQL:
		if cfg.WarehouseDSN == "" {
			return nil, fmt.Errorf("WAREHOUSE_DSN is required for the %s backend", BackendMySQL)
		}
	default:
		return nil, fmt.Errorf("unknown WAREHOUSE_BACKEND %q", cfg.WarehouseBackend)
	}

	for _, f := range cfg.PlotFormats {
		if f != "png" && f != "html" && f != "telegram" {
			return nil, fmt.Errorf("unknown plot format %q", f)
		}
	}
	return cfg, nil
}

// HasPlotFormat reports whether the format was requested in PLOT_FORMATS.
func (c *Config) HasPlotFormat(format string) bool {
	for _, f := range c.PlotFormats {
		if f == format {
			return true
		}
	}
	return false
}

// NewLogger builds the run logger. Development output is human readable.
func NewLogger(appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}

	logger := zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
