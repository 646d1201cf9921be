package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// AnomalyConfig holds the detector knobs. Seed is explicit so that equal
// inputs produce equal output across runs.
type AnomalyConfig struct {
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
}

type AppConfig struct {
	NOAAAPIKey string
	EIAAPIKey  string

	// DataDir is the root for all persisted files (merged dataset, reports,
	// raw per-city dumps).
	DataDir string

	// FetchDays is the rolling window length in days.
	FetchDays int

	// HTTPTimeout applies to outbound API calls.
	HTTPTimeout time.Duration

	// ScheduleAt enables daemon mode when non-empty ("HH:MM", UTC).
	ScheduleAt string

	Port     string
	AppEnv   string
	LogLevel slog.Level

	Cities  []dataset.City
	Anomaly AnomalyConfig
}

// fileConfig mirrors config/config.yaml.
type fileConfig struct {
	General struct {
		FetchDays int    `yaml:"fetch_days"`
		DataDir   string `yaml:"data_dir"`
	} `yaml:"general"`
	Cities  []dataset.City `yaml:"cities"`
	Anomaly AnomalyConfig  `yaml:"anomaly"`
}

// Load reads configuration from the YAML city file and the environment,
// applying defaults where values are absent.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "err", err)
	}

	cfg := &AppConfig{}

	cfg.NOAAAPIKey = os.Getenv("NOAA_API_KEY")
	cfg.EIAAPIKey = os.Getenv("EIA_API_KEY")

	path := getenvDefault("CONFIG_FILE", "config/config.yaml")
	fc, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	// FETCH_DAYS overrides the YAML window, useful for short backfills.
	cfg.FetchDays = getenvInt("FETCH_DAYS", fc.General.FetchDays)
	if cfg.FetchDays == 0 {
		cfg.FetchDays = 90
	}
	if cfg.FetchDays < 1 {
		return nil, fmt.Errorf("fetch_days must be at least 1, got %d", cfg.FetchDays)
	}

	cfg.DataDir = fc.General.DataDir
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.Cities = fc.Cities
	if len(cfg.Cities) == 0 {
		return nil, fmt.Errorf("no cities configured in %s", path)
	}
	for _, c := range cfg.Cities {
		if c.Name == "" || c.NOAAStationID == "" || c.EIARespondent == "" {
			return nil, fmt.Errorf("city %q must have name, noaa_station_id and eia_respondent", c.Name)
		}
	}

	cfg.Anomaly = fc.Anomaly
	if cfg.Anomaly.Contamination == 0 {
		cfg.Anomaly.Contamination = 0.02
	}
	if cfg.Anomaly.Contamination < 0 || cfg.Anomaly.Contamination >= 1 {
		return nil, fmt.Errorf("anomaly contamination must be in [0,1), got %v", cfg.Anomaly.Contamination)
	}
	if cfg.Anomaly.Seed == 0 {
		cfg.Anomaly.Seed = 42
	}

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.ScheduleAt = os.Getenv("PIPELINE_SCHEDULE")
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	cfg.LogLevel = parseLevel(getenvDefault("LOG_LEVEL", "info"))

	return cfg, nil
}

func loadFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
