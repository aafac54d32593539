package config

// Package config handles configuration loading for dealflow.
// It supports YAML config files with environment variable overrides, plus
// the buybox.json and financial.json files kept in the config directory.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

const envPrefix = "DEALFLOW"

// Config represents the complete application configuration.
// Secrets are tagged json:"-" so the config can be served over the API.
type Config struct {
	API       APIConfig              `mapstructure:"api"        yaml:"api"        json:"api"`
	Listing   ListingConfig          `mapstructure:"listing"    yaml:"listing"    json:"listing"`
	Storage   StorageConfig          `mapstructure:"storage"    yaml:"storage"    json:"storage"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"  yaml:"scheduler"  json:"scheduler"`
	Analysis  AnalysisConfig         `mapstructure:"analysis"   yaml:"analysis"   json:"analysis"`
	Logging   LoggingConfig          `mapstructure:"logging"    yaml:"logging"    json:"logging"`
	ConfigDir string                 `mapstructure:"config_dir" yaml:"config_dir" json:"configDir"` // holds buybox.json / financial.json
	Buybox    models.Buybox          `mapstructure:"buybox"     yaml:"buybox"     json:"buybox"`
	Financial models.FinancialConfig `mapstructure:"financial"  yaml:"financial"  json:"financial"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"         json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"corsOrigins"`
	ServeUI     bool     `mapstructure:"serve_ui"     yaml:"serve_ui"     json:"serveUI"` // embedded dashboard at /
}

// ListingConfig holds the RapidAPI Zillow client settings.
type ListingConfig struct {
	APIKey         string `mapstructure:"api_key"          yaml:"api_key"          json:"-"`
	Host           string `mapstructure:"host"             yaml:"host"             json:"host"`
	RateLimit      int    `mapstructure:"rate_limit"       yaml:"rate_limit"       json:"rateLimit"` // requests per window
	RateWindowSec  int    `mapstructure:"rate_window_sec"  yaml:"rate_window_sec"  json:"rateWindowSec"`
	RequestsPerSec int    `mapstructure:"requests_per_sec" yaml:"requests_per_sec" json:"requestsPerSec"`
	CacheTTLSec    int    `mapstructure:"cache_ttl_sec"    yaml:"cache_ttl_sec"    json:"cacheTTLSec"`
}

// RateWindow returns the quota window as a duration.
func (c ListingConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSec) * time.Second
}

// CacheTTL returns the response cache TTL as a duration.
func (c ListingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// StorageConfig selects where analysis results live.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"         yaml:"driver"         json:"driver"` // "file" or "postgres"
	DataPath      string `mapstructure:"data_path"      yaml:"data_path"      json:"dataPath"`
	DatabaseURL   string `mapstructure:"database_url"   yaml:"database_url"   json:"-"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days" json:"retentionDays"`
}

// SchedulerConfig holds the collection schedule.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"  json:"enabled"`
	Cron     string `mapstructure:"cron"     yaml:"cron"     json:"cron"`
	Timezone string `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
}

// AnalysisConfig holds analysis engine settings.
type AnalysisConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"` // 1 = sequential batches
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.dealflow/config.yaml (home directory)
//  3. /etc/dealflow/config.yaml (system)
//
// Environment variables override config file values.
// Format: DEALFLOW_<SECTION>_<KEY>, e.g., DEALFLOW_LISTING_API_KEY
func Load() (*Config, error) {
	v := newViper()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".dealflow"))
	v.AddConfigPath("/etc/dealflow")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found: use defaults + env vars
	}
	return finish(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)

	if err := ApplyConfigDir(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.serve_ui", true)

	// Listing API defaults (RapidAPI free tier)
	v.SetDefault("listing.api_key", "")
	v.SetDefault("listing.host", "zillow-com1.p.rapidapi.com")
	v.SetDefault("listing.rate_limit", 100)
	v.SetDefault("listing.rate_window_sec", 3600)
	v.SetDefault("listing.requests_per_sec", 2)
	v.SetDefault("listing.cache_ttl_sec", 300)

	// Storage defaults
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_path", "./data")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.retention_days", 30)

	// Scheduler defaults (daily at 2 AM Central)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "0 2 * * *")
	v.SetDefault("scheduler.timezone", "America/Chicago")

	v.SetDefault("analysis.concurrency", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("config_dir", "./config")

	v.SetDefault("buybox.name", "default")

	// Financial defaults
	v.SetDefault("financial.mortgage.interest_rate", 7.0)
	v.SetDefault("financial.mortgage.down_payment_percent", 20.0)
	v.SetDefault("financial.mortgage.loan_term_years", 30)
	v.SetDefault("financial.operating_expenses.property_management_percent", 8.0)
	v.SetDefault("financial.operating_expenses.maintenance_percent", 5.0)
	v.SetDefault("financial.operating_expenses.vacancy_rate", 5.0)
	v.SetDefault("financial.operating_expenses.insurance_percent", 0.5)
	v.SetDefault("financial.operating_expenses.property_tax_percent", 1.2)
	v.SetDefault("financial.appreciation.annual_appreciation_percent", 3.0)
	v.SetDefault("financial.appreciation.holding_period_years", 5)
	v.SetDefault("financial.rental.use_hud_data", true)
	v.SetDefault("financial.rental.hud_data_path", models.DefaultReferenceDataPath)
	v.SetDefault("financial.rental.fallback_rent_percent", models.DefaultFallbackRentPercent)
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// The unprefixed RAPIDAPI_KEY and DATABASE_URL are honored when the
// prefixed variables are not set.
func overrideFromEnv(cfg *Config) {
	if key := firstEnv(envPrefix+"_LISTING_API_KEY", "RAPIDAPI_KEY"); key != "" {
		cfg.Listing.APIKey = key
	}
	if host := os.Getenv("RAPIDAPI_HOST"); host != "" && os.Getenv(envPrefix+"_LISTING_HOST") == "" {
		cfg.Listing.Host = host
	}
	if url := firstEnv(envPrefix+"_STORAGE_DATABASE_URL", "DATABASE_URL"); url != "" {
		cfg.Storage.DatabaseURL = url
	}
	if dir := os.Getenv("CONFIG_PATH"); dir != "" && os.Getenv(envPrefix+"_CONFIG_DIR") == "" {
		cfg.ConfigDir = dir
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// ApplyConfigDir replaces the buybox and financial sections with
// buybox.json and financial.json from cfg.ConfigDir when those files exist.
func ApplyConfigDir(cfg *Config) error {
	if cfg.ConfigDir == "" {
		return nil
	}
	b, err := LoadBuyboxFile(filepath.Join(cfg.ConfigDir, "buybox.json"))
	switch {
	case err == nil:
		cfg.Buybox = b
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	f, err := LoadFinancialFile(filepath.Join(cfg.ConfigDir, "financial.json"))
	switch {
	case err == nil:
		cfg.Financial = f
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return nil
}

// LoadBuyboxFile reads and validates a buybox JSON file.
func LoadBuyboxFile(path string) (models.Buybox, error) {
	var b models.Buybox
	if err := readJSONFile(path, &b); err != nil {
		return b, err
	}
	if err := b.Validate(); err != nil {
		return b, fmt.Errorf("invalid buybox config %s: %w", path, err)
	}
	return b, nil
}

// LoadFinancialFile reads and validates a financial JSON file. Defaults are
// applied before validation.
func LoadFinancialFile(path string) (models.FinancialConfig, error) {
	var f models.FinancialConfig
	if err := readJSONFile(path, &f); err != nil {
		return f, err
	}
	f = f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("invalid financial config %s: %w", path, err)
	}
	return f, nil
}

// SaveBuyboxFile writes b as buybox.json in dir.
func SaveBuyboxFile(dir string, b models.Buybox) (string, error) {
	return writeJSONFile(filepath.Join(dir, "buybox.json"), b)
}

// SaveFinancialFile writes f as financial.json in dir.
func SaveFinancialFile(dir string, f models.FinancialConfig) (string, error) {
	return writeJSONFile(filepath.Join(dir, "financial.json"), f)
}

func writeJSONFile(path string, v any) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", models.ErrConfiguration, path, err)
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
