// internal/config/config.go

// Package config provides the YAML configuration surface for chartex. All
// engine thresholds (confidence minimum, promotion and retirement levels,
// field length bounds, retention horizon) are overridable here without
// code change.
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valeran/chartex/internal/extract"
	"github.com/valeran/chartex/internal/learn"
	"github.com/valeran/chartex/internal/score"
	"github.com/valeran/chartex/internal/store"
)

// Config is the root configuration document.
type Config struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Learning   LearningConfig   `yaml:"learning" json:"learning"`
	Scoring    ScoringConfig    `yaml:"scoring" json:"scoring"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Fetch      FetchConfig      `yaml:"fetch" json:"fetch"`
	Server     ServerConfig     `yaml:"server" json:"server"`

	// TemplatesFile optionally adds curated templates on top of the
	// builtin set.
	TemplatesFile string `yaml:"templates_file,omitempty" json:"templates_file,omitempty"`
}

// ExtractionConfig bounds extraction and retry behavior.
type ExtractionConfig struct {
	Limits         extract.Limits `yaml:"limits" json:"limits"`
	MaxRetries     int            `yaml:"max_retries" json:"max_retries"`
	AllowDiscovery *bool          `yaml:"allow_discovery,omitempty" json:"allow_discovery,omitempty"`
}

// LearningConfig tunes the optimizer and discovery engine.
type LearningConfig struct {
	Thresholds               learn.Thresholds `yaml:"thresholds" json:"thresholds"`
	DiscoveryMinObservations int              `yaml:"discovery_min_observations" json:"discovery_min_observations"`
	AutoPromote              bool             `yaml:"auto_promote" json:"auto_promote"`
}

// ScoringConfig tunes the confidence scorer.
type ScoringConfig struct {
	Weights score.Weights `yaml:"weights" json:"weights"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend       string               `yaml:"backend" json:"backend"`
	SQLite        store.SQLiteOptions  `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	Postgres      store.PostgresOptions `yaml:"postgres,omitempty" json:"postgres,omitempty"`
	MySQL         store.MySQLOptions   `yaml:"mysql,omitempty" json:"mysql,omitempty"`
	MongoDB       store.MongoOptions   `yaml:"mongodb,omitempty" json:"mongodb,omitempty"`
	RetentionDays int                  `yaml:"retention_days" json:"retention_days"`
}

// FetchConfig configures the page fetch collaborators.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Browser   BrowserConfig `yaml:"browser" json:"browser"`
}

// BrowserConfig configures the chromedp-based fetcher.
type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Headless bool          `yaml:"headless" json:"headless"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen            string  `yaml:"listen" json:"listen"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes, expanding
// ${ENV_VAR} references before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %v", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %v", err)
	}
	return LoadFromBytes(data)
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{Name: "chartex"}
	applyDefaults(cfg)
	return cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvironmentVariables(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func applyDefaults(cfg *Config) {
	defaults := extract.DefaultLimits()
	if cfg.Extraction.Limits.TitleMin <= 0 {
		cfg.Extraction.Limits.TitleMin = defaults.TitleMin
	}
	if cfg.Extraction.Limits.TitleMax <= 0 {
		cfg.Extraction.Limits.TitleMax = defaults.TitleMax
	}
	if cfg.Extraction.Limits.ArtistMin <= 0 {
		cfg.Extraction.Limits.ArtistMin = defaults.ArtistMin
	}
	if cfg.Extraction.Limits.ArtistMax <= 0 {
		cfg.Extraction.Limits.ArtistMax = defaults.ArtistMax
	}
	if cfg.Extraction.Limits.MinConfidence <= 0 {
		cfg.Extraction.Limits.MinConfidence = defaults.MinConfidence
	}
	if cfg.Extraction.MaxRetries <= 0 {
		cfg.Extraction.MaxRetries = 3
	}
	if cfg.Extraction.AllowDiscovery == nil {
		enabled := true
		cfg.Extraction.AllowDiscovery = &enabled
	}

	dt := learn.DefaultThresholds()
	if cfg.Learning.Thresholds.Boost <= 0 {
		cfg.Learning.Thresholds.Boost = dt.Boost
	}
	if cfg.Learning.Thresholds.Penalize <= 0 {
		cfg.Learning.Thresholds.Penalize = dt.Penalize
	}
	if cfg.Learning.Thresholds.RetireFloor <= 0 {
		cfg.Learning.Thresholds.RetireFloor = dt.RetireFloor
	}
	if cfg.Learning.Thresholds.RetireMinObs <= 0 {
		cfg.Learning.Thresholds.RetireMinObs = dt.RetireMinObs
	}
	if cfg.Learning.Thresholds.Promote <= 0 {
		cfg.Learning.Thresholds.Promote = dt.Promote
	}
	if cfg.Learning.Thresholds.PromoteMinObs <= 0 {
		cfg.Learning.Thresholds.PromoteMinObs = dt.PromoteMinObs
	}
	if cfg.Learning.Thresholds.Window <= 0 {
		cfg.Learning.Thresholds.Window = dt.Window
	}
	if cfg.Learning.DiscoveryMinObservations <= 0 {
		cfg.Learning.DiscoveryMinObservations = 5
	}

	if cfg.Scoring.Weights == (score.Weights{}) {
		cfg.Scoring.Weights = score.DefaultWeights()
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "chartex.db"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 90
	}

	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "chartex/1.0"
	}
	if cfg.Fetch.Browser.Timeout <= 0 {
		cfg.Fetch.Browser.Timeout = 60 * time.Second
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.RequestsPerSecond <= 0 {
		cfg.Server.RequestsPerSecond = 10
	}
	if cfg.Server.Burst <= 0 {
		cfg.Server.Burst = 20
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Extraction.Limits.TitleMin > c.Extraction.Limits.TitleMax {
		return fmt.Errorf("title_min %d exceeds title_max %d", c.Extraction.Limits.TitleMin, c.Extraction.Limits.TitleMax)
	}
	if c.Extraction.Limits.ArtistMin > c.Extraction.Limits.ArtistMax {
		return fmt.Errorf("artist_min %d exceeds artist_max %d", c.Extraction.Limits.ArtistMin, c.Extraction.Limits.ArtistMax)
	}
	if c.Extraction.Limits.MinConfidence < 0 || c.Extraction.Limits.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", c.Extraction.Limits.MinConfidence)
	}
	for name, v := range map[string]float64{
		"boost":        c.Learning.Thresholds.Boost,
		"penalize":     c.Learning.Thresholds.Penalize,
		"retire_floor": c.Learning.Thresholds.RetireFloor,
		"promote":      c.Learning.Thresholds.Promote,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("learning threshold %s must be within [0,1], got %v", name, v)
		}
	}
	switch c.Storage.Backend {
	case "sqlite", "postgres", "mysql", "mongodb", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	return nil
}

// OpenStore constructs the configured persistence backend.
func (c *Config) OpenStore() (store.Store, error) {
	switch c.Storage.Backend {
	case "sqlite":
		return store.NewSQLiteStore(c.Storage.SQLite)
	case "postgres":
		return store.NewPostgresStore(c.Storage.Postgres)
	case "mysql":
		return store.NewMySQLStore(c.Storage.MySQL)
	case "mongodb":
		return store.NewMongoStore(c.Storage.MongoDB)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
}

// SaveToFile writes the configuration as YAML, used by template
// generation.
func SaveToFile(cfg *Config, filename string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %v", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %v", err)
	}
	return nil
}
