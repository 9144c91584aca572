// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Search   SearchConfig   `mapstructure:"search"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RunConfig holds the per-invocation values normally set from CLI flags.
type RunConfig struct {
	Keyword      string `mapstructure:"keyword"`
	OutputFormat string `mapstructure:"output_format"`
	FromPage     int    `mapstructure:"from_page"`
	ToPage       int    `mapstructure:"to_page"`
}

// SearchConfig describes the upstream site layout.
type SearchConfig struct {
	URL               string   `mapstructure:"url"`
	DetailBaseURL     string   `mapstructure:"detail_base_url"`
	ImageBaseURL      string   `mapstructure:"image_base_url"`
	ResultsPerPage    int      `mapstructure:"results_per_page"`
	ListingTableIndex int      `mapstructure:"listing_table_index"`
	DetailPrefix      string   `mapstructure:"detail_prefix"`
	FileExtensions    []string `mapstructure:"file_extensions"`
	ResolverCacheSize int      `mapstructure:"resolver_cache_size"`
}

// HTTPConfig configures fetch timeout, retry and rate limiting.
type HTTPConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	MaxRetries         int     `mapstructure:"max_retries"`
	BackoffInitialMs   int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs       int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	Burst              int     `mapstructure:"burst"`
	MaxBodyBytes       int     `mapstructure:"max_body_bytes"`
	InsecureSkipVerify bool    `mapstructure:"insecure_skip_verify"`
}

// PipelineConfig governs the worker pool.
type PipelineConfig struct {
	Concurrency           int `mapstructure:"concurrency"`
	QueueDepth            int `mapstructure:"queue_depth"`
	MaxRecords            int `mapstructure:"max_records"`
	PersistTimeoutSeconds int `mapstructure:"persist_timeout_seconds"`
}

// OutputConfig sets where run folders are created.
type OutputConfig struct {
	Root string `mapstructure:"root"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// ArchiveConfig configures the optional archive upload.
type ArchiveConfig struct {
	GCSBucket            string `mapstructure:"gcs_bucket"`
	GCSPrefix            string `mapstructure:"gcs_prefix"`
	GCSEndpoint          string `mapstructure:"gcs_endpoint"`
	UploadTimeoutSeconds int    `mapstructure:"upload_timeout_seconds"`
}

// MetricsConfig controls the optional metrics/health server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// EnvPrefix is the prefix for environment overrides (LIBGEN_DB_DSN, ...).
const EnvPrefix = "LIBGEN"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller supplied viper instance, letting the CLI bind
// flags before values are resolved.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.keyword", "history")
	v.SetDefault("run.output_format", "csv")
	v.SetDefault("run.from_page", 1)
	v.SetDefault("run.to_page", 2)
	v.SetDefault("search.url", "https://libgen.rs/search.php")
	v.SetDefault("search.detail_base_url", "https://libgen.is/")
	v.SetDefault("search.image_base_url", "https://libgen.rs")
	v.SetDefault("search.results_per_page", 25)
	v.SetDefault("search.listing_table_index", 2)
	v.SetDefault("search.detail_prefix", "book")
	v.SetDefault("search.file_extensions", []string{".pdf"})
	v.SetDefault("search.resolver_cache_size", 512)
	v.SetDefault("http.user_agent", "libgen-scraper/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_body_bytes", 256<<20)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.queue_depth", 0)
	v.SetDefault("pipeline.max_records", 0)
	v.SetDefault("pipeline.persist_timeout_seconds", 120)
	v.SetDefault("output.root", "output")
	v.SetDefault("db.enabled", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.gcs_prefix", "")
	v.SetDefault("archive.gcs_endpoint", "")
	v.SetDefault("archive.upload_timeout_seconds", 300)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.RunConfig(); err != nil {
		return err
	}
	for field, raw := range map[string]string{
		"search.url":             c.Search.URL,
		"search.detail_base_url": c.Search.DetailBaseURL,
		"search.image_base_url":  c.Search.ImageBaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || !u.IsAbs() {
			return &catalog.ConfigError{Field: field, Reason: fmt.Sprintf("%q is not an absolute URL", raw)}
		}
	}
	if len(c.Search.FileExtensions) == 0 {
		return &catalog.ConfigError{Field: "search.file_extensions", Reason: "must not be empty"}
	}
	if c.Pipeline.Concurrency <= 0 {
		return &catalog.ConfigError{Field: "pipeline.concurrency", Reason: "must be > 0"}
	}
	if c.Pipeline.MaxRecords < 0 {
		return &catalog.ConfigError{Field: "pipeline.max_records", Reason: "must be >= 0"}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return &catalog.ConfigError{Field: "http.timeout_seconds", Reason: "must be > 0"}
	}
	if c.HTTP.MaxRetries < 0 {
		return &catalog.ConfigError{Field: "http.max_retries", Reason: "must be >= 0"}
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return &catalog.ConfigError{Field: "http.requests_per_second", Reason: "must be >= 0"}
	}
	if strings.TrimSpace(c.Output.Root) == "" {
		return &catalog.ConfigError{Field: "output.root", Reason: "is required"}
	}
	if c.DB.Enabled && strings.TrimSpace(c.DB.DSN) == "" {
		return &catalog.ConfigError{Field: "db.dsn", Reason: "must be set when db.enabled is true"}
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return &catalog.ConfigError{Field: "metrics.port", Reason: "must be > 0 when metrics are enabled"}
	}
	return nil
}

// RunConfig converts the run section into the value object handed to the pipeline.
func (c Config) RunConfig() (catalog.RunConfig, error) {
	format, err := catalog.ParseOutputFormat(c.Run.OutputFormat)
	if err != nil {
		return catalog.RunConfig{}, err
	}
	rc := catalog.RunConfig{
		Term:     strings.TrimSpace(c.Run.Keyword),
		FromPage: c.Run.FromPage,
		ToPage:   c.Run.ToPage,
		Format:   format,
	}
	if err := rc.Validate(); err != nil {
		return catalog.RunConfig{}, err
	}
	return rc, nil
}

// FetchTimeout is the per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PersistTimeout bounds the persistence phase.
func (c Config) PersistTimeout() time.Duration {
	return time.Duration(c.Pipeline.PersistTimeoutSeconds) * time.Second
}

// UploadTimeout bounds the archive upload.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.Archive.UploadTimeoutSeconds) * time.Second
}

// MaxConnLifetime returns the pool connection lifetime.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}
