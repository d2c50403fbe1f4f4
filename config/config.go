package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for riverwatchd.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
	Enrich     EnrichConfig     `mapstructure:"enrich"`
	Compose    ComposeConfig    `mapstructure:"compose"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains the health/metrics HTTP surface settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ScheduleConfig controls the cycle trigger.
type ScheduleConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	DeadlineSeconds int    `mapstructure:"deadline_seconds"`
	CronExpr        string `mapstructure:"cron_expr"`
	LockKey         string `mapstructure:"lock_key"`
	LockTTLSeconds  int    `mapstructure:"lock_ttl_seconds"`
}

func (s ScheduleConfig) Validate() error {
	if s.IntervalSeconds <= 0 {
		return fmt.Errorf("schedule.interval_seconds must be > 0")
	}
	if s.DeadlineSeconds <= 0 {
		return fmt.Errorf("schedule.deadline_seconds must be > 0")
	}
	return nil
}

// ClusterConfig controls C4's clustering parameters.
type ClusterConfig struct {
	SpatialRadiusKM     float64 `mapstructure:"spatial_radius_km"`
	TemporalWindowHours int     `mapstructure:"temporal_window_hours"`
	MinClusterSize      int     `mapstructure:"min_cluster_size"`
}

// Normalize applies the defaults spec.md §6 pins.
func (c ClusterConfig) Normalize() ClusterConfig {
	if c.SpatialRadiusKM <= 0 {
		c.SpatialRadiusKM = 10.0
	}
	if c.TemporalWindowHours <= 0 {
		c.TemporalWindowHours = 24
	}
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = 2
	}
	return c
}

// AnomalyConfig controls C3's thresholds, keyed "source:parameter".
type AnomalyConfig struct {
	Thresholds map[string]float64 `mapstructure:"thresholds"`
	Priority   PriorityConfig     `mapstructure:"priority_exceedance_fractions"`
}

// PriorityConfig pins the priority-rule exceedance fractions (an Open
// Question in spec.md §9 resolved by exposing them as config).
type PriorityConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

func (p PriorityConfig) Normalize() PriorityConfig {
	if p.High <= 0 {
		p.High = 0.5
	}
	if p.Medium <= 0 {
		p.Medium = 0.2
	}
	return p
}

// EnrichConfig controls C5/C6 fan-out and radii.
type EnrichConfig struct {
	PermitSearchRadiusKM         float64 `mapstructure:"permit_search_radius_km"`
	RainfallCorrelationRadiusKM  float64 `mapstructure:"rainfall_correlation_radius_km"`
	RainfallWindowHours          int     `mapstructure:"rainfall_window_hours"`
	RainfallHeavyMM              float64 `mapstructure:"rainfall_heavy_mm"`
	RainfallModerateMM           float64 `mapstructure:"rainfall_moderate_mm"`
	MaxClusterFanout             int     `mapstructure:"max_cluster_fanout"`
}

func (e EnrichConfig) Normalize() EnrichConfig {
	if e.PermitSearchRadiusKM <= 0 {
		e.PermitSearchRadiusKM = 1.0
	}
	if e.RainfallCorrelationRadiusKM <= 0 {
		e.RainfallCorrelationRadiusKM = 10.0
	}
	if e.RainfallWindowHours <= 0 {
		e.RainfallWindowHours = 24
	}
	if e.RainfallHeavyMM <= 0 {
		e.RainfallHeavyMM = 15
	}
	if e.RainfallModerateMM <= 0 {
		e.RainfallModerateMM = 5
	}
	if e.MaxClusterFanout <= 0 {
		e.MaxClusterFanout = 8
	}
	return e
}

// ComposeConfig selects C7's summariser and dedup window.
type ComposeConfig struct {
	Summariser       string `mapstructure:"summariser"`
	DedupWindowHours int    `mapstructure:"dedup_window_hours"`
}

func (c ComposeConfig) Normalize() ComposeConfig {
	if strings.TrimSpace(c.Summariser) == "" {
		c.Summariser = "template"
	}
	if c.DedupWindowHours <= 0 {
		c.DedupWindowHours = 24
	}
	return c
}

func (c ComposeConfig) Validate() error {
	if c.Summariser != "template" && c.Summariser != "llm" {
		return fmt.Errorf("compose.summariser must be \"template\" or \"llm\", got %q", c.Summariser)
	}
	return nil
}

// UpstreamConfig holds the base URLs, timeouts and retry policy for the
// three reading fetchers plus the permits and geocoding services.
type UpstreamConfig struct {
	Flood      UpstreamServiceConfig `mapstructure:"flood"`
	Hydrology  UpstreamServiceConfig `mapstructure:"hydrology"`
	Rainfall   UpstreamServiceConfig `mapstructure:"rainfall"`
	Permits    UpstreamServiceConfig `mapstructure:"permits"`
	Geocode    UpstreamServiceConfig `mapstructure:"geocode"`
	Embedding  UpstreamServiceConfig `mapstructure:"embedding"`
}

// UpstreamServiceConfig is the per-service retry policy shared by every
// external HTTP collaborator.
type UpstreamServiceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

func (u UpstreamServiceConfig) Normalize() UpstreamServiceConfig {
	if u.Timeout <= 0 {
		u.Timeout = 15 * time.Second
	}
	if u.MaxRetries <= 0 {
		u.MaxRetries = 3
	}
	if u.Backoff <= 0 {
		u.Backoff = 300 * time.Millisecond
	}
	return u
}

func (u UpstreamServiceConfig) Validate(name string) error {
	if strings.TrimSpace(u.BaseURL) == "" {
		return fmt.Errorf("upstream.%s.base_url is required", name)
	}
	return nil
}

// StorageConfig groups connection settings for the three downstream
// stores plus the single-flight scheduler lock.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
}

// PostgresConfig backs C1, C10, C11 and the pgvector similarity backend.
type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("storage.postgres.url is required")
	}
	return nil
}

func (p PostgresConfig) Normalize() PostgresConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 10
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	return p
}

// RedisConfig backs the scheduler's distributed single-flight lock.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host is required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port is required")
	}
	return nil
}

func (r RedisConfig) Normalize() RedisConfig {
	if r.Timeout <= 0 {
		r.Timeout = 2 * time.Second
	}
	return r
}

// Neo4jConfig backs C9's graph ingestor.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func (n Neo4jConfig) Validate() error {
	if strings.TrimSpace(n.URI) == "" {
		return fmt.Errorf("storage.neo4j.uri is required")
	}
	return nil
}

// SimilarityConfig selects and sizes C8's backend.
type SimilarityConfig struct {
	Backend        string `mapstructure:"backend"` // "pgvector" or "bleve"
	EmbeddingDim   int    `mapstructure:"embedding_dim"`
	BleveIndexPath string `mapstructure:"bleve_index_path"`
}

func (s SimilarityConfig) Normalize() SimilarityConfig {
	if strings.TrimSpace(s.Backend) == "" {
		s.Backend = "pgvector"
	}
	if s.EmbeddingDim <= 0 {
		s.EmbeddingDim = 1536
	}
	if strings.TrimSpace(s.BleveIndexPath) == "" {
		s.BleveIndexPath = ":memory:"
	}
	return s
}

func (s SimilarityConfig) Validate() error {
	if s.Backend != "pgvector" && s.Backend != "bleve" {
		return fmt.Errorf("storage.similarity.backend must be \"pgvector\" or \"bleve\", got %q", s.Backend)
	}
	return nil
}

// TelemetryConfig contains tracing/metrics settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// Normalize applies every sub-config's defaults. Called once after
// unmarshalling, mirroring the teacher's per-section Normalize convention.
func (c *Config) Normalize() {
	c.Cluster = c.Cluster.Normalize()
	c.Anomaly.Priority = c.Anomaly.Priority.Normalize()
	c.Enrich = c.Enrich.Normalize()
	c.Compose = c.Compose.Normalize()
	c.Upstream.Flood = c.Upstream.Flood.Normalize()
	c.Upstream.Hydrology = c.Upstream.Hydrology.Normalize()
	c.Upstream.Rainfall = c.Upstream.Rainfall.Normalize()
	c.Upstream.Permits = c.Upstream.Permits.Normalize()
	c.Upstream.Geocode = c.Upstream.Geocode.Normalize()
	c.Upstream.Embedding = c.Upstream.Embedding.Normalize()
	c.Storage.Postgres = c.Storage.Postgres.Normalize()
	c.Storage.Redis = c.Storage.Redis.Normalize()
	c.Storage.Similarity = c.Storage.Similarity.Normalize()
}

// Validate runs every sub-config's Validate method.
func (c *Config) Validate() error {
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.Compose.Validate(); err != nil {
		return err
	}
	if err := c.Upstream.Flood.Validate("flood"); err != nil {
		return err
	}
	if err := c.Upstream.Hydrology.Validate("hydrology"); err != nil {
		return err
	}
	if err := c.Upstream.Rainfall.Validate("rainfall"); err != nil {
		return err
	}
	if err := c.Upstream.Permits.Validate("permits"); err != nil {
		return err
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if c.Storage.Similarity.Backend == "pgvector" {
		// pgvector backend reuses the document store connection; nothing
		// extra to validate here.
	}
	if err := c.Storage.Similarity.Validate(); err != nil {
		return err
	}
	if c.Storage.Neo4j.URI != "" {
		if err := c.Storage.Neo4j.Validate(); err != nil {
			return err
		}
	}
	if c.Storage.Redis.Host != "" {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8090")

	viper.SetDefault("schedule.interval_seconds", 7200)
	viper.SetDefault("schedule.deadline_seconds", 600)
	viper.SetDefault("schedule.lock_key", "riverwatch:cycle:lock")
	viper.SetDefault("schedule.lock_ttl_seconds", 120)

	viper.SetDefault("cluster.spatial_radius_km", 10.0)
	viper.SetDefault("cluster.temporal_window_hours", 24)
	viper.SetDefault("cluster.min_cluster_size", 2)

	viper.SetDefault("anomaly.priority_exceedance_fractions.high", 0.5)
	viper.SetDefault("anomaly.priority_exceedance_fractions.medium", 0.2)

	viper.SetDefault("enrich.permit_search_radius_km", 1.0)
	viper.SetDefault("enrich.rainfall_correlation_radius_km", 10.0)
	viper.SetDefault("enrich.rainfall_window_hours", 24)
	viper.SetDefault("enrich.rainfall_heavy_mm", 15.0)
	viper.SetDefault("enrich.rainfall_moderate_mm", 5.0)
	viper.SetDefault("enrich.max_cluster_fanout", 8)

	viper.SetDefault("compose.summariser", "template")
	viper.SetDefault("compose.dedup_window_hours", 24)

	viper.SetDefault("storage.similarity.backend", "pgvector")
	viper.SetDefault("storage.similarity.embedding_dim", 1536)

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 9090)
}

// Load reads riverwatchd's configuration from the file at path (or the
// default search locations when path is empty), applying RIVERWATCH_*
// environment overrides, mirroring the teacher's LoadConfig shape.
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RIVERWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
