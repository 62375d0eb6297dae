package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Wayback    WaybackConfig    `mapstructure:"wayback"`
	OpenAerial OpenAerialConfig `mapstructure:"openaerial"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// CatalogConfig points at the mapping-project catalog. Bases are tried in
// order until one answers.
type CatalogConfig struct {
	Bases       []string `mapstructure:"bases"`
	SnapshotURL string   `mapstructure:"snapshot_url"`
}

type WaybackConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	SampleTimeoutSeconds int    `mapstructure:"sample_timeout_seconds"`
}

type OpenAerialConfig struct {
	CatalogURL         string  `mapstructure:"catalog_url"`
	MaxImageAreaDeg2   float64 `mapstructure:"max_image_area_deg2"`
	LoadTimeoutSeconds int     `mapstructure:"load_timeout_seconds"`
}

// CacheConfig selects the viewport cache backend. Backend "valkey" shares
// entries across replicas; "memory" is the in-process bounded LRU.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	Addr       string `mapstructure:"addr"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// DatabaseConfig is optional; without a DSN the staleness history store is
// disabled.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Enabled  bool   `mapstructure:"enabled"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// DashboardConfig holds the public-facing URL used to build permalinks.
type DashboardConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("catalog.bases", []string{
		"https://tasking-manager-production-api.hotosm.org/api/v2",
		"https://tasks.hotosm.org/api/v2",
	})
	v.SetDefault("catalog.snapshot_url", "https://tasking-manager-production-api.hotosm.org/api/v2/projects/?action=any&projectStatuses=PUBLISHED&fullProjectsGeometries=false")
	v.SetDefault("wayback.base_url", "")
	v.SetDefault("wayback.sample_timeout_seconds", 8)
	v.SetDefault("openaerial.catalog_url", "")
	v.SetDefault("openaerial.max_image_area_deg2", 1.0)
	v.SetDefault("openaerial.load_timeout_seconds", 60)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "staleview")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "staleview")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "imagery-refresh")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("dashboard.base_url", "https://staleview.example.org")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: STALEVIEW_CACHE_BACKEND -> cache.backend
	v.SetEnvPrefix("STALEVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if len(c.Catalog.Bases) == 0 {
		errs = append(errs, "catalog.bases must list at least one endpoint")
	}
	if c.OpenAerial.MaxImageAreaDeg2 <= 0 {
		errs = append(errs, "openaerial.max_image_area_deg2 must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "valkey":
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be memory or valkey, got %q", c.Cache.Backend))
	}
	if c.Cache.Backend == "valkey" && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required for the valkey backend")
	}
	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, "cache.ttl_seconds must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required when database.enabled")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required when database.enabled")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required when database.enabled")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
