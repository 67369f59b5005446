package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Log       LogConfig       `mapstructure:"log"`
	Map       MapConfig       `mapstructure:"map"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type PollerConfig struct {
	FeedURL         string `mapstructure:"feed_url"`
	FeedFormat      string `mapstructure:"feed_format"` // auto, json or gtfs-rt
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MapConfig holds clustering and camera defaults.
type MapConfig struct {
	MaxClusterZoom     int     `mapstructure:"max_cluster_zoom"`
	ClusterRadiusPx    float64 `mapstructure:"cluster_radius_px"`
	FollowZoom         int     `mapstructure:"follow_zoom"`
	FollowIntervalMs   int     `mapstructure:"follow_interval_ms"`
	FollowThresholdDeg float64 `mapstructure:"follow_threshold_deg"`
	InitialLat         float64 `mapstructure:"initial_lat"`
	InitialLng         float64 `mapstructure:"initial_lng"`
	InitialZoom        int     `mapstructure:"initial_zoom"`
	MinZoom            int     `mapstructure:"min_zoom"`
	MaxZoom            int     `mapstructure:"max_zoom"`
	ViewportWidth      int     `mapstructure:"viewport_width"`
	ViewportHeight     int     `mapstructure:"viewport_height"`
	PathTolerance      float64 `mapstructure:"path_tolerance"`
}

func (m MapConfig) FollowInterval() time.Duration {
	return time.Duration(m.FollowIntervalMs) * time.Millisecond
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FLEETMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("FLEETMAP")
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

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fleet")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fleetmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "fleetmap-trails")
	v.SetDefault("poller.feed_url", "")
	v.SetDefault("poller.feed_format", "auto")
	v.SetDefault("poller.interval_seconds", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("map.max_cluster_zoom", 16)
	v.SetDefault("map.cluster_radius_px", 50)
	v.SetDefault("map.follow_zoom", 16)
	v.SetDefault("map.follow_interval_ms", 2000)
	v.SetDefault("map.follow_threshold_deg", 0.0005)
	v.SetDefault("map.initial_lat", 33.5731)
	v.SetDefault("map.initial_lng", -7.5898)
	v.SetDefault("map.initial_zoom", 6)
	v.SetDefault("map.min_zoom", 1)
	v.SetDefault("map.max_zoom", 19)
	v.SetDefault("map.viewport_width", 1024)
	v.SetDefault("map.viewport_height", 768)
	v.SetDefault("map.path_tolerance", 0.0001)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Poller.IntervalSeconds <= 0 {
		errs = append(errs, "poller.interval_seconds must be positive")
	}
	switch c.Poller.FeedFormat {
	case "auto", "json", "gtfs-rt":
	default:
		errs = append(errs, fmt.Sprintf("poller.feed_format %q must be auto, json or gtfs-rt", c.Poller.FeedFormat))
	}

	m := c.Map
	if m.ClusterRadiusPx <= 0 {
		errs = append(errs, "map.cluster_radius_px must be positive")
	}
	if m.MinZoom < 0 || m.MaxZoom < m.MinZoom {
		errs = append(errs, fmt.Sprintf("map zoom range invalid: min %d, max %d", m.MinZoom, m.MaxZoom))
	}
	if m.FollowIntervalMs <= 0 {
		errs = append(errs, "map.follow_interval_ms must be positive")
	}
	if m.FollowThresholdDeg <= 0 {
		errs = append(errs, "map.follow_threshold_deg must be positive")
	}
	if m.InitialLat < -90 || m.InitialLat > 90 || m.InitialLng < -180 || m.InitialLng > 180 {
		errs = append(errs, "map.initial_lat/initial_lng out of range")
	}
	if m.ViewportWidth <= 0 || m.ViewportHeight <= 0 {
		errs = append(errs, "map viewport dimensions must be positive")
	}
	if m.PathTolerance < 0 {
		errs = append(errs, "map.path_tolerance must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
