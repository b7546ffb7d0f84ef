// Package config loads BuildChain settings from the environment, with an
// optional YAML file underneath.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process configuration. Environment variables win over the
// YAML file named by BUILDCHAIN_CONFIG, which wins over defaults.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"` // empty selects SQLite under DataDir
	DataDir     string `yaml:"data_dir"`

	LedgerName   string `yaml:"ledger_name"`
	GenesisHash  string `yaml:"genesis_hash"`
	VerifyStrict bool   `yaml:"verify_strict"`
	RedisAddr    string `yaml:"redis_addr"`

	// ClaimTTL is how long a block number claimed in Redis stays reserved.
	ClaimTTL time.Duration `yaml:"claim_ttl"`

	JWTSecret    string `yaml:"jwt_secret"`
	RateLimitRPS int    `yaml:"rate_limit_rps"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	Insecure       bool          `yaml:"insecure"`
	ServiceName    string        `yaml:"service_name"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// SnapshotConfig selects the snapshot blob store.
type SnapshotConfig struct {
	Store      string `yaml:"store"` // fs | s3 | gcs
	Dir        string `yaml:"dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`
	GCSBucket  string `yaml:"gcs_bucket"`
	GCSPrefix  string `yaml:"gcs_prefix"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:         "8080",
		LogLevel:     "INFO",
		DataDir:      "data",
		LedgerName:   "global_ledger",
		ClaimTTL:     10 * time.Second,
		RateLimitRPS: 20,
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Insecure:       true,
			ServiceName:    "buildchain",
			MetricInterval: 15 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Store: "fs",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("BUILDCHAIN_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = cfg.DataDir + "/snapshots"
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.LedgerName, "LEDGER_NAME")
	setString(&c.GenesisHash, "GENESIS_HASH")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.JWTSecret, "JWT_SECRET")

	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	setString(&c.Snapshot.Store, "SNAPSHOT_STORE")
	setString(&c.Snapshot.Dir, "SNAPSHOT_DIR")
	setString(&c.Snapshot.S3Bucket, "SNAPSHOT_S3_BUCKET")
	setString(&c.Snapshot.S3Region, "SNAPSHOT_S3_REGION")
	setString(&c.Snapshot.S3Endpoint, "SNAPSHOT_S3_ENDPOINT")
	setString(&c.Snapshot.S3Prefix, "SNAPSHOT_S3_PREFIX")
	setString(&c.Snapshot.GCSBucket, "SNAPSHOT_GCS_BUCKET")
	setString(&c.Snapshot.GCSPrefix, "SNAPSHOT_GCS_PREFIX")

	return errors.Join(
		setBool(&c.VerifyStrict, "VERIFY_STRICT"),
		setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"),
		setBool(&c.Telemetry.Insecure, "OTEL_EXPORTER_OTLP_INSECURE"),
		setInt(&c.RateLimitRPS, "RATE_LIMIT_RPS"),
		setDuration(&c.Telemetry.MetricInterval, "OTEL_METRIC_INTERVAL"),
		setDuration(&c.ClaimTTL, "SEQUENCE_CLAIM_TTL"),
	)
}

// LiteMode reports whether the process runs on local SQLite.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
