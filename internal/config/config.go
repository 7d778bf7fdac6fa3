// Package config loads server configuration from environment variables
// and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr     string        `mapstructure:"listen_addr" validate:"required"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`

	// Storage backend ("s3" or "memory")
	StorageBackend string `mapstructure:"storage_backend" validate:"oneof=s3 memory"`

	// S3 storage
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Bucket    string `mapstructure:"s3_bucket" validate:"required_if=StorageBackend s3"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Region    string `mapstructure:"s3_region" validate:"required_if=StorageBackend s3"`

	// CDN (optional)
	CDNDomain    string `mapstructure:"cdn_domain" validate:"omitempty,hostname_port|fqdn"`
	AlwaysUseCDN bool   `mapstructure:"always_use_cdn"`

	// Identity and access
	JWTSecret            string `mapstructure:"jwt_secret"`
	OwnerEmail           string `mapstructure:"owner_email" validate:"required,email"`
	AllowAnonymousAccess bool   `mapstructure:"allow_anonymous_access"`

	// Drive
	CacheTTL        time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	StorageCapacity int64         `mapstructure:"storage_capacity" validate:"gt=0"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size" validate:"gt=0"`
	URLExpiry       time.Duration `mapstructure:"url_expiry" validate:"gt=0"`
	RecentScanSize  int           `mapstructure:"recent_scan_size" validate:"gt=0,lte=1000"`
}

var validate = validator.New()

// Load reads configuration. Values come from, in increasing priority:
// defaults, configFile (when non-empty) and environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("request_timeout", 30*time.Second)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("storage_backend", "s3")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_region", "us-east-1")

	v.SetDefault("cdn_domain", "")
	v.SetDefault("always_use_cdn", false)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("owner_email", "owner@example.com")
	v.SetDefault("allow_anonymous_access", true)

	v.SetDefault("cache_ttl", 5*time.Second)
	v.SetDefault("storage_capacity", int64(1024*1024*1024)) // 1GB
	v.SetDefault("max_upload_size", int64(100*1024*1024))   // 100MB
	v.SetDefault("url_expiry", 60*time.Minute)
	v.SetDefault("recent_scan_size", 1000)
}

// Validate checks struct tags and reports the first failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}
