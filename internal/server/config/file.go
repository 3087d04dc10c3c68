package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/flagx"
	"github.com/dmitrijs2005/crosspost/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the configuration. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
// Empty values leave the current setting untouched.
type fileConfig struct {
	Environment string `json:"environment" yaml:"environment"`

	HTTPAddr    string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	CronSecret                  string         `json:"cron_secret" yaml:"cron_secret"`
	EncryptionKey               string         `json:"encryption_key" yaml:"encryption_key"`
	CORSAllowedOrigins          []string       `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`

	DispatchBatchSize      int            `json:"dispatch_batch_size" yaml:"dispatch_batch_size"`
	DispatchInterval       timex.Duration `json:"dispatch_interval" yaml:"dispatch_interval"`
	StuckPublishingTimeout timex.Duration `json:"stuck_publishing_timeout" yaml:"stuck_publishing_timeout"`
	PublishRatePerMinute   int            `json:"publish_rate_per_minute" yaml:"publish_rate_per_minute"`
	PlatformTimeout        timex.Duration `json:"platform_timeout" yaml:"platform_timeout"`

	OAuthRedirectBase string         `json:"oauth_redirect_base" yaml:"oauth_redirect_base"`
	OAuthStateTTL     timex.Duration `json:"oauth_state_ttl" yaml:"oauth_state_ttl"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`

	S3AccessKey    string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket       string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3PresignTTL   timex.Duration `json:"s3_presign_ttl" yaml:"s3_presign_ttl"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	LogPath   string `json:"log_path" yaml:"log_path"`

	Platforms map[string]PlatformApp `json:"platforms" yaml:"platforms"`
}

// parseFile loads configuration values from the file named by the -c or
// -config flag. Files ending in .yaml or .yml are decoded as YAML, anything
// else as JSON. A missing flag loads nothing; an unreadable or malformed
// file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFile(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *fileConfig) apply(config *Config) {
	setString(&config.Environment, c.Environment)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.CronSecret, c.CronSecret)
	setString(&config.EncryptionKey, c.EncryptionKey)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}

	setInt(&config.DispatchBatchSize, c.DispatchBatchSize)
	setDuration(&config.DispatchInterval, c.DispatchInterval)
	setDuration(&config.StuckPublishingTimeout, c.StuckPublishingTimeout)
	setInt(&config.PublishRatePerMinute, c.PublishRatePerMinute)
	setDuration(&config.PlatformTimeout, c.PlatformTimeout)

	setString(&config.OAuthRedirectBase, c.OAuthRedirectBase)
	setDuration(&config.OAuthStateTTL, c.OAuthStateTTL)

	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)

	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.S3PresignTTL, c.S3PresignTTL)

	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogPath, c.LogPath)

	if config.Platforms == nil {
		config.Platforms = map[string]PlatformApp{}
	}
	for name, app := range c.Platforms {
		config.Platforms[strings.ToLower(name)] = app
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
