package config

import (
	"os"
	"strings"
)

const envPrefix = "CROSSPOST_"

var platformNames = []string{"facebook", "instagram", "linkedin", "twitter"}

// parseEnv overlays secrets from CROSSPOST_* environment variables:
//
//	CROSSPOST_DATABASE_DSN, CROSSPOST_SECRET_KEY, CROSSPOST_CRON_SECRET,
//	CROSSPOST_ENCRYPTION_KEY, CROSSPOST_REDIS_PASSWORD, CROSSPOST_S3_SECRET_KEY,
//	CROSSPOST_ENVIRONMENT, CROSSPOST_<PLATFORM>_CLIENT_ID,
//	CROSSPOST_<PLATFORM>_CLIENT_SECRET
func parseEnv(config *Config) {
	setString(&config.DatabaseDSN, os.Getenv(envPrefix+"DATABASE_DSN"))
	setString(&config.SecretKey, os.Getenv(envPrefix+"SECRET_KEY"))
	setString(&config.CronSecret, os.Getenv(envPrefix+"CRON_SECRET"))
	setString(&config.EncryptionKey, os.Getenv(envPrefix+"ENCRYPTION_KEY"))
	setString(&config.RedisPassword, os.Getenv(envPrefix+"REDIS_PASSWORD"))
	setString(&config.S3SecretKey, os.Getenv(envPrefix+"S3_SECRET_KEY"))
	setString(&config.Environment, os.Getenv(envPrefix+"ENVIRONMENT"))

	if config.Platforms == nil {
		config.Platforms = map[string]PlatformApp{}
	}
	for _, name := range platformNames {
		key := envPrefix + strings.ToUpper(name)
		app := config.Platforms[name]
		setString(&app.ClientID, os.Getenv(key+"_CLIENT_ID"))
		setString(&app.ClientSecret, os.Getenv(key+"_CLIENT_SECRET"))
		if app.ClientID != "" || app.ClientSecret != "" {
			config.Platforms[name] = app
		}
	}
}
