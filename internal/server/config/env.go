package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dmitrijs2005/openblind/internal/timex"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// EnvConfig is the environment-variable view of Config. Unset variables
// leave the corresponding Config field untouched.
type EnvConfig struct {
	EndpointAddrHTTP             string        `env:"HTTP_ADDR"`
	EndpointAddrGRPC             string        `env:"GRPC_ADDR"`
	DatabaseDSN                  string        `env:"DATABASE_DSN"`
	MongoURI                     string        `env:"MONGODB_URI"`
	MongoDatabase                string        `env:"MONGODB_DATABASE"`
	SecretKey                    string        `env:"JWT_SECRET"`
	AccessTokenValidityDuration  string        `env:"JWT_EXPIRES_IN"`
	RefreshTokenValidityDuration string        `env:"JWT_REFRESH_EXPIRES_IN"`
	EncryptionKey                string        `env:"ENCRYPTION_KEY"`
	EncryptionAlgorithm          string        `env:"ENCRYPTION_ALGORITHM"`
	EncryptionFailMode           string        `env:"ENCRYPTION_FAIL_MODE"`
	VerifySampleSize             int           `env:"VERIFY_SAMPLE_SIZE"`
	MigrationWorkers             int           `env:"MIGRATION_WORKERS"`
	FrontendURL                  string        `env:"FRONTEND_URL"`
	LogLevel                     string        `env:"LOG_LEVEL"`
	S3RootUser                   string        `env:"S3_ROOT_USER"`
	S3RootPassword               string        `env:"S3_ROOT_PASSWORD"`
	S3Bucket                     string        `env:"S3_BUCKET"`
	S3Region                     string        `env:"S3_REGION"`
	S3BaseEndpoint               string        `env:"S3_BASE_ENDPOINT"`
}

// parseEnv loads the given .env files (missing ones are ignored; variables
// already set in the process win) and overlays the environment onto config.
// It panics on malformed values or a malformed .env file, like the other
// layers. Token lifetimes accept day units ("7d").
func parseEnv(config *Config, files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(fmt.Errorf("%s: %w", f, err))
		}
	}

	c := &EnvConfig{}
	if err := cleanenv.ReadEnv(c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, mustDuration("JWT_EXPIRES_IN", c.AccessTokenValidityDuration))
	setDuration(&config.RefreshTokenValidityDuration, mustDuration("JWT_REFRESH_EXPIRES_IN", c.RefreshTokenValidityDuration))
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.EncryptionAlgorithm, c.EncryptionAlgorithm)
	setString(&config.EncryptionFailMode, c.EncryptionFailMode)
	setInt(&config.VerifySampleSize, c.VerifySampleSize)
	setInt(&config.MigrationWorkers, c.MigrationWorkers)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func mustDuration(name, v string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := timex.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", name, err))
	}
	return d
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

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
