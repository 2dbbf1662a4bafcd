package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/openblind/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its non-empty fields are copied
// into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	MongoURI                     string         `json:"mongo_uri"`
	MongoDatabase                string         `json:"mongo_database"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	EncryptionKey                string         `json:"encryption_key"`
	EncryptionAlgorithm          string         `json:"encryption_algorithm"`
	EncryptionFailMode           string         `json:"encryption_fail_mode"`
	VerifySampleSize             int            `json:"verify_sample_size"`
	MigrationWorkers             int            `json:"migration_workers"`
	FrontendURL                  string         `json:"frontend_url"`
	LogLevel                     string         `json:"log_level"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
}

// parseJson overlays config with the non-empty fields of the JSON file at
// path. An empty path is a no-op.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, time.Duration(c.AccessTokenValidityDuration.Duration))
	setDuration(&config.RefreshTokenValidityDuration, time.Duration(c.RefreshTokenValidityDuration.Duration))
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
	return nil
}
