// Package config loads runtime settings from OPSDESK_* environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvStorageDriver = "OPSDESK_STORAGE_DRIVER"
	EnvSQLitePath    = "OPSDESK_SQLITE_PATH"
	EnvPostgresDSN   = "OPSDESK_POSTGRES_DSN"
	EnvDocumentKey   = "OPSDESK_DOCUMENT_KEY"
	EnvBlobDriver    = "OPSDESK_BLOB_DRIVER"
	EnvBlobFSRoot    = "OPSDESK_BLOB_FS_ROOT"
	EnvS3Bucket      = "OPSDESK_BLOB_S3_BUCKET"
	EnvS3Region      = "OPSDESK_BLOB_S3_REGION"
	EnvS3Endpoint    = "OPSDESK_BLOB_S3_ENDPOINT"
	EnvS3PathStyle   = "OPSDESK_BLOB_S3_PATH_STYLE"
	EnvLogLevel      = "OPSDESK_LOG_LEVEL"
	EnvLogFormat     = "OPSDESK_LOG_FORMAT"
	EnvBcryptCost    = "OPSDESK_BCRYPT_COST"
)

// Config is the full runtime configuration.
type Config struct {
	Storage    Storage
	Log        Log
	BcryptCost int `validate:"gte=4,lte=31"`
}

// Storage selects the snapshot backend.
type Storage struct {
	Driver      string `validate:"oneof=memory sqlite postgres document"`
	SQLitePath  string
	PostgresDSN string
	DocumentKey string
	Blob        Blob
}

// Blob configures the blob store behind the document backend.
type Blob struct {
	Driver      string `validate:"oneof=fs s3 memory"`
	FSRoot      string
	S3Bucket    string `validate:"required_if=Driver s3"`
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Log configures the zap logger.
type Log struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:      "sqlite",
			SQLitePath:  "opsdesk.db",
			DocumentKey: "opsdesk/state",
			Blob:        Blob{Driver: "fs", FSRoot: "./blobdata", S3Region: "us-east-1"},
		},
		Log:        Log{Level: "info", Format: "json"},
		BcryptCost: 12,
	}
}

// Load reads the optional env files (".env" when none are given; missing
// files are ignored) and then the process environment. Variables already set
// in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, falling back to Default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	str := func(key string, target *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*target = v
		}
	}
	str(EnvStorageDriver, &cfg.Storage.Driver)
	str(EnvSQLitePath, &cfg.Storage.SQLitePath)
	str(EnvPostgresDSN, &cfg.Storage.PostgresDSN)
	str(EnvDocumentKey, &cfg.Storage.DocumentKey)
	str(EnvBlobDriver, &cfg.Storage.Blob.Driver)
	str(EnvBlobFSRoot, &cfg.Storage.Blob.FSRoot)
	str(EnvS3Bucket, &cfg.Storage.Blob.S3Bucket)
	str(EnvS3Region, &cfg.Storage.Blob.S3Region)
	str(EnvS3Endpoint, &cfg.Storage.Blob.S3Endpoint)
	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvLogFormat, &cfg.Log.Format)
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if v := strings.TrimSpace(getenv(EnvS3PathStyle)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvS3PathStyle, err)
		}
		cfg.Storage.Blob.S3PathStyle = b
	}
	if v := strings.TrimSpace(getenv(EnvBcryptCost)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvBcryptCost, err)
		}
		cfg.BcryptCost = n
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: %q failed %s", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
