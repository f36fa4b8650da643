package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// DefaultJWTSecret 仅允许在 dev 环境使用。
const DefaultJWTSecret = "dev-secret-change-me"

// 存储与上传驱动名。
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	BlobDisk       = "disk"
	BlobS3         = "s3"
)

var defaultDSN = map[string]string{
	DriverPostgres: "host=localhost user=postgres password=postgres dbname=pairchat port=5432 sslmode=disable TimeZone=UTC",
	DriverSQLite:   "file:data/pairchat.db?_busy_timeout=5000",
}

type Config struct {
	Port           string        `env:"APP_PORT,default=8080"`
	Env            string        `env:"APP_ENV,default=dev"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	DatabaseDriver string        `env:"DATABASE_DRIVER,default=postgres"`
	DatabaseDSN    string        `env:"DATABASE_DSN"`
	BadgerPath     string        `env:"BADGER_PATH,default=data/badger"`
	JWTSecret      string        `env:"JWT_SECRET,default=dev-secret-change-me"`
	SessionTTL     time.Duration `env:"SESSION_TTL,default=168h"`
	PasswordHasher string        `env:"PASSWORD_HASHER,default=bcrypt"`
	ClientURL      string        `env:"CLIENT_URL"`

	BlobDriver    string `env:"BLOB_DRIVER,default=disk"`
	UploadDir     string `env:"UPLOAD_DIR,default=data/uploads"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	S3Bucket      string `env:"S3_BUCKET"`
	S3Region      string `env:"S3_REGION,default=us-east-1"`
	S3Endpoint    string `env:"S3_ENDPOINT"`
	S3AccessKey   string `env:"S3_ACCESS_KEY"`
	S3SecretKey   string `env:"S3_SECRET_KEY"`
	S3PublicURL   string `env:"S3_PUBLIC_URL"`
}

// IsDev 决定 cookie 是否可以不带 Secure，以及日志是否使用控制台格式。
func (c Config) IsDev() bool { return c.Env == "dev" }

func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = defaultDSN[cfg.DatabaseDriver]
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	var errs []error
	if cfg.Port == "" {
		errs = append(errs, errors.New("APP_PORT is required"))
	}
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
		if cfg.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required"))
		}
	case DriverBadger:
		if cfg.BadgerPath == "" {
			errs = append(errs, errors.New("BADGER_PATH is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver))
	}
	if cfg.JWTSecret == "" || (cfg.JWTSecret == DefaultJWTSecret && !cfg.IsDev()) {
		errs = append(errs, errors.New("JWT_SECRET must be set outside dev"))
	}
	if cfg.SessionTTL < 0 {
		errs = append(errs, errors.New("SESSION_TTL must not be negative"))
	}
	switch cfg.BlobDriver {
	case BlobDisk:
		if cfg.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required"))
		}
	case BlobS3:
		if cfg.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver))
	}
	return errors.Join(errs...)
}
