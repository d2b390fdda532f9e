package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/filedock/database"
	filedockhttp "github.com/sagarc03/filedock/http"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for filedock.
type Config struct {
	Env         string                  `mapstructure:"env" yaml:"env" validate:"omitempty,oneof=dev development prod production"`
	Server      ServerConfig            `mapstructure:"server" yaml:"server"`
	Database    database.Config         `mapstructure:"database" yaml:"database"`
	ObjectStore ObjectStoreConfig       `mapstructure:"objectstore" yaml:"objectstore"`
	Presign     PresignConfig           `mapstructure:"presign" yaml:"presign"`
	Service     ServiceConfig           `mapstructure:"service" yaml:"service"`
	Sweep       SweepConfig             `mapstructure:"sweep" yaml:"sweep"`
	Auth        AuthConfig              `mapstructure:"auth" yaml:"auth"`
	Webhook     WebhookConfig           `mapstructure:"webhook" yaml:"webhook"`
	CORS        filedockhttp.CORSConfig `mapstructure:"cors" yaml:"cors"`
	Log         LogConfig               `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
}

// ObjectStoreConfig selects and configures the object store backend.
type ObjectStoreConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend" validate:"required,oneof=s3 stowry"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint" validate:"required_if=Backend stowry"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket" validate:"required_if=Backend s3"`
	Region       string `mapstructure:"region" yaml:"region"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"-"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// PresignConfig holds presigned URL settings.
type PresignConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"min=1s"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	// CleanupTimeout bounds best-effort object deletes after a request returns.
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout" validate:"min=1s"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=256"`
}

// SweepConfig controls the background reconciliation sweep.
type SweepConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=1s"`
	DeletingAfter time.Duration `mapstructure:"deleting_after" yaml:"deleting_after" validate:"min=0"`
	// AbandonAfter of zero disables abandoning stale PENDING uploads.
	AbandonAfter time.Duration `mapstructure:"abandon_after" yaml:"abandon_after" validate:"min=0"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1,max=10000"`
}

// AuthConfig holds caller identity verification settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"-"`
	UserClaim string        `mapstructure:"user_claim" yaml:"user_claim" validate:"required"`
	Leeway    time.Duration `mapstructure:"leeway" yaml:"leeway" validate:"min=0"`
}

// WebhookConfig holds storage notification endpoint settings.
type WebhookConfig struct {
	AuthToken string `mapstructure:"auth_token" yaml:"-"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
}

// IsProd reports whether the config targets a production environment.
func (c *Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type": "database.type",
	"db-dsn":  "database.dsn",
	"port":    "server.port",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Keys with
// empty defaults are listed so AutomaticEnv can populate them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "filedock.db")
	v.SetDefault("database.tables.files", "files")

	v.SetDefault("objectstore.backend", "s3")
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.bucket", "uploads")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.use_path_style", false)

	v.SetDefault("presign.ttl", "5m")

	v.SetDefault("service.cleanup_timeout", "30s")
	v.SetDefault("service.concurrency", 8)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", "5m")
	v.SetDefault("sweep.deleting_after", "15m")
	v.SetDefault("sweep.abandon_after", "0s")
	v.SetDefault("sweep.batch_size", 100)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.user_claim", "userId")
	v.SetDefault("auth.leeway", "0s")

	v.SetDefault("webhook.auth_token", "")

	v.SetDefault("cors.enabled", false)

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	v.SetEnvPrefix("FILEDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.Database.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
