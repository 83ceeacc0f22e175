// Package config loads flakereport.yaml through viper, layering .env files
// and FLAKEREPORT_* environment variables over built-in defaults.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"flakereport/internal/observability"
	"flakereport/internal/period"
	"flakereport/internal/privacy"
	"flakereport/internal/warehouse"
	"flakereport/pkg/errors"
	"flakereport/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. FLAKEREPORT_WAREHOUSE_DSN
const EnvPrefix = "FLAKEREPORT"

const redacted = "****"

// GetConfigPath returns the per-user configuration directory
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".flakereport")
}

// Load reads the configuration. An explicit configFile must exist; otherwise
// flakereport.yaml is searched in the working directory and GetConfigPath,
// and defaults apply when neither has one.
func Load(configFile string) (*models.Config, error) {
	loadDotEnv(configFile)

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("flakereport")
		v.AddConfigPath(".")
		v.AddConfigPath(GetConfigPath())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case stderrors.As(err, &notFound) && configFile == "":
			// defaults and environment only
		case stderrors.As(err, &notFound) || stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "Configuration file not found").
				WithContext("file", configFile)
		default:
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read configuration").
				WithContext("file", configFile)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode configuration")
	}
	if cfg.Reports == nil {
		cfg.Reports = make(map[string]models.Report)
	}
	return &cfg, nil
}

func loadDotEnv(configFile string) {
	paths := []string{".env", filepath.Join(GetConfigPath(), ".env")}
	if configFile != "" {
		paths = append([]string{filepath.Join(filepath.Dir(configFile), ".env")}, paths...)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("warehouse.driver", warehouse.DriverSnowflake)
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.account", "")
	v.SetDefault("warehouse.username", "")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.role", "")
	v.SetDefault("warehouse.warehouse", "")
	v.SetDefault("warehouse.database", "")
	v.SetDefault("warehouse.schema", "")
	v.SetDefault("warehouse.timeout", "5m")
	v.SetDefault("warehouse.max_conns", 10)

	v.SetDefault("engine.as_of", "yesterday")
	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.partition_size", 50000)

	v.SetDefault("privacy.salt", "")

	v.SetDefault("output.sinks", []string{"stdout"})
	v.SetDefault("output.s3.endpoint", "")
	v.SetDefault("output.s3.region", "")
	v.SetDefault("output.s3.access_key", "")
	v.SetDefault("output.s3.secret_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.textfile", "")
}

// Validate checks everything that can be checked before connecting
func Validate(cfg *models.Config) error {
	if _, err := WarehouseConfig(cfg); err != nil {
		return err
	}

	loc, err := Location(cfg)
	if err != nil {
		return err
	}
	if _, err := period.ReferenceDate(cfg.Engine.AsOf, time.Now(), loc); err != nil {
		return err
	}

	if cfg.Engine.Workers < 0 {
		return errors.ValidationError("engine.workers", cfg.Engine.Workers, "must not be negative")
	}
	if cfg.Engine.PartitionSize < 0 {
		return errors.ValidationError("engine.partition_size", cfg.Engine.PartitionSize, "must not be negative")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.ValidationError("log.level", cfg.Log.Level, "must be debug, info, warn or error")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "console":
	default:
		return errors.ValidationError("log.format", cfg.Log.Format, "must be json or console")
	}

	if len(cfg.Output.Sinks) == 0 {
		return errors.ConfigError("At least one output sink is required", "output.sinks")
	}
	return nil
}

// WarehouseConfig converts the warehouse section into a connection config
func WarehouseConfig(cfg *models.Config) (warehouse.Config, error) {
	w := cfg.Warehouse
	var timeout time.Duration
	if w.Timeout != "" {
		d, err := time.ParseDuration(w.Timeout)
		if err != nil {
			return warehouse.Config{}, errors.ValidationError("warehouse.timeout", w.Timeout, err.Error())
		}
		timeout = d
	}

	wc := warehouse.Config{
		Driver:    w.Driver,
		DSN:       w.DSN,
		Account:   w.Account,
		Username:  w.Username,
		Password:  w.Password,
		Database:  w.Database,
		Schema:    w.Schema,
		Warehouse: w.Warehouse,
		Role:      w.Role,
		Timeout:   timeout,
		MaxConns:  w.MaxConns,
	}
	if err := warehouse.ValidateConfig(wc); err != nil {
		return warehouse.Config{}, errors.ConfigError(fmt.Sprintf("Invalid warehouse configuration: %v", err), "warehouse")
	}
	return wc, nil
}

// Location loads the engine time zone
func Location(cfg *models.Config) (*time.Location, error) {
	name := cfg.Engine.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.ValidationError("engine.timezone", name, err.Error())
	}
	return loc, nil
}

// LoggerConfig maps the log section onto the logger
func LoggerConfig(cfg *models.Config, version string) observability.LoggerConfig {
	return observability.LoggerConfig{
		Level:   observability.LogLevelFromString(cfg.Log.Level),
		Service: "flakereport",
		Version: version,
		Format:  cfg.Log.Format,
	}
}

// Redacted returns a copy safe to print: secrets are masked and DSN
// passwords hidden.
func Redacted(cfg *models.Config) models.Config {
	out := *cfg
	out.Warehouse.DSN = privacy.RedactDSN(cfg.Warehouse.DSN)
	out.Warehouse.Password = mask(cfg.Warehouse.Password)
	out.Privacy.Salt = mask(cfg.Privacy.Salt)
	out.Output.S3.SecretKey = mask(cfg.Output.S3.SecretKey)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
