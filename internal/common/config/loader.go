// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validSurfaces = map[string]bool{"desktop": true, "mobile": true}

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// on top and applies environment overrides such as WIZARD_DEBUG_SKIP.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "renter-wizard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 15000)
	v.SetDefault("server.shutdown_timeout", 10000)

	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.max_connections", 25)
	v.SetDefault("database.postgres.max_idle", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300000)
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.enabled", true)

	v.SetDefault("wizard.surface", "desktop")
	v.SetDefault("wizard.min_residence_months", 24)
	v.SetDefault("wizard.debug_skip", false)
	v.SetDefault("wizard.submit_validates_all", true)
	v.SetDefault("wizard.session_ttl", 1800000)
	v.SetDefault("wizard.sweep_interval", 60000)
	v.SetDefault("wizard.save_timeout", 10000)

	v.SetDefault("cache.ttl", 300000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func decode(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the conventional DB_* variables.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults repairs zero values left by explicit empty entries in the file.
func applyDefaults(cfg *Config) {
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Wizard.Surface == "" {
		cfg.Wizard.Surface = "desktop"
	}
	if cfg.Wizard.MinResidenceMonths == 0 {
		cfg.Wizard.MinResidenceMonths = 24
	}
	if cfg.Wizard.SaveTimeout == 0 {
		cfg.Wizard.SaveTimeout = 10000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when the cache is enabled")
	}
	if !validSurfaces[cfg.Wizard.Surface] {
		return fmt.Errorf("wizard.surface must be desktop or mobile, got %q", cfg.Wizard.Surface)
	}
	if cfg.Wizard.MinResidenceMonths < 0 {
		return fmt.Errorf("wizard.min_residence_months must not be negative")
	}
	if cfg.Wizard.SessionTTL <= 0 {
		return fmt.Errorf("wizard.session_ttl must be positive")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
