// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Wizard   WizardConfig   `mapstructure:"wizard"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	MetricsPort     int `mapstructure:"metrics_port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
}

// Addr returns the listen address for the API server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	MaxConnections  int    `mapstructure:"max_connections"`
	MaxIdle         int    `mapstructure:"max_idle"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // milliseconds
	SSLMode         string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Enabled turns the application cache in front of Postgres on or off.
	Enabled bool `mapstructure:"enabled"`
}

// WizardConfig holds the navigation policy of the application wizard.
type WizardConfig struct {
	Surface            string `mapstructure:"surface"`
	MinResidenceMonths int    `mapstructure:"min_residence_months"`
	DebugSkip          bool   `mapstructure:"debug_skip"`
	SubmitValidatesAll bool   `mapstructure:"submit_validates_all"`
	SessionTTL         int    `mapstructure:"session_ttl"`   // milliseconds
	SweepInterval      int    `mapstructure:"sweep_interval"` // milliseconds
	SaveTimeout        int    `mapstructure:"save_timeout"`  // milliseconds
}

type CacheConfig struct {
	TTL int `mapstructure:"ttl"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
