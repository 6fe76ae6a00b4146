package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server process.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig holds the accounting defaults.
type EngineConfig struct {
	// Timezone is the tenant's civil timezone; all date arithmetic and
	// scheduled jobs run in it.
	Timezone string `mapstructure:"timezone"`
	// VacationDays is the default annual entitlement for users without a
	// per-user value.
	VacationDays float64 `mapstructure:"vacation_days"`
	// VacationCarryoverCap limits vacation days rolled into the next year.
	// Zero or negative means uncapped.
	VacationCarryoverCap float64 `mapstructure:"vacation_carryover_cap"`
	// RolloverTime is the local wall-clock HH:MM on January 1 when the
	// year-end job fires.
	RolloverTime string `mapstructure:"rollover_time"`
}

// Load loads configuration from OVERTIME_* environment variables and an
// optional YAML file, with development defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OVERTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("overtime")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/overtime")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.path", "./data/overtime.db")

	v.SetDefault("engine.timezone", "Europe/Berlin")
	v.SetDefault("engine.vacation_days", 30)
	v.SetDefault("engine.vacation_carryover_cap", 0)
	v.SetDefault("engine.rollover_time", "00:05")
}

// RolloverClock parses Engine.RolloverTime into hour and minute.
func (c *Config) RolloverClock() (hour, minute int, err error) {
	if _, err := fmt.Sscanf(c.Engine.RolloverTime, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid rollover_time %q: %w", c.Engine.RolloverTime, err)
	}
	return hour, minute, nil
}
