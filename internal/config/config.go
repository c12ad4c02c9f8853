// Package config loads service configuration from an optional YAML file,
// a .env file and PARKING_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"parking-service/internal/domain/parking"
)

const EnvPrefix = "PARKING"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Parking  ParkingConfig  `mapstructure:"parking"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig points at Postgres. An empty DSN runs the service on the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type CameraConfig struct {
	ID       string `mapstructure:"id"`
	Model    string `mapstructure:"model"`
	GateRole string `mapstructure:"gate_role"`
}

// MonitorConfig tunes detection intake. AuditRetention bounds how long gate
// events are kept; zero keeps them forever.
type MonitorConfig struct {
	MinConfidence        float64       `mapstructure:"min_confidence"`
	Debounce             time.Duration `mapstructure:"debounce"`
	AuditRetention       time.Duration `mapstructure:"audit_retention"`
	AuditCleanupInterval time.Duration `mapstructure:"audit_cleanup_interval"`
}

// ParkingConfig seeds the stored parking configuration on first start.
type ParkingConfig struct {
	TotalFloors  int     `mapstructure:"total_floors"`
	CarCapacity  int     `mapstructure:"car_capacity"`
	BikeCapacity int     `mapstructure:"bike_capacity"`
	CarRate      float64 `mapstructure:"car_rate"`
	BikeRate     float64 `mapstructure:"bike_rate"`
	GraceMinutes int     `mapstructure:"grace_minutes"`
}

func (p ParkingConfig) Seed() parking.Config {
	return parking.Config{
		TotalFloors:  p.TotalFloors,
		CarCapacity:  p.CarCapacity,
		BikeCapacity: p.BikeCapacity,
		CarRate:      p.CarRate,
		BikeRate:     p.BikeRate,
		GraceMinutes: p.GraceMinutes,
	}
}

// Load reads configuration. path may be empty when no config file is used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	seed := parking.DefaultConfig()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "parking-service")

	v.SetDefault("camera.id", "gate-1")
	v.SetDefault("camera.model", "generic")
	v.SetDefault("camera.gate_role", string(parking.RoleAuto))

	v.SetDefault("monitor.min_confidence", 0.0)
	v.SetDefault("monitor.debounce", time.Duration(0))
	v.SetDefault("monitor.audit_retention", 30*24*time.Hour)
	v.SetDefault("monitor.audit_cleanup_interval", time.Hour)

	v.SetDefault("parking.total_floors", seed.TotalFloors)
	v.SetDefault("parking.car_capacity", seed.CarCapacity)
	v.SetDefault("parking.bike_capacity", seed.BikeCapacity)
	v.SetDefault("parking.car_rate", seed.CarRate)
	v.SetDefault("parking.bike_rate", seed.BikeRate)
	v.SetDefault("parking.grace_minutes", seed.GraceMinutes)
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Server.Mode == "release" && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required in release mode")
	}
	if _, err := parking.ParseGateRole(c.Camera.GateRole); err != nil {
		return fmt.Errorf("camera.gate_role: %w", err)
	}
	if c.Monitor.MinConfidence < 0 || c.Monitor.MinConfidence > 1 {
		return errors.New("monitor.min_confidence must be between 0 and 1")
	}
	if c.Monitor.Debounce < 0 {
		return errors.New("monitor.debounce cannot be negative")
	}
	if c.Monitor.AuditRetention < 0 {
		return errors.New("monitor.audit_retention cannot be negative")
	}
	if err := c.Parking.Seed().Validate(); err != nil {
		return fmt.Errorf("parking: %w", err)
	}
	return nil
}

// GateRole returns the validated camera gate role.
func (c *Config) GateRole() parking.GateRole {
	role, err := parking.ParseGateRole(c.Camera.GateRole)
	if err != nil {
		return parking.RoleAuto
	}
	return role
}

func (c *Config) UsesMemoryStore() bool {
	return c.Database.DSN == ""
}
