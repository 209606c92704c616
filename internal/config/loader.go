package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/example/room-timetable/internal/logging"
	"github.com/example/room-timetable/internal/refresh"
)

// Prefix is prepended to every environment variable name.
const Prefix = "TIMETABLE"

// Storage drivers accepted by DB_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration values for the timetable service.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	DBDriver        string        `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN           string        `envconfig:"DB_DSN" default:"file:timetable.db"`
	Timezone        string        `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	RefreshSchedule string        `envconfig:"REFRESH_SCHEDULE" default:"* * * * *"`
	RefreshTimeout  time.Duration `envconfig:"REFRESH_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	SeedFile        string        `envconfig:"SEED_FILE"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`

	location *time.Location
}

// Location returns the parsed display time zone.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Load reads an optional .env file, then the process environment.
//
// Every invalid key is reported in a single error.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	invalid := make([]string, 0)

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		invalid = append(invalid, Prefix+"_DB_DRIVER")
	}
	if cfg.DBDriver != DriverMemory && strings.TrimSpace(cfg.DBDSN) == "" {
		invalid = append(invalid, Prefix+"_DB_DSN")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		invalid = append(invalid, Prefix+"_TIMEZONE")
	} else {
		cfg.location = loc
	}

	if _, err := refresh.ParseSchedule(cfg.RefreshSchedule); err != nil {
		invalid = append(invalid, Prefix+"_REFRESH_SCHEDULE")
	}
	if cfg.RefreshTimeout <= 0 {
		invalid = append(invalid, Prefix+"_REFRESH_TIMEOUT")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		invalid = append(invalid, Prefix+"_LOG_LEVEL")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, Prefix+"_LOG_FORMAT")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}
