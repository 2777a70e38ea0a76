package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, populated from the environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Service    ServiceConfig    `envPrefix:"SERVICE_"`
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Store      StoreConfig      `envPrefix:"STORE_"`
	Database   DatabaseConfig   `envPrefix:"DB_"`
	NATS       NATSConfig       `envPrefix:"NATS_"`
	Directory  DirectoryConfig  `envPrefix:"DIRECTORY_"`
	Policy     PolicyConfig     `envPrefix:"POLICY_"`
	Escalation EscalationConfig `envPrefix:"ESCALATION_"`
}

// ServiceConfig identifies the service in logs and events.
type ServiceConfig struct {
	Name        string `env:"NAME" envDefault:"approvals"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Version     string `env:"VERSION" envDefault:"dev"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RateLimit       float64       `env:"RATE_LIMIT" envDefault:"50"`
	RateBurst       int           `env:"RATE_BURST" envDefault:"100"`
}

// StoreConfig selects the request store backend.
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"postgres"` // postgres | memory
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string        `env:"HOST" envDefault:"localhost"`
	Port        int           `env:"PORT" envDefault:"5432"`
	User        string        `env:"USER" envDefault:"postgres"`
	Password    string        `env:"PASSWORD" envDefault:"postgres"`
	Database    string        `env:"NAME" envDefault:"approvals"`
	SSLMode     string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnTime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"MAX_CONN_IDLE" envDefault:"30m"`
	HealthCheck time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// NATSConfig holds messaging settings. An empty URL disables publishing.
type NATSConfig struct {
	URL string `env:"URL"`
}

// DirectoryConfig selects and configures the org-directory backend.
type DirectoryConfig struct {
	Driver  string        `env:"DRIVER" envDefault:"http"` // http | memory
	BaseURL string        `env:"URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// PolicyConfig points at an optional YAML file overriding the built-in
// approval chain policies.
type PolicyConfig struct {
	File string `env:"FILE"`
}

// EscalationConfig controls the SLA sweeper.
type EscalationConfig struct {
	SLA           time.Duration `env:"SLA" envDefault:"48h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	Reassign      bool          `env:"REASSIGN" envDefault:"true"`
	TargetRole    string        `env:"TARGET_ROLE" envDefault:"admin"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
