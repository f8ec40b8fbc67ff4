package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnvFile is loaded, when present, before the environment is read.
const DefaultEnvFile = ".env"

// Config is the console configuration read from the environment.
type Config struct {
	Service *svcConfig
	Console *consoleConfig
}

type svcConfig struct {
	// Address of the catalog API (the part before /api/...). Empty means
	// "use the client file".
	BaseUrl     string        `envconfig:"CATALOG_API_URL" default:""`
	HTTPTimeout time.Duration `envconfig:"CATALOG_HTTP_TIMEOUT" default:"30s"`
	Strict      bool          `envconfig:"CATALOG_STRICT" default:"false"`
}

type consoleConfig struct {
	LogLevel        string        `envconfig:"CATALOG_LOG_LEVEL" default:"warn"`
	PerPage         int           `envconfig:"CATALOG_PER_PAGE" default:"20"`
	MetricsAddress  string        `envconfig:"CATALOG_METRICS_ADDRESS" default:""`
	RefreshInterval time.Duration `envconfig:"CATALOG_REFRESH_INTERVAL" default:"0s"`
}

// New loads envFile (if it exists) into the process environment and then
// processes the environment. An empty envFile skips the dotenv step.
func New(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if cfg.Console.PerPage <= 0 {
		return nil, fmt.Errorf("CATALOG_PER_PAGE must be positive, got %d", cfg.Console.PerPage)
	}
	return cfg, nil
}
