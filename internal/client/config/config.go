package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the course alerts CLI.
//
// Fields:
//   - BackendURL: base URL of the alerts API, e.g. https://api.example.com.
//   - DatabasePath: SQLite file holding the stored credentials.
//   - RequestTimeout: upper bound for one HTTP exchange.
//   - SearchDebounce: quiet period before a course search is sent.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	BackendURL     string        `env:"BACKEND_URL"`
	DatabasePath   string        `env:"DB_PATH"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	SearchDebounce time.Duration `env:"SEARCH_DEBOUNCE"`
	LogLevel       string        `env:"LOG_LEVEL"`
}

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "COURSE_ALERTS_"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:8000"
	c.DatabasePath = defaultDatabasePath()
	c.RequestTimeout = 15 * time.Second
	c.SearchDebounce = 300 * time.Millisecond
	c.LogLevel = "warn"
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "course-alerts.db"
	}
	return filepath.Join(dir, "course-alerts", "client.db")
}

// LoadConfig builds the configuration from the process arguments and
// environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], nil)
}

// Load applies defaults, then the JSON file named by -c/-config, then
// environment variables, then flags. Later sources take precedence. A nil
// environ reads the process environment.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SearchDebounce < 0 {
		return fmt.Errorf("search debounce must not be negative, got %s", c.SearchDebounce)
	}
	return nil
}
