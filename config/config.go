package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Environment variables carrying secrets. These are never read from the yaml file.
const (
	EnvAPIKey         = "DATACRAZY_API_KEY"
	EnvDatabaseURL    = "SUPABASE_DB_URL"
	EnvDatabaseDriver = "SUPABASE_DB_DRIVER"
	EnvDBPassword     = "SUPABASE_DB_PASSWORD"
	EnvServiceRoleKey = "SUPABASE_SERVICE_ROLE_KEY"
)

// Pre-flight errors. Any of these aborts a run before work begins.
var (
	ErrMissingAPIKey      = errors.New(EnvAPIKey + " environment variable is not set")
	ErrMissingDatabaseURL = errors.New(EnvDatabaseURL + " environment variable is not set")
	ErrMissingCredential  = errors.New("no database credential: set it in " + EnvDatabaseURL +
		" or in " + EnvDBPassword + "/" + EnvServiceRoleKey)
)

// EnvFiles are loaded in order if present. Earlier files win, and neither overrides
// variables already set in the environment.
var EnvFiles = []string{".env.local", ".env"}

// Config represents the entire application configuration.
type Config struct {
	DumpDir   string          `yaml:"dump_dir"`
	ErrorsDir string          `yaml:"errors_dir"`
	DataCrazy DataCrazyConfig `yaml:"datacrazy"`
	Target    TargetConfig    `yaml:"target"`
}

// DataCrazyConfig holds the source API settings.
type DataCrazyConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PageSize     int           `yaml:"page_size"`
	RequestDelay time.Duration `yaml:"request_delay"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	Timeout      time.Duration `yaml:"timeout"`
	APIKey       string        `yaml:"-"`
}

// TargetConfig holds the ZmobCRM database settings.
type TargetConfig struct {
	Driver            string `yaml:"driver"`
	BatchSize         int    `yaml:"batch_size"`
	SchemaDir         string `yaml:"schema_dir"`
	DisableTriggerRPC string `yaml:"disable_trigger_rpc"`
	EnableTriggerRPC  string `yaml:"enable_trigger_rpc"`
	DatabaseURL       string `yaml:"-"`
	Credential        string `yaml:"-"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DumpDir:   filepath.Join("data", "dumps"),
		ErrorsDir: "data",
		DataCrazy: DataCrazyConfig{
			BaseURL:      "https://api.g1.datacrazy.io/api/v1",
			PageSize:     100,
			RequestDelay: 1100 * time.Millisecond,
			MaxBackoff:   30 * time.Second,
			Timeout:      60 * time.Second,
		},
		Target: TargetConfig{
			Driver:            "postgres",
			BatchSize:         500,
			DisableTriggerRPC: "_migration_disable_deal_trigger",
			EnableTriggerRPC:  "_migration_enable_deal_trigger",
		},
	}
}

// Load loads the configuration from the given yaml file, falling back to Default for
// any value the file leaves out. An empty path means defaults only. Secrets are then
// read from the environment after loading EnvFiles.
func Load(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", filePath)
		}
		configFile, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(configFile, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse YAML config file: %w", err)
		}
	}

	if err := loadEnvFiles(EnvFiles); err != nil {
		return nil, err
	}
	cfg.readEnv()

	if err := validateAndPrepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads each existing env file. godotenv.Load does not override
// variables that are already set, so the first file to define a key wins.
func loadEnvFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("could not load env file %s: %w", f, err)
		}
	}
	return nil
}

// readEnv fills the secret fields from the environment.
func (c *Config) readEnv() {
	c.DataCrazy.APIKey = os.Getenv(EnvAPIKey)
	c.Target.DatabaseURL = os.Getenv(EnvDatabaseURL)
	if d := os.Getenv(EnvDatabaseDriver); d != "" {
		c.Target.Driver = d
	}
	c.Target.Credential = os.Getenv(EnvDBPassword)
	if c.Target.Credential == "" {
		c.Target.Credential = os.Getenv(EnvServiceRoleKey)
	}
}

// validateAndPrepare checks ranges on the non-secret settings.
func validateAndPrepare(c *Config) error {
	if c.DumpDir == "" {
		return errors.New("dump_dir is missing")
	}
	if c.ErrorsDir == "" {
		return errors.New("errors_dir is missing")
	}

	dc := &c.DataCrazy
	if dc.BaseURL == "" {
		return errors.New("datacrazy.base_url is missing")
	}
	if _, err := url.Parse(dc.BaseURL); err != nil {
		return fmt.Errorf("invalid datacrazy.base_url: %w", err)
	}
	if dc.PageSize < 1 {
		return fmt.Errorf("datacrazy.page_size must be positive, got %d", dc.PageSize)
	}
	if dc.RequestDelay < 0 {
		return errors.New("datacrazy.request_delay cannot be negative")
	}
	if dc.MaxBackoff <= 0 {
		return errors.New("datacrazy.max_backoff must be positive")
	}

	tc := &c.Target
	switch tc.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("target.driver must be one of postgres or sqlite, got %q", tc.Driver)
	}
	if tc.BatchSize < 1 {
		return fmt.Errorf("target.batch_size must be at least 1, got %d", tc.BatchSize)
	}
	if tc.DisableTriggerRPC == "" || tc.EnableTriggerRPC == "" {
		return errors.New("target trigger rpc names are missing")
	}
	return nil
}

// RequireExtractor reports whether the settings needed by the dump command are
// present.
func (c *Config) RequireExtractor() error {
	if c.DataCrazy.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// RequireLoader reports whether the database settings needed by the migrate command
// are present. A sqlite target needs only a path.
func (c *Config) RequireLoader() error {
	if c.Target.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Target.Driver == "sqlite" {
		return nil
	}
	if c.Target.Credential != "" {
		return nil
	}
	u, err := url.Parse(c.Target.DatabaseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvDatabaseURL, err)
	}
	if _, ok := u.User.Password(); !ok {
		return ErrMissingCredential
	}
	return nil
}

// DSN returns the data source name for the target database, with the credential
// placed in the URL userinfo when it was supplied separately.
func (c *Config) DSN() (string, error) {
	if c.Target.Driver == "sqlite" || c.Target.Credential == "" {
		return c.Target.DatabaseURL, nil
	}
	u, err := url.Parse(c.Target.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", EnvDatabaseURL, err)
	}
	username := "postgres"
	if u.User != nil && u.User.Username() != "" {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, c.Target.Credential)
	return u.String(), nil
}
