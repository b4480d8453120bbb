package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	// RootPath is the directory holding projects/.
	RootPath string `koanf:"root_path"`
	Workers  int    `koanf:"workers"`

	Log            LogConfig            `koanf:"log"`
	Classification ClassificationConfig `koanf:"classification"`
	Sweep          SweepConfig          `koanf:"sweep"`
	Notification   NotificationConfig   `koanf:"notification"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ClassificationConfig struct {
	Inits             int     `koanf:"inits"`
	MaxIter           int     `koanf:"max_iter"`
	Seed              uint64  `koanf:"seed"`
	Seeded            bool    `koanf:"seeded"`
	DegenerateColumns string  `koanf:"degenerate_columns"`
	Sigma             float64 `koanf:"sigma"`
}

type SweepConfig struct {
	MinK int `koanf:"min_k"`
	MaxK int `koanf:"max_k"`
}

type NotificationConfig struct {
	ErrorURL   string `koanf:"error_url"`
	SuccessURL string `koanf:"success_url"`
}

func defaultConfig() Config {
	return Config{
		RootPath: ".",
		Workers:  4,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Classification: ClassificationConfig{
			Inits:             10,
			MaxIter:           300,
			Seed:              1,
			Seeded:            true,
			DegenerateColumns: "error",
		},
		Sweep: SweepConfig{
			MinK: 2,
			MaxK: 14,
		},
	}
}

var envMappings = map[string]string{
	"root_path":                        "root_path",
	"workers":                          "workers",
	"log_level":                        "log.level",
	"log_format":                       "log.format",
	"kmeans_inits":                     "classification.inits",
	"kmeans_max_iter":                  "classification.max_iter",
	"classification_seed":              "classification.seed",
	"classification_seeded":            "classification.seeded",
	"degenerate_columns":               "classification.degenerate_columns",
	"smoothing_sigma":                  "classification.sigma",
	"sweep_min_k":                      "sweep.min_k",
	"sweep_max_k":                      "sweep.max_k",
	"discord_error_notification_url":   "notification.error_url",
	"discord_success_notification_url": "notification.success_url",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load reads .env files first (missing ones are ignored), then layers
// defaults, the optional YAML file and environment variables.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) Validate() error {
	if c.RootPath == "" {
		return errors.New("root_path must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch c.Classification.DegenerateColumns {
	case "error", "passthrough":
	default:
		return fmt.Errorf("degenerate_columns must be error or passthrough, got %q", c.Classification.DegenerateColumns)
	}
	if c.Classification.Inits < 1 {
		return fmt.Errorf("classification inits must be positive, got %d", c.Classification.Inits)
	}
	if c.Classification.MaxIter < 1 {
		return fmt.Errorf("classification max_iter must be positive, got %d", c.Classification.MaxIter)
	}
	if c.Classification.Sigma < 0 {
		return fmt.Errorf("smoothing sigma must not be negative, got %v", c.Classification.Sigma)
	}
	if c.Sweep.MinK < 1 || c.Sweep.MaxK < c.Sweep.MinK {
		return fmt.Errorf("invalid sweep range [%d, %d]", c.Sweep.MinK, c.Sweep.MaxK)
	}
	return nil
}
