package config

import (
	"os"
	"path/filepath"
	"reflect"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "tbs"
	configFileName = "config.yaml"
)

// Config holds the options read from the configuration file.
type Config struct {
	Threads                 int          `yaml:"threads,omitempty"`
	Resize                  bool         `yaml:"resize,omitempty"`
	Verify                  bool         `yaml:"verify,omitempty"`
	MaxBoundaryCandidates   int          `yaml:"maxBoundaryCandidates,omitempty"`
	MaxBoundaryCombinations int          `yaml:"maxBoundaryCombinations,omitempty"`
	MetricsFile             string       `yaml:"metricsFile,omitempty"`
	LogFile                 string       `yaml:"logFile,omitempty"`
	Cache                   *CacheConfig `yaml:"cache,omitempty"`
}

// CacheConfig holds options for the scan cache.
type CacheConfig struct {
	// Enabled is a pointer so that an explicit false survives the fallback to defaults.
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// IsEnabled reports whether the cache should be opened.
func (c *CacheConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	cacheCfg := zeroOr(cfg.Cache, defaults.Cache)

	return &Config{
		Threads:                 zeroOr(cfg.Threads, defaults.Threads),
		Resize:                  zeroOr(cfg.Resize, defaults.Resize),
		Verify:                  zeroOr(cfg.Verify, defaults.Verify),
		MaxBoundaryCandidates:   zeroOr(cfg.MaxBoundaryCandidates, defaults.MaxBoundaryCandidates),
		MaxBoundaryCombinations: zeroOr(cfg.MaxBoundaryCombinations, defaults.MaxBoundaryCombinations),
		MetricsFile:             zeroOr(cfg.MetricsFile, defaults.MetricsFile),
		LogFile:                 zeroOr(cfg.LogFile, defaults.LogFile),
		Cache: &CacheConfig{
			Enabled: zeroOr(cacheCfg.Enabled, defaults.Cache.Enabled),
			Path:    zeroOr(cacheCfg.Path, defaults.Cache.Path),
		},
	}, nil
}

func DefaultConfig() Config {
	enabled := cacheEnabled

	return Config{
		Threads:                 threads,
		Resize:                  resize,
		Verify:                  verify,
		MaxBoundaryCandidates:   maxBoundaryCandidates,
		MaxBoundaryCombinations: maxBoundaryCombinations,
		Cache: &CacheConfig{
			Enabled: &enabled,
			Path:    cachePath,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
