package minnow

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config represents the minnow configuration
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Simplify SimplifyConfig `yaml:"simplify"`
	Query    QueryConfig    `yaml:"query"`
	OutputDir string        `yaml:"output_dir"`
}

// ServiceConfig holds the connection settings for the analysis service
type ServiceConfig struct {
	Address string        `yaml:"address"`
	Network string        `yaml:"network"`
	Timeout time.Duration `yaml:"timeout"`
	// Retries counts additional attempts after the first failed status probe
	Retries int `yaml:"retries"`
}

// SimplifyConfig controls the boolean simplification pass
type SimplifyConfig struct {
	// Bools enables boolean simplification of every policy expression.
	// Pointer to distinguish between unset and false; enabled by default.
	Bools *bool `yaml:"bools"`
}

// BoolsEnabled returns true unless bools: false was set explicitly
func (s *SimplifyConfig) BoolsEnabled() bool {
	return s.Bools == nil || *s.Bools
}

// QueryConfig represents query execution settings
type QueryConfig struct {
	MaxHops   int    `yaml:"max_hops"`
	CachePath string `yaml:"cache_path"`
}

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// Load .env files first
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	// Return default configuration if the file doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := getDefaultConfig()
		expandConfigEnvVars(config)

		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML with strict mode to detect unknown fields
	var config Config

	err = yaml.UnmarshalWithOptions(data, &config, yaml.Strict())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDefaults(&config)
	expandConfigEnvVars(&config)

	return &config, nil
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	if config.Service.Timeout < 0 {
		return fmt.Errorf("%w: service.timeout must be non-negative, got %s", ErrConfigValidation, config.Service.Timeout)
	}

	if config.Service.Retries < 0 {
		return fmt.Errorf("%w: service.retries must be non-negative, got %d", ErrConfigValidation, config.Service.Retries)
	}

	if config.Query.MaxHops < 0 {
		return fmt.Errorf("%w: query.max_hops must be non-negative, got %d", ErrConfigValidation, config.Query.MaxHops)
	}

	return nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Address: "http://localhost:9996",
			Network: "example-net",
			Timeout: 30 * time.Second,
			Retries: 1,
		},
		Simplify: SimplifyConfig{},
		Query: QueryConfig{
			MaxHops: 64,
		},
		OutputDir: ".",
	}
}

// applyDefaults applies default values to missing configuration fields
func applyDefaults(config *Config) {
	if config.Service.Address == "" {
		config.Service.Address = "http://localhost:9996"
	}

	if config.Service.Network == "" {
		config.Service.Network = "example-net"
	}

	if config.Service.Timeout == 0 {
		config.Service.Timeout = 30 * time.Second
	}

	if config.Query.MaxHops == 0 {
		config.Query.MaxHops = 64
	}

	if config.OutputDir == "" {
		config.OutputDir = "."
	}
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	// Pattern for ${VAR} format
	re1 := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re1.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})

	// Pattern for $VAR format (word boundaries)
	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		return os.Getenv(varName)
	})

	return s
}

// expandConfigEnvVars expands environment variables in config
func expandConfigEnvVars(config *Config) {
	config.Service.Address = expandEnvVars(config.Service.Address)
	config.Service.Network = expandEnvVars(config.Service.Network)
	config.Query.CachePath = expandEnvVars(config.Query.CachePath)
	config.OutputDir = expandEnvVars(config.OutputDir)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
