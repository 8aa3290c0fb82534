package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPort is used when neither the config file nor BEADBOARD_PORT set one.
const DefaultPort = 8724

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bd       BdConfig       `yaml:"bd"`
	Projects ProjectsConfig `yaml:"projects"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type BdConfig struct {
	// Executable is the bd binary to invoke; defaults to "bd" on $PATH.
	Executable string `yaml:"executable"`
}

type ProjectsConfig struct {
	// SearchPaths are the parent directories probed, in order, when a
	// client names a project by short name instead of absolute path.
	SearchPaths []string `yaml:"search_paths"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyDefaults()

	if port := os.Getenv("BEADBOARD_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid BEADBOARD_PORT %q: %w", port, err)
		}
		cfg.Server.Port = n
	}
	if bin := os.Getenv("BEADBOARD_BD"); bin != "" {
		cfg.Bd.Executable = bin
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Bd.Executable == "" {
		c.Bd.Executable = "bd"
	}
	if len(c.Projects.SearchPaths) == 0 {
		c.Projects.SearchPaths = DefaultSearchPaths()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Bd.Executable == "" {
		return fmt.Errorf("bd.executable is required")
	}
	if len(c.Projects.SearchPaths) == 0 {
		return fmt.Errorf("projects.search_paths must not be empty")
	}
	return nil
}

// Addr returns the listen address for the HTTP/WebSocket server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// DefaultSearchPaths returns the ordered parent directories probed for
// short project names.
func DefaultSearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "code"),
		filepath.Join(home, "repos"),
		filepath.Join(home, "src"),
		filepath.Join(home, "projects"),
		home,
	}
}
