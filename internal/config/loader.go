package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yaml"
	ConfigDirName  = ".jobwright"
)

// Loader handles configuration discovery and loading.
type Loader struct {
	startDir string
}

// NewLoader creates a loader that searches upward from startDir.
func NewLoader(startDir string) *Loader {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			startDir = "."
		}
	}
	return &Loader{startDir: startDir}
}

// Load reads the configuration, applies environment overrides and defaults,
// and validates the result. If explicitPath is non-empty it is used directly
// instead of searching.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	configPath := explicitPath
	if configPath == "" {
		var err error
		configPath, err = l.findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}
	}

	config, err := l.loadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	l.applyEnvOverrides(config)
	config.ApplyDefaults()
	l.resolvePaths(config, filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// findConfigFile searches upward from the start directory for
// .jobwright/config.yaml, falling back to ~/.config/jobwright/config.yaml.
func (l *Loader) findConfigFile() (string, error) {
	dir := l.startDir
	for {
		configPath := filepath.Join(dir, ConfigDirName, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		globalConfig := filepath.Join(homeDir, ".config", "jobwright", ConfigFileName)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched upward from %s)", l.startDir)
}

func (l *Loader) loadFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &config, nil
}

// applyEnvOverrides lets the API key come from the environment so it never
// has to live in the config file. JOBWRIGHT_AI_API_KEY wins; the provider's
// conventional variable is accepted as a fallback.
func (l *Loader) applyEnvOverrides(config *Config) {
	if apiKey := os.Getenv("JOBWRIGHT_AI_API_KEY"); apiKey != "" {
		config.AI.APIKey = apiKey
	} else if config.AI.APIKey == "" && config.AI.Provider != "" {
		envVar := strings.ToUpper(config.AI.Provider) + "_API_KEY"
		if apiKey := os.Getenv(envVar); apiKey != "" {
			config.AI.APIKey = apiKey
		}
	}

	if provider := os.Getenv("JOBWRIGHT_AI_PROVIDER"); provider != "" {
		config.AI.Provider = provider
	}
	if model := os.Getenv("JOBWRIGHT_AI_MODEL"); model != "" {
		config.AI.Model = model
	}
}

// resolvePaths makes file paths in the config absolute, relative to the
// directory that contains the .jobwright directory.
func (l *Loader) resolvePaths(config *Config, configDir string) {
	root := filepath.Dir(configDir) // parent of .jobwright
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}

	config.Memory.Path = abs(config.Memory.Path)
	config.Memory.DatabasePath = abs(config.Memory.DatabasePath)
	config.Agent.ScreenshotDir = abs(config.Agent.ScreenshotDir)

	for _, key := range []string{"resume_path", "photo_path"} {
		if v, ok := config.Profile[key]; ok && v != "" {
			config.Profile[key] = abs(v)
		}
	}
}
