package config

import (
	"fmt"
	"time"
)

// Config represents the complete jobwright configuration.
type Config struct {
	Profile map[string]string `yaml:"profile"`
	AI      AIConfig          `yaml:"ai"`
	Browser BrowserConfig     `yaml:"browser"`
	Agent   AgentConfig       `yaml:"agent"`
	Memory  MemoryConfig      `yaml:"memory"`
	Email   *EmailConfig      `yaml:"email,omitempty"`
}

// AIConfig holds AI provider configuration.
type AIConfig struct {
	Provider string        `yaml:"provider"` // openai, anthropic, gemini, ollama, mock
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"` // for ollama or proxies
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// BrowserConfig holds browser session configuration.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	ImplicitWait    time.Duration `yaml:"implicit_wait,omitempty"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
	WindowWidth     int           `yaml:"window_width,omitempty"`
	WindowHeight    int           `yaml:"window_height,omitempty"`
}

// AgentConfig holds attempt execution settings.
type AgentConfig struct {
	MaxRetries          int           `yaml:"max_retries,omitempty"`
	RetryDelay          time.Duration `yaml:"retry_delay,omitempty"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold,omitempty"`
	ScreenshotOnFailure bool          `yaml:"screenshot_on_failure"`
	ScreenshotDir       string        `yaml:"screenshot_dir,omitempty"`
}

// MemoryConfig holds the learning store location.
type MemoryConfig struct {
	Path         string `yaml:"path,omitempty"`
	DatabasePath string `yaml:"database_path,omitempty"`
}

// EmailConfig enables confirmation-mail polling after submission.
type EmailConfig struct {
	IMAPServer   string        `yaml:"imap_server"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	PollAttempts int           `yaml:"poll_attempts,omitempty"`
}

// Defaults used when a field is unset in the YAML file.
const (
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 5 * time.Second
	DefaultConfidenceThreshold = 0.5
	DefaultAITimeout           = 60 * time.Second
	DefaultImplicitWait        = 10 * time.Second
	DefaultPageLoadTimeout     = 30 * time.Second
	DefaultMemoryPath          = ".jobwright/memory.json"
	DefaultDatabasePath        = ".jobwright/agent.db"
	DefaultScreenshotDir       = ".jobwright/screenshots"
)

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Agent.MaxRetries == 0 {
		c.Agent.MaxRetries = DefaultMaxRetries
	}
	if c.Agent.RetryDelay == 0 {
		c.Agent.RetryDelay = DefaultRetryDelay
	}
	if c.Agent.ConfidenceThreshold == 0 {
		c.Agent.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Agent.ScreenshotDir == "" {
		c.Agent.ScreenshotDir = DefaultScreenshotDir
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = DefaultAITimeout
	}
	if c.Browser.ImplicitWait == 0 {
		c.Browser.ImplicitWait = DefaultImplicitWait
	}
	if c.Browser.PageLoadTimeout == 0 {
		c.Browser.PageLoadTimeout = DefaultPageLoadTimeout
	}
	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = 1080
	}
	if c.Memory.Path == "" {
		c.Memory.Path = DefaultMemoryPath
	}
	if c.Memory.DatabasePath == "" {
		c.Memory.DatabasePath = DefaultDatabasePath
	}
	if c.Email != nil {
		if c.Email.PollInterval == 0 {
			c.Email.PollInterval = 15 * time.Second
		}
		if c.Email.PollAttempts == 0 {
			c.Email.PollAttempts = 4
		}
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "anthropic", "gemini", "ollama", "mock":
	case "":
		return fmt.Errorf("ai.provider is required")
	default:
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}

	if c.AI.Provider != "ollama" && c.AI.Provider != "mock" && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required for provider %s", c.AI.Provider)
	}

	if len(c.Profile) == 0 {
		return fmt.Errorf("profile section is empty")
	}
	if c.Profile["email"] == "" {
		return fmt.Errorf("profile.email is required")
	}

	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must not be negative")
	}
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("agent.confidence_threshold must be in [0,1]")
	}

	if c.Email != nil {
		if c.Email.IMAPServer == "" || c.Email.Username == "" {
			return fmt.Errorf("email section requires imap_server and username")
		}
	}
	return nil
}
