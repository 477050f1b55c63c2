package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the run configuration document (test-config.json)
type Config struct {
	StepsFile       string            `json:"stepsFile" yaml:"stepsFile"`
	UsersFile       string            `json:"usersFile,omitempty" yaml:"usersFile,omitempty"`
	Hosts           []string          `json:"hosts" yaml:"hosts"`
	EmailDomain     string            `json:"emailDomain,omitempty" yaml:"emailDomain,omitempty"`
	MaxUsers        int               `json:"maxUsers,omitempty" yaml:"maxUsers,omitempty"`
	RampRateSeconds float64           `json:"rampRateSeconds,omitempty" yaml:"rampRateSeconds,omitempty"` // add one user every N seconds
	DurationMinutes float64           `json:"durationMinutes,omitempty" yaml:"durationMinutes,omitempty"` // hold at maxUsers
	RampDownSeconds float64           `json:"rampDownSeconds,omitempty" yaml:"rampDownSeconds,omitempty"`
	Timeout         int               `json:"timeout,omitempty" yaml:"timeout,omitempty"` // milliseconds
	ValidateSSL     *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
	Proxy           string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	IterationRate   float64           `json:"iterationRate,omitempty" yaml:"iterationRate,omitempty"` // iteration starts per second, 0 = unlimited
	Thresholds      string            `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // sent with every request

	// path of the file this config was loaded from
	source string
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// RampUp is the time to reach MaxUsers: one user per RampRateSeconds
func (c *Config) RampUp() time.Duration {
	return seconds(float64(c.MaxUsers) * c.RampRateSeconds)
}

// Hold is how long MaxUsers are kept running after the ramp
func (c *Config) Hold() time.Duration {
	return seconds(c.DurationMinutes * 60)
}

// RampDown is the time to wind users down to zero
func (c *Config) RampDown() time.Duration {
	return seconds(c.RampDownSeconds)
}

// TotalDuration is ramp up + hold + ramp down
func (c *Config) TotalDuration() time.Duration {
	return c.RampUp() + c.Hold() + c.RampDown()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Source returns the path the config was loaded from, if any
func (c *Config) Source() string {
	return c.source
}

// ResolvePath resolves p relative to the config file's directory, the way
// stepsFile and usersFile are written ("./steps.json")
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.source == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.source), p)
}

// Validate reports configuration that cannot produce a run
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("config: at least one host is required")
	}
	for i, h := range c.Hosts {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("config: host %d is empty", i)
		}
	}
	if c.MaxUsers <= 0 {
		return fmt.Errorf("config: maxUsers must be positive, got %d", c.MaxUsers)
	}
	if c.DurationMinutes <= 0 {
		return fmt.Errorf("config: durationMinutes must be positive, got %v", c.DurationMinutes)
	}
	if c.RampRateSeconds < 0 || c.RampDownSeconds < 0 {
		return fmt.Errorf("config: ramp durations cannot be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout cannot be negative")
	}
	if c.IterationRate < 0 {
		return fmt.Errorf("config: iterationRate cannot be negative")
	}
	return nil
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"test-config.json",
	"test-config.yaml",
	".tracereplay.json",
	".tracereplay.yaml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	config.source = path
	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.StepsFile != "" {
		result.StepsFile = other.StepsFile
	}
	if other.UsersFile != "" {
		result.UsersFile = other.UsersFile
	}
	if len(other.Hosts) > 0 {
		result.Hosts = other.Hosts
	}
	if other.EmailDomain != "" {
		result.EmailDomain = other.EmailDomain
	}
	if other.MaxUsers > 0 {
		result.MaxUsers = other.MaxUsers
	}
	if other.RampRateSeconds > 0 {
		result.RampRateSeconds = other.RampRateSeconds
	}
	if other.DurationMinutes > 0 {
		result.DurationMinutes = other.DurationMinutes
	}
	if other.RampDownSeconds > 0 {
		result.RampDownSeconds = other.RampDownSeconds
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.IterationRate > 0 {
		result.IterationRate = other.IterationRate
	}
	if other.Thresholds != "" {
		result.Thresholds = other.Thresholds
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}

	// Merge headers
	if len(other.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range other.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}

	return &result
}

// SaveConfig saves the configuration to a file as JSON, or YAML when the
// path ends in .yaml/.yml
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
