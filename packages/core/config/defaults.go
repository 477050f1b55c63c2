package config

const (
	DefaultMaxUsers        = 10
	DefaultRampRateSeconds = 2
	DefaultDurationMinutes = 2
	DefaultRampDownSeconds = 20
	DefaultTimeoutMs       = 30000
	DefaultEmailDomain     = "test.com"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		EmailDomain:     DefaultEmailDomain,
		MaxUsers:        DefaultMaxUsers,
		RampRateSeconds: DefaultRampRateSeconds,
		DurationMinutes: DefaultDurationMinutes,
		RampDownSeconds: DefaultRampDownSeconds,
		Timeout:         DefaultTimeoutMs,
		ValidateSSL:     BoolPtr(true),
		FollowRedirects: BoolPtr(true),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.StepsFile == "" &&
		len(c.Hosts) == 0 &&
		c.UsersFile == "" &&
		c.EmailDomain == defaults.EmailDomain &&
		c.MaxUsers == defaults.MaxUsers &&
		c.RampRateSeconds == defaults.RampRateSeconds &&
		c.DurationMinutes == defaults.DurationMinutes &&
		c.RampDownSeconds == defaults.RampDownSeconds &&
		c.Timeout == defaults.Timeout &&
		c.GetValidateSSL() &&
		c.GetFollowRedirects() &&
		c.Proxy == "" &&
		c.IterationRate == 0 &&
		len(c.Headers) == 0
}
