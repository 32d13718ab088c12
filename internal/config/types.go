package config

import "time"

// Config represents the complete launchkey gateway configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	API      APIConfig      `yaml:"api"`
	Callback CallbackConfig `yaml:"callback"`
	State    StateConfig    `yaml:"state"`

	// path is the absolute path of the loaded file, empty for Defaults.
	path string
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines how the gateway talks to the service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	AppKey  string `yaml:"app_key"`
	// Secret is the shared app secret. Prefer ${VAR} interpolation over a
	// literal value.
	Secret               string `yaml:"secret"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	ServicePublicKeyPath string `yaml:"service_public_key_path"`
	// ServiceKeyFingerprint pins the service public key (hex BLAKE3-256 of
	// its PKIX DER encoding). Empty disables pinning.
	ServiceKeyFingerprint string        `yaml:"service_key_fingerprint,omitempty"`
	SignatureScheme       string        `yaml:"signature_scheme"` // rsa | hmac
	Timeout               time.Duration `yaml:"timeout"`
}

// CallbackConfig defines the callback listener.
type CallbackConfig struct {
	Listen       string          `yaml:"listen"`
	Path         string          `yaml:"path"`
	MaxBodySize  string          `yaml:"max_body_size"` // e.g. "64KB", "1048576"
	MaxClockSkew time.Duration   `yaml:"max_clock_skew"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines the callback token bucket. PerSecond 0 disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "launchkey",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			BaseURL:         "https://api.launchkey.com",
			SignatureScheme: "rsa",
			Timeout:         30 * time.Second,
		},
		Callback: CallbackConfig{
			Listen:       "127.0.0.1:8081",
			Path:         "/callback",
			MaxBodySize:  "64KB",
			MaxClockSkew: 5 * time.Minute,
			RateLimit: RateLimitConfig{
				PerSecond: 20,
				Burst:     50,
			},
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
	}
}
