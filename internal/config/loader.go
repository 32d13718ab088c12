package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/launchkey/internal/request"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates and validates the configuration file at
// configPath. Fields missing from the file keep their Defaults values.
// Relative key paths are resolved against the file's directory.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}
	cfg.path = absPath

	baseDir := filepath.Dir(absPath)
	cfg.API.PrivateKeyPath = resolvePath(baseDir, cfg.API.PrivateKeyPath)
	cfg.API.ServicePublicKeyPath = resolvePath(baseDir, cfg.API.ServicePublicKeyPath)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Path returns the absolute path the configuration was loaded from.
func (c *Config) Path() string { return c.path }

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// DefaultConfigPath returns $LAUNCHKEY_CONFIG when set, else ./launchkey.yaml.
func DefaultConfigPath() string {
	if p := os.Getenv("LAUNCHKEY_CONFIG"); p != "" {
		return p
	}
	return "launchkey.yaml"
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unknown variables are left in place and rejected by validate.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if err := validateAPI(&cfg.API); err != nil {
		return err
	}
	if err := validateCallback(&cfg.Callback); err != nil {
		return err
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	return nil
}

func validateAPI(api *APIConfig) error {
	u, err := url.Parse(api.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL (got %q)", api.BaseURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("api.base_url must use http or https (got %q)", u.Scheme)
	}

	required := []struct {
		name, value string
	}{
		{"api.app_key", api.AppKey},
		{"api.secret", api.Secret},
		{"api.private_key_path", api.PrivateKeyPath},
		{"api.service_public_key_path", api.ServicePublicKeyPath},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
		if envVarPattern.MatchString(f.value) {
			return fmt.Errorf("%s references an unset environment variable: %s", f.name, f.value)
		}
	}

	switch api.SignatureScheme {
	case request.SchemeRSA, request.SchemeHMAC:
	default:
		return fmt.Errorf("api.signature_scheme must be %s or %s (got %q)", request.SchemeRSA, request.SchemeHMAC, api.SignatureScheme)
	}

	if api.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	return nil
}

func validateCallback(cb *CallbackConfig) error {
	if cb.Listen == "" {
		return fmt.Errorf("callback.listen is required")
	}
	if !strings.HasPrefix(cb.Path, "/") {
		return fmt.Errorf("callback.path must start with / (got %q)", cb.Path)
	}
	if _, err := ParseSize(cb.MaxBodySize); err != nil {
		return fmt.Errorf("callback.max_body_size: %w", err)
	}
	if cb.MaxClockSkew <= 0 {
		return fmt.Errorf("callback.max_clock_skew must be positive")
	}
	if cb.RateLimit.PerSecond < 0 {
		return fmt.Errorf("callback.rate_limit.per_second must not be negative")
	}
	if cb.RateLimit.PerSecond > 0 && cb.RateLimit.Burst < 1 {
		return fmt.Errorf("callback.rate_limit.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}
