package webhook

import (
	"fmt"

	"github.com/mattjoyce/launchkey/internal/config"
)

// FromGlobalConfig converts config.CallbackConfig to webhook.Config.
func FromGlobalConfig(cc *config.CallbackConfig) (Config, error) {
	if cc == nil {
		return Config{}, fmt.Errorf("callback config is nil")
	}

	maxBodySize, err := config.ParseSize(cc.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("callback: invalid max_body_size %q: %w", cc.MaxBodySize, err)
	}

	return Config{
		Listen:        cc.Listen,
		Path:          cc.Path,
		MaxBodySize:   maxBodySize,
		RatePerSecond: cc.RateLimit.PerSecond,
		RateBurst:     cc.RateLimit.Burst,
	}, nil
}
