package config

import (
	"fmt"
	"strings"

	"tradeescrow/storage"
)

// Validate checks the configuration before any component is constructed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddress) == "" {
		return fmt.Errorf("server: ListenAddress required")
	}
	if c.Server.RateLimitPerSec < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server: rate limit must not be negative")
	}
	if c.Server.RateLimitPerSec > 0 && c.Server.RateBurst == 0 {
		return fmt.Errorf("server: RateBurst required when RateLimitPerSec is set")
	}
	if !storage.SupportedBackend(c.Storage.Backend) {
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if _, err := c.EscrowParams(); err != nil {
		return err
	}
	for _, raw := range c.KYC.Approved {
		if _, err := ParseIdentity(raw); err != nil {
			return fmt.Errorf("kyc: approved entry: %w", err)
		}
	}
	for _, raw := range c.KYC.Operators {
		if _, err := ParseIdentity(raw); err != nil {
			return fmt.Errorf("kyc: operator entry: %w", err)
		}
	}
	return nil
}
