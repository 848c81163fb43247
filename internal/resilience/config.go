package resilience

import (
	"time"

	"github.com/sells-group/riskdoc/internal/config"
)

// FromCircuitConfig converts the circuit section of the config. Only
// transient failures count toward opening a provider's circuit.
func FromCircuitConfig(c config.CircuitConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.ShouldTrip = IsTransient
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return cfg
}

// FromPipelineConfig builds the provider retry policy: provider_retries
// extra attempts after the first.
func FromPipelineConfig(p config.PipelineConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if p.ProviderRetries > 0 {
		cfg.MaxAttempts = p.ProviderRetries + 1
	}
	return cfg
}
