package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sells-group/riskdoc/internal/config"
)

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(config.CircuitConfig{FailureThreshold: 3, ResetTimeoutSecs: 10})
	if cfg.FailureThreshold != 3 || cfg.ResetTimeout != 10*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}

	if cfg.ShouldTrip == nil || cfg.ShouldTrip(errors.New("schema mismatch")) {
		t.Error("expected only transient errors to trip")
	}

	def := FromCircuitConfig(config.CircuitConfig{})
	if def.FailureThreshold != 5 || def.ResetTimeout != 60*time.Second {
		t.Errorf("expected defaults, got %+v", def)
	}
}

func TestFromPipelineConfig(t *testing.T) {
	if got := FromPipelineConfig(config.PipelineConfig{}).MaxAttempts; got != 1 {
		t.Errorf("expected 1 attempt by default, got %d", got)
	}
	if got := FromPipelineConfig(config.PipelineConfig{ProviderRetries: 2}).MaxAttempts; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}
