package models

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "max_concurrent"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"bad strategy", func(c *Config) { c.ConflictStrategy = "random" }, "conflict strategy"},
		{"threshold too high", func(c *Config) { c.RollbackThreshold = 1.5 }, "rollback_threshold"},
		{"negative threshold", func(c *Config) { c.RollbackThreshold = -0.1 }, "rollback_threshold"},
		{"zero monitor interval", func(c *Config) { c.MonitorInterval = 0 }, "monitor_interval"},
		{"zero global timeout", func(c *Config) { c.GlobalTimeout = 0 }, "global_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
	for _, s := range []Status{StatusInitializing, StatusScheduling, StatusExecuting, StatusPaused, StatusRollingBack} {
		if s.Terminal() {
			t.Errorf("%s is not terminal", s)
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseCompleted, PhaseFailed, PhaseRolledBack} {
		if !p.Terminal() {
			t.Errorf("%s should be terminal", p)
		}
	}
	for _, p := range []Phase{PhaseScheduled, PhaseResourceAllocated, PhaseStarting, PhaseRunning, PhaseCompleting} {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
}

func TestStateItemLookup(t *testing.T) {
	state := &OrchestrationState{
		Items: []*WorkItem{{ID: "a"}, {ID: "b"}},
	}
	if got := state.Item("b"); got == nil || got.ID != "b" {
		t.Errorf("lookup returned %v", got)
	}
	if state.Item("missing") != nil {
		t.Error("unknown id should return nil")
	}
}
