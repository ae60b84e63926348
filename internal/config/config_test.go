package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Orchestration.MaxConcurrent != 5 {
		t.Errorf("expected max_concurrent 5, got %d", cfg.Orchestration.MaxConcurrent)
	}
	if cfg.Orchestration.ConflictStrategy != "priority_based" {
		t.Errorf("expected priority_based, got %s", cfg.Orchestration.ConflictStrategy)
	}
	if cfg.Orchestration.RollbackThreshold != 0.3 {
		t.Errorf("expected rollback threshold 0.3, got %v", cfg.Orchestration.RollbackThreshold)
	}
	if cfg.Isolation.TrunkBranch != "main" {
		t.Errorf("expected trunk main, got %s", cfg.Isolation.TrunkBranch)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `orchestration:
  max_concurrent: 3
  conflict_strategy: fifo
  rollback_threshold: 0.5
  global_timeout: 2m
resources:
  database: 2
isolation:
  trunk_branch: trunk
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Orchestration.MaxConcurrent != 3 {
		t.Errorf("expected max_concurrent 3, got %d", cfg.Orchestration.MaxConcurrent)
	}
	if cfg.Orchestration.ConflictStrategy != "fifo" {
		t.Errorf("expected fifo, got %s", cfg.Orchestration.ConflictStrategy)
	}
	if cfg.Orchestration.GlobalTimeout != 2*time.Minute {
		t.Errorf("expected 2m global timeout, got %v", cfg.Orchestration.GlobalTimeout)
	}
	if cfg.Resources.Database != 2 {
		t.Errorf("expected database capacity 2, got %d", cfg.Resources.Database)
	}
	// Unset values fall back to defaults.
	if cfg.Resources.File != 10 {
		t.Errorf("expected default file capacity 10, got %d", cfg.Resources.File)
	}
	if cfg.Isolation.TrunkBranch != "trunk" {
		t.Errorf("expected trunk, got %s", cfg.Isolation.TrunkBranch)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEngineConversion(t *testing.T) {
	cfg := Default()
	cfg.Orchestration.MaxConcurrent = 7
	cfg.Resources.Computational = 4

	engine := cfg.Engine()
	if engine.MaxConcurrent != 7 {
		t.Errorf("expected max concurrent 7, got %d", engine.MaxConcurrent)
	}
	if engine.ConflictStrategy != models.StrategyPriority {
		t.Errorf("expected priority strategy, got %s", engine.ConflictStrategy)
	}
	if engine.Capacity[models.ResourceComputational] != 4 {
		t.Errorf("expected computational capacity 4, got %d", engine.Capacity[models.ResourceComputational])
	}

	if err := engine.Validate(); err != nil {
		t.Errorf("default engine config should validate: %v", err)
	}
}
