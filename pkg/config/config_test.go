package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Miner.DependencyThreshold != 0.65 || cfg.Miner.NoiseThreshold != 0.05 {
		t.Errorf("unexpected miner defaults: %+v", cfg.Miner)
	}
	if cfg.Miner.LoopThreshold != nil {
		t.Error("loop threshold should default to unset")
	}
	if cfg.Columns.CaseIDColumn != "case:concept:name" {
		t.Errorf("CaseIDColumn = %s", cfg.Columns.CaseIDColumn)
	}
	if cfg.Cache.Backend != "none" || cfg.Telemetry.Enabled {
		t.Error("cache and telemetry should be off by default")
	}
}

func TestManager_Layers(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
miner:
  dependency_threshold: 0.8
  noise_threshold: 0.1
columns:
  case_id: order
cache:
  backend: memory
  ttl: 1h
`)
	project := writeFile(t, dir, "project.yaml", `
miner:
  noise_threshold: 0
  loop_threshold: 0.5
`)
	missing := filepath.Join(dir, "missing.yaml")

	m := NewManager(missing, user, project)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Miner.DependencyThreshold != 0.8 {
		t.Errorf("DependencyThreshold = %v, want 0.8", cfg.Miner.DependencyThreshold)
	}
	if cfg.Miner.NoiseThreshold != 0 {
		t.Errorf("NoiseThreshold = %v, want explicit 0 from project file", cfg.Miner.NoiseThreshold)
	}
	if cfg.Miner.LoopThreshold == nil || *cfg.Miner.LoopThreshold != 0.5 {
		t.Errorf("LoopThreshold = %v, want 0.5", cfg.Miner.LoopThreshold)
	}
	if cfg.Miner.MinActivityCount != 1 {
		t.Errorf("MinActivityCount = %d, want default 1", cfg.Miner.MinActivityCount)
	}
	if cfg.Columns.CaseIDColumn != "order" || cfg.Columns.ActivityColumn != "concept:name" {
		t.Errorf("columns = %+v", cfg.Columns)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if got := m.GetPaths(); len(got) != 2 {
		t.Errorf("GetPaths() = %v, want the two existing files", got)
	}
}

func TestManager_Env(t *testing.T) {
	t.Setenv(EnvDependencyThreshold, "0.9")
	t.Setenv(EnvLoopThreshold, "0.3")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvOTLPEndpoint, "collector:4317")

	m := NewManager(filepath.Join(t.TempDir(), "none.yaml"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Miner.DependencyThreshold != 0.9 {
		t.Errorf("DependencyThreshold = %v, want 0.9", cfg.Miner.DependencyThreshold)
	}
	if cfg.Miner.EffectiveLoopThreshold() != 0.3 {
		t.Errorf("EffectiveLoopThreshold() = %v, want 0.3", cfg.Miner.EffectiveLoopThreshold())
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Address != "redis:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestManager_Errors(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "bad.yaml", "miner: [unclosed")
	if err := NewManager(bad).Load(); !hmerrors.IsCode(err, hmerrors.CodeInvalidFormat) {
		t.Errorf("malformed file: err = %v, want invalid format", err)
	}

	t.Setenv(EnvNoiseThreshold, "lots")
	err := NewManager(filepath.Join(t.TempDir(), "none.yaml")).Load()
	if !hmerrors.IsCode(err, hmerrors.CodeInvalidFormat) {
		t.Errorf("bad env: err = %v, want invalid format", err)
	}
}

func TestManager_Marshal(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "none.yaml"))
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out := string(data)
	for _, want := range []string{"dependency_threshold: 0.65", "min_activity_count: 1", "backend: none"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML missing %q:\n%s", want, out)
		}
	}
}
