package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.CacheCapacityBytes = 0 }},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }},
		{"negative window", func(c *Config) { c.CoalesceWindow = -time.Second }},
		{"bad loop policy", func(c *Config) { c.LoopPolicy = "sometimes" }},
		{"zero vector width", func(c *Config) { c.VectorDefaultWidth = 0 }},
		{"quality out of range", func(c *Config) { c.DefaultQuality = 101 }},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rasterpipe.yaml")
	body := "cache_capacity_bytes: 1048576\ncoalesce_window: 250ms\nloop_policy: once\nvips:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheCapacityBytes != 1<<20 {
		t.Errorf("capacity: got %d", cfg.CacheCapacityBytes)
	}
	if cfg.CoalesceWindow != 250*time.Millisecond {
		t.Errorf("window: got %s", cfg.CoalesceWindow)
	}
	if cfg.LoopPolicy != LoopOnce {
		t.Errorf("loop policy: got %s", cfg.LoopPolicy)
	}
	if !cfg.Vips.Enabled {
		t.Error("vips.enabled not applied")
	}
	// Untouched fields keep their defaults.
	if cfg.HistoryLimit != Default().HistoryLimit {
		t.Errorf("history limit: got %d", cfg.HistoryLimit)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RASTERPIPE_WORKER_COUNT":    "3",
		"RASTERPIPE_COALESCE_WINDOW": "1s",
		"RASTERPIPE_LOOP_POLICY":     "ONCE",
		"RASTERPIPE_VIPS_ENABLED":    "true",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	if err := applyEnv(&cfg, lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.WorkerCount != 3 || cfg.CoalesceWindow != time.Second || cfg.LoopPolicy != LoopOnce || !cfg.Vips.Enabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "RASTERPIPE_QUEUE_SIZE" {
			return "many", true
		}
		return "", false
	}
	cfg := Default()
	if err := applyEnv(&cfg, lookup); err == nil {
		t.Error("expected parse error")
	}
}
