package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultRiskConfig(t *testing.T) {
	cfg := DefaultRiskConfig()

	if cfg.SPOFMultiplier <= 1.0 {
		t.Errorf("SPOFMultiplier must raise scores, got %f", cfg.SPOFMultiplier)
	}
	if cfg.RedundancyMultiplier >= 1.0 || cfg.RedundancyMultiplier <= 0 {
		t.Errorf("RedundancyMultiplier must discount scores, got %f", cfg.RedundancyMultiplier)
	}
	if cfg.DependentsScale <= 0 {
		t.Error("DependentsScale must be positive to keep the dependents factor saturating")
	}
}

func TestDefaultVerifierConfig(t *testing.T) {
	cfg := DefaultVerifierConfig()

	if cfg.FreshnessWindow != 7*24*time.Hour {
		t.Errorf("Expected 7 day freshness window, got %s", cfg.FreshnessWindow)
	}
	if cfg.LowConfidence >= cfg.HighConfidence {
		t.Errorf("LowConfidence %f must be below HighConfidence %f", cfg.LowConfidence, cfg.HighConfidence)
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
}

func TestValidate_RejectsBadRanges(t *testing.T) {
	cfg := Default()
	cfg.Verifier.DecayRate = 1.5

	err := Validate(&cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := Default()
	cfg.History.Backend = "redis"
	if err := Validate(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("redis backend without url should fail, got %v", err)
	}

	cfg = Default()
	cfg.Impact.SevereThreshold = cfg.Impact.HighThreshold
	if err := Validate(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("severe threshold must exceed high threshold, got %v", err)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faultline.yaml")
	doc := []byte(`
log:
  level: debug
risk:
  spof_multiplier: 1.5
verifier:
  freshness_window: 72h
history:
  backend: none
`)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAULTLINE_MONITOR_HIGH_RISK_THRESHOLD", "70")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Risk.SPOFMultiplier != 1.5 {
		t.Errorf("Expected spof multiplier 1.5, got %f", cfg.Risk.SPOFMultiplier)
	}
	if cfg.Verifier.FreshnessWindow != 72*time.Hour {
		t.Errorf("Expected 72h freshness window, got %s", cfg.Verifier.FreshnessWindow)
	}
	if cfg.Monitor.HighRiskThreshold != 70 {
		t.Errorf("Expected env override 70, got %f", cfg.Monitor.HighRiskThreshold)
	}
	// Untouched keys keep their defaults.
	if cfg.Risk.RedundancyMultiplier != 0.7 {
		t.Errorf("Expected default redundancy multiplier, got %f", cfg.Risk.RedundancyMultiplier)
	}
	if cfg.Impact.BaseDowntime["severe"] != time.Hour {
		t.Errorf("Expected default severe downtime, got %s", cfg.Impact.BaseDowntime["severe"])
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit config path that does not exist should fail")
	}
}

func TestUnmarshal_DefaultsOnly(t *testing.T) {
	v := viper.New()
	SetDefaults(v, Default())

	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.API.ListenAddr != DefaultListenAddr {
		t.Errorf("Expected %s, got %s", DefaultListenAddr, cfg.API.ListenAddr)
	}
	if cfg.Monitor.Interval != 15*time.Minute {
		t.Errorf("Expected 15m interval, got %s", cfg.Monitor.Interval)
	}
}
