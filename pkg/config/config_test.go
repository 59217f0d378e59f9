package config

import "testing"

func TestApplyFlagTogglesWarning(t *testing.T) {
	cfg := NewConfig()
	cfg.SetWarning(WarnRedefinition, false)
	cfg.ApplyFlag("Wredefinition")
	if !cfg.IsWarningEnabled(WarnRedefinition) {
		t.Fatal("Wredefinition should enable the warning")
	}
	cfg.ApplyFlag("Wno-redefinition")
	if cfg.IsWarningEnabled(WarnRedefinition) {
		t.Fatal("Wno-redefinition should disable the warning")
	}
}

func TestApplyFlagWAllTogglesEveryWarning(t *testing.T) {
	cfg := NewConfig()
	for i := Warning(0); i < WarnCount; i++ {
		cfg.SetWarning(i, false)
	}
	cfg.ApplyFlag("Wall")
	for i := Warning(0); i < WarnCount; i++ {
		if !cfg.IsWarningEnabled(i) {
			t.Fatalf("warning %d should be enabled after -Wall", i)
		}
	}
}

func TestApplyFlagTogglesFeature(t *testing.T) {
	cfg := NewConfig()
	cfg.ApplyFlag("Fno-alt-tokens")
	if cfg.IsFeatureEnabled(FeatAltTokens) {
		t.Fatal("Fno-alt-tokens should disable the feature")
	}
	cfg.ApplyFlag("Falt-tokens")
	if !cfg.IsFeatureEnabled(FeatAltTokens) {
		t.Fatal("Falt-tokens should enable the feature")
	}
}

func TestApplyFlagUnknownNameIsNoop(t *testing.T) {
	cfg := NewConfig()
	before := make(map[Warning]Info, len(cfg.Warnings))
	for k, v := range cfg.Warnings {
		before[k] = v
	}
	cfg.ApplyFlag("Wnonexistent-warning")
	for k, v := range before {
		if cfg.Warnings[k] != v {
			t.Fatalf("unknown flag name should not mutate any warning: %v != %v", cfg.Warnings[k], v)
		}
	}
}

func TestNewConfigDefaultIncludeDepth(t *testing.T) {
	cfg := NewConfig()
	if cfg.MaxIncludeDepth != 15 {
		t.Fatalf("got %d, want 15", cfg.MaxIncludeDepth)
	}
}
