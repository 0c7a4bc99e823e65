package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MapsOntoCityConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
city_id: testcity
seed: 42
daily_burn: 75
tax_rate_percent: 12
cold_case_days: 9
recruit_mood_threshold: -0.5
parallel_decisions: true
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tun, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := tun.CityConfig()
	if cfg.ID != "testcity" || cfg.Seed != 42 {
		t.Fatalf("identity = (%q, %d)", cfg.ID, cfg.Seed)
	}
	if cfg.DailyBurn != 75 || cfg.TaxRatePercent != 12 || cfg.ColdCaseDays != 9 {
		t.Fatalf("economy knobs = %+v", cfg)
	}
	if cfg.RecruitMoodThreshold != -0.5 || !cfg.ParallelDecisions {
		t.Fatalf("gang/decision knobs = %+v", cfg)
	}
	// Unset knobs stay zero so the engine defaults take over.
	if cfg.StartingTokens != 0 {
		t.Fatalf("unset knob leaked a value: %d", cfg.StartingTokens)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
