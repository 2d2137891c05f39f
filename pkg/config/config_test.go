package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Input.Pattern != "space-MNI152T1w1mm.nii.gz" {
		t.Errorf("unexpected default pattern %q", cfg.Input.Pattern)
	}
	if cfg.Input.AtlasFormat != "brainstem" {
		t.Errorf("unexpected default atlas format %q", cfg.Input.AtlasFormat)
	}
	if !cfg.Analysis.Normalize {
		t.Error("normalize should default to true")
	}
	if cfg.Analysis.Threads != 1 {
		t.Errorf("unexpected default threads %d", cfg.Analysis.Threads)
	}
	if cfg.Heatmap.Axis != "axial" {
		t.Errorf("unexpected default axis %q", cfg.Heatmap.Axis)
	}
	wantSlices := []int{132, 113, 93, 84, 73, 44}
	if len(cfg.Heatmap.Slices) != len(wantSlices) {
		t.Fatalf("unexpected default slices %v", cfg.Heatmap.Slices)
	}
	for i, s := range wantSlices {
		if cfg.Heatmap.Slices[i] != s {
			t.Errorf("slice %d: got %d, want %d", i, cfg.Heatmap.Slices[i], s)
		}
	}
	if cfg.Heatmap.LegendPosition != "left" {
		t.Errorf("unexpected default legend position %q", cfg.Heatmap.LegendPosition)
	}
	if cfg.Output.Dir != "lesionmap_results" {
		t.Errorf("unexpected default output dir %q", cfg.Output.Dir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Heatmap.Axis != "axial" {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("input: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.LesionFolder = "/data/lesions"
	cfg.Input.AtlasVolume = "/data/atlas.nii.gz"
	cfg.Analysis.Regions = []string{"PTN_L_Atlas", "PTN_R_Atlas"}
	cfg.Analysis.Threads = 4
	cfg.Heatmap.Slices = []int{10, 20}

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Input.LesionFolder != cfg.Input.LesionFolder {
		t.Errorf("lesion folder: got %q, want %q", loaded.Input.LesionFolder, cfg.Input.LesionFolder)
	}
	if len(loaded.Analysis.Regions) != 2 || loaded.Analysis.Regions[1] != "PTN_R_Atlas" {
		t.Errorf("regions did not survive round trip: %v", loaded.Analysis.Regions)
	}
	if loaded.Analysis.Threads != 4 {
		t.Errorf("threads: got %d, want 4", loaded.Analysis.Threads)
	}
	if len(loaded.Heatmap.Slices) != 2 || loaded.Heatmap.Slices[0] != 10 {
		t.Errorf("slices did not survive round trip: %v", loaded.Heatmap.Slices)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Input.LesionFolder = "/data/lesions"
		cfg.Input.AtlasVolume = "/data/atlas.nii.gz"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing lesion folder", func(c *Config) { c.Input.LesionFolder = "" }},
		{"missing atlas volume", func(c *Config) { c.Input.AtlasVolume = "" }},
		{"unknown atlas format", func(c *Config) { c.Input.AtlasFormat = "aal" }},
		{"talairach without labels", func(c *Config) { c.Input.AtlasFormat = "talairach" }},
		{"bad axis", func(c *Config) { c.Heatmap.Axis = "oblique" }},
		{"bad legend position", func(c *Config) { c.Heatmap.LegendPosition = "top" }},
		{"no slices", func(c *Config) { c.Heatmap.Slices = nil }},
		{"zero threads", func(c *Config) { c.Analysis.Threads = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateCSVFormatsWithLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.LesionFolder = "/data/lesions"
	cfg.Input.AtlasVolume = "/data/atlas.nii.gz"
	cfg.Input.AtlasFormat = "neudorfer"
	cfg.Input.AtlasLabels = "/data/labels.csv"
	if err := cfg.Validate(); err != nil {
		t.Errorf("neudorfer with labels rejected: %v", err)
	}
}
