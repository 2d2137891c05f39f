package registration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestWarpedName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"sub-01.nii.gz", "sub-01_space-MNI152T1w1mm.nii.gz"},
		{"sub-01.nii", "sub-01_space-MNI152T1w1mm.nii"},
		{"/data/masks/sub-02_lesion.nii.gz", "/data/masks/sub-02_lesion_space-MNI152T1w1mm.nii.gz"},
		{"noext", "noext_space-MNI152T1w1mm"},
	}
	for _, tt := range tests {
		got := warpedName(tt.path, "space-MNI152T1w1mm")
		if got != tt.want {
			t.Errorf("warpedName(%q): got %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRunMissingExecutable(t *testing.T) {
	f := &FLIRT{Exec: "/nonexistent/flirt", Log: quietLogger()}
	err := f.run(context.Background(), "-in", "a.nii.gz")
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !strings.Contains(err.Error(), "-in a.nii.gz") {
		t.Errorf("error should name the invocation, got %v", err)
	}
}

func TestRunSurfacesToolOutput(t *testing.T) {
	// A fake flirt that prints a diagnostic and fails.
	dir := t.TempDir()
	fake := filepath.Join(dir, "flirt")
	script := "#!/bin/sh\necho 'Could not open matrix file'\nexit 1\n"
	if err := os.WriteFile(fake, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	f := &FLIRT{Exec: fake, Log: quietLogger()}
	err := f.run(context.Background(), "-applyxfm")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Could not open matrix file") {
		t.Errorf("tool output missing from error: %v", err)
	}
}

func TestWarpAllNoMatches(t *testing.T) {
	f := &FLIRT{Exec: "/nonexistent/flirt", Log: quietLogger()}
	_, err := f.WarpAll(context.Background(), "fixed.nii.gz", "reg.mat", t.TempDir(), "*.nii.gz", "space-MNI152T1w1mm")
	if err == nil || !strings.Contains(err.Error(), "no masks matching") {
		t.Errorf("expected no-matches error, got %v", err)
	}
}

func TestWarpAllNamesOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sub-01.nii.gz", "sub-02.nii.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	// A fake flirt that records nothing and succeeds.
	fake := filepath.Join(t.TempDir(), "flirt")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}

	f := &FLIRT{Exec: fake, Log: quietLogger()}
	outputs, err := f.WarpAll(context.Background(), "fixed.nii.gz", "reg.mat", dir, "*.nii.gz", "space-MNI152T1w1mm")
	if err != nil {
		t.Fatalf("WarpAll failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	want := filepath.Join(dir, "sub-01_space-MNI152T1w1mm.nii.gz")
	if outputs[0] != want {
		t.Errorf("got %q, want %q", outputs[0], want)
	}
}
