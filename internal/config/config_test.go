package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/michaelbrown/pyrun/internal/harness"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pyrun.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Kind != "docker" {
		t.Errorf("kind = %q", cfg.Runtime.Kind)
	}
	if cfg.Output.Marker != harness.DefaultMarker {
		t.Errorf("marker = %q", cfg.Output.Marker)
	}
	if !slices.Equal(cfg.Installer.Baseline, harness.DefaultBaseline) {
		t.Errorf("baseline = %v", cfg.Installer.Baseline)
	}
	if !slices.Equal(cfg.Installer.Markers, harness.DefaultMarkers) {
		t.Errorf("markers = %v", cfg.Installer.Markers)
	}
	if cfg.Runtime.Timeout != 0 {
		t.Errorf("timeout = %v, want none", cfg.Runtime.Timeout)
	}
	if !cfg.Policy().IsImageAllowed(cfg.Runtime.Image) {
		t.Errorf("default image %q not allowed by default policy", cfg.Runtime.Image)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("PYRUN_TEST_KEY", "sk-test")
	path := writeConfig(t, `
runtime:
  kind: process
  python: python3.12
  timeout: 30s
installer:
  baseline: [pydantic]
  markers:
    - marker: pandas
      package: pandas
output:
  marker: "@@OUT:"
llm:
  api_key: ${PYRUN_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Kind != "process" || cfg.Runtime.Python != "python3.12" {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Runtime.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Runtime.Timeout)
	}
	if !slices.Equal(cfg.Installer.Markers, []harness.MarkerRule{{Marker: "pandas", Package: "pandas"}}) {
		t.Errorf("markers = %v", cfg.Installer.Markers)
	}
	if cfg.Output.Marker != "@@OUT:" {
		t.Errorf("marker = %q", cfg.Output.Marker)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}

	eng := cfg.Engine()
	if eng.Timeout != 30*time.Second || eng.Interpreter != "python3.12" {
		t.Errorf("engine config = %+v", eng)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PYRUN_RUNTIME_IMAGE", "python:3.13-slim")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.Image != "python:3.13-slim" {
		t.Errorf("image = %q", cfg.Runtime.Image)
	}
}

func TestLoadOfflineRuntime(t *testing.T) {
	path := writeConfig(t, `
runtime:
  image: pyrun-python:offline
  network: false
  timeout: 10s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	policy := cfg.Policy()
	if policy.Network {
		t.Error("network should be disabled")
	}
	if policy.MaxTimeout != 10*time.Second {
		t.Errorf("max timeout = %v", policy.MaxTimeout)
	}
	if !policy.IsImageAllowed("pyrun-python:offline") {
		t.Errorf("images = %v", policy.Images)
	}
	// The baseline stays planned; the runtime skips what the image already has.
	if !slices.Equal(cfg.Engine().Baseline, harness.DefaultBaseline) {
		t.Errorf("baseline = %v", cfg.Engine().Baseline)
	}
}
