package harness

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestParseDependencies(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    []string
		wantErr bool
	}{
		{name: "blank", literal: "  ", want: nil},
		{name: "empty list", literal: "[]", want: []string{}},
		{name: "python repr", literal: "['numpy', 'pandas']", want: []string{"numpy", "pandas"}},
		{name: "json", literal: `["httpx[http2]==0.27.0"]`, want: []string{"httpx[http2]==0.27.0"}},
		{name: "tuple with trailing comma", literal: "('requests',)", want: []string{"requests"}},
		{name: "whitespace and newlines", literal: "[\n  'a' ,\n  \"b\"\n]", want: []string{"a", "b"}},
		{name: "version range", literal: "['numpy>=1.26,<3']", want: []string{"numpy>=1.26,<3"}},
		{name: "not a list", literal: "'numpy'", wantErr: true},
		{name: "unterminated", literal: "['numpy'", wantErr: true},
		{name: "unterminated string", literal: "['numpy]", wantErr: true},
		{name: "missing comma", literal: "['a' 'b']", wantErr: true},
		{name: "trailing code", literal: "[]; import os", wantErr: true},
		{name: "expression element", literal: "[__import__('os')]", wantErr: true},
		{name: "installer flag", literal: "['--index-url', 'http://x']", wantErr: true},
		{name: "url", literal: "['https://example.com/pkg.whl']", wantErr: true},
		{name: "shell", literal: "['numpy; rm -rf /']", wantErr: true},
		{name: "empty name", literal: "['']", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDependencies(tt.literal)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if (got == nil) != (tt.want == nil) {
				t.Errorf("nil-ness mismatch: got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFormatDependenciesRoundTrip(t *testing.T) {
	deps := []string{"numpy", "pydantic>=2"}
	lit := FormatDependencies(deps)
	if lit != "['numpy', 'pydantic>=2']" {
		t.Errorf("literal = %s", lit)
	}
	back, err := ParseDependencies(lit)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back, deps) {
		t.Errorf("round trip = %v", back)
	}
	if FormatDependencies(nil) != "[]" {
		t.Error("empty list should format as []")
	}
}

func TestNewRequestKeepsLiteral(t *testing.T) {
	req, err := NewRequest("['numpyro']", "1")
	if err != nil {
		t.Fatal(err)
	}
	if req.DependencyText != "['numpyro']" {
		t.Errorf("text = %q", req.DependencyText)
	}
}

func TestNewRequestListValidates(t *testing.T) {
	if _, err := NewRequestList([]string{"ok", "-e ."}, "1"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRequestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	content := "dependencies:\n  - numpy\ncode: |\n  import numpy as np\n  np.arange(3)\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := LoadRequestFile(path)
	if err != nil {
		t.Fatalf("LoadRequestFile: %v", err)
	}
	if !slices.Equal(req.Dependencies, []string{"numpy"}) {
		t.Errorf("dependencies = %v", req.Dependencies)
	}
	if req.Code != "import numpy as np\nnp.arange(3)\n" {
		t.Errorf("code = %q", req.Code)
	}
	if req.DependencyText != "['numpy']" {
		t.Errorf("text = %q", req.DependencyText)
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no marker", "['pandas']", []string{"pydantic", "typing-extensions"}},
		{"marker", "['numpy']", []string{"pydantic", "typing-extensions", "numpy"}},
		{"marker inside other name", "['numpyro']", []string{"pydantic", "typing-extensions", "numpy"}},
		{"marker twice", "['numpy', 'numpy-financial']", []string{"pydantic", "typing-extensions", "numpy"}},
		{"empty", "", []string{"pydantic", "typing-extensions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(DefaultBaseline, DefaultMarkers, tt.text)
			if !slices.Equal([]string(got), tt.want) {
				t.Errorf("Plan(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPlanDoesNotDuplicateBaseline(t *testing.T) {
	baseline := []string{"numpy", "pydantic"}
	got := Plan(baseline, DefaultMarkers, "['numpy']")
	if !slices.Equal(got, PackageSet{"numpy", "pydantic"}) {
		t.Errorf("got %v", got)
	}
	got[0] = "changed"
	if baseline[0] != "numpy" {
		t.Error("Plan must not alias the baseline")
	}
}
