package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPolicyIsImageAllowed(t *testing.T) {
	p := DefaultPolicy()
	if !p.IsImageAllowed("python:3.12-slim") {
		t.Error("default image should be allowed")
	}
	if p.IsImageAllowed("alpine:latest") {
		t.Error("alpine should not be allowed")
	}
}

func TestDockerRunArgs(t *testing.T) {
	policy := Policy{MaxMemory: "256m", MaxCPUs: "1.5", Network: false, Images: []string{"img"}}
	d := NewDockerSandbox(policy, nil)
	ws := &workspace{input: "/tmp/in", output: "/tmp/out"}

	args := d.runArgs("pyrun-abc", ws, ExecOpts{
		Image:   "img",
		Command: []string{"python3", "driver.py"},
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"run --rm --name pyrun-abc",
		"--memory 256m",
		"-v /tmp/in:/workspace:ro",
		"-v /tmp/out:/output",
		"-e " + OutputDirEnv + "=/output",
		"--cpus 1.5",
		"--network=none",
		"-e A=1 -e B=2",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if !strings.HasSuffix(joined, "img python3 driver.py") {
		t.Errorf("args should end with image and command, got %q", joined)
	}
}

func TestDockerRejectsImage(t *testing.T) {
	d := NewDockerSandbox(Policy{Images: []string{"python:3.12-slim"}}, nil)
	_, err := d.Exec(context.Background(), ExecOpts{Image: "evil:latest"})
	if !errors.Is(err, ErrStart) {
		t.Fatalf("expected ErrStart, got %v", err)
	}
}

// fakeDocker writes a shell script that stands in for the docker CLI. The
// body runs with $out set to the host side of the /output mount.
func fakeDocker(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	path := filepath.Join(t.TempDir(), "docker")
	script := `#!/bin/sh
[ "$1" = kill ] && exit 0
for a in "$@"; do
  case "$a" in
    *:/output) out="${a%:/output}" ;;
  esac
done
` + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDockerReservedExitCodes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		started   string
		wantStart bool
	}{
		{"program exits 126", `touch "$out/started"; exit 126`, "started", false},
		{"program exits 127", `touch "$out/started"; exit 127`, "started", false},
		{"never started", `echo "no such image" >&2; exit 125`, "started", true},
		{"cannot exec", `exit 126`, "started", true},
		{"no started file configured", `touch "$out/started"; exit 126`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDockerSandbox(Policy{MaxMemory: "64m", Images: []string{"img"}}, nil)
			d.Binary = fakeDocker(t, tt.body)

			res, err := d.Exec(context.Background(), ExecOpts{
				Name:    "test",
				Image:   "img",
				Command: []string{"python3"},
				Started: tt.started,
			})
			if tt.wantStart {
				if !errors.Is(err, ErrStart) {
					t.Fatalf("expected ErrStart, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			if res.ExitCode < 126 {
				t.Errorf("exit code = %d", res.ExitCode)
			}
		})
	}
}

func TestDockerMaxTimeout(t *testing.T) {
	d := NewDockerSandbox(Policy{MaxMemory: "64m", Images: []string{"img"}, MaxTimeout: 50 * time.Millisecond}, nil)
	d.Binary = fakeDocker(t, `exec sleep 5`)

	start := time.Now()
	_, err := d.Exec(context.Background(), ExecOpts{Name: "slow", Image: "img", Command: []string{"python3"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Exec returned after %v, policy timeout not applied", elapsed)
	}
}

func TestWorkspaceCollect(t *testing.T) {
	ws, err := newWorkspace("test", map[string][]byte{"a/b.txt": []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	defer ws.remove()

	files, err := ws.collect([]string{"missing.json"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestPumpKeepsUnterminatedLine(t *testing.T) {
	var lines []string
	var wg sync.WaitGroup
	wg.Add(1)
	pump(&wg, strings.NewReader("one\ntwo\nthree"), func(line string) {
		lines = append(lines, line)
	})

	want := []string{"one\n", "two\n", "three"}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestProcessSandboxExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	p := NewProcessSandbox(nil)

	var stdout, stderr []string
	res, err := p.Exec(context.Background(), ExecOpts{
		Name:    "test",
		Command: []string{"sh", "script.sh"},
		Files: map[string][]byte{
			"script.sh": []byte("cat input.txt\necho oops >&2\nprintf done > \"$" + OutputDirEnv + "/result.json\"\nexit 3\n"),
			"input.txt": []byte("hello\n"),
		},
		Stdout:  func(line string) { stdout = append(stdout, line) },
		Stderr:  func(line string) { stderr = append(stderr, line) },
		Collect: []string{"result.json", "absent.json"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if got := string(res.Files["result.json"]); got != "done" {
		t.Errorf("result.json = %q, want %q", got, "done")
	}
	if _, ok := res.Files["absent.json"]; ok {
		t.Error("absent.json should not be collected")
	}
	if !slices.Equal(stdout, []string{"hello\n"}) {
		t.Errorf("stdout = %q", stdout)
	}
	if !slices.Equal(stderr, []string{"oops\n"}) {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestProcessSandboxMissingBinary(t *testing.T) {
	p := NewProcessSandbox(nil)
	_, err := p.Exec(context.Background(), ExecOpts{Command: []string{"definitely-not-a-real-binary-xyz"}})
	if !errors.Is(err, ErrStart) {
		t.Fatalf("expected ErrStart, got %v", err)
	}
}
