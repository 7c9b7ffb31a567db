package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// workspace is the host side of one execution: a directory with the input
// files and a sibling directory the program writes its results into.
type workspace struct {
	root   string
	input  string
	output string
}

func newWorkspace(name string, files map[string][]byte) (*workspace, error) {
	root, err := os.MkdirTemp("", "pyrun-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	ws := &workspace{
		root:   root,
		input:  filepath.Join(root, "workspace"),
		output: filepath.Join(root, "output"),
	}
	for _, dir := range []string{ws.input, ws.output} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			ws.remove()
			return nil, fmt.Errorf("creating %s: %w", filepath.Base(dir), err)
		}
	}
	// The container may run as a different uid than the host process.
	if err := os.Chmod(ws.output, 0o777); err != nil {
		ws.remove()
		return nil, fmt.Errorf("chmod output dir: %w", err)
	}

	for name, data := range files {
		path := filepath.Join(ws.input, filepath.Clean("/" + name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			ws.remove()
			return nil, fmt.Errorf("creating dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			ws.remove()
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return ws, nil
}

// exists reports whether the program wrote name into the output directory.
func (ws *workspace) exists(name string) bool {
	_, err := os.Stat(filepath.Join(ws.output, filepath.Clean("/"+name)))
	return err == nil
}

// collect reads the named files from the output directory, skipping any the
// program never wrote.
func (ws *workspace) collect(names []string) (map[string][]byte, error) {
	files := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(ws.output, filepath.Clean("/"+name)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		files[name] = data
	}
	return files, nil
}

func (ws *workspace) remove() {
	os.RemoveAll(ws.root)
}

// pump copies r line by line into sink until EOF. A final line without a
// trailing newline is still delivered.
func pump(wg *sync.WaitGroup, r io.Reader, sink LineSink) {
	defer wg.Done()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" && sink != nil {
			sink(line)
		}
		if err != nil {
			return
		}
	}
}

// lastLine remembers the most recent line passed through a sink, used to
// explain start failures reported by the container engine.
type lastLine struct {
	mu   sync.Mutex
	line string
}

func (l *lastLine) wrap(sink LineSink) LineSink {
	return func(line string) {
		l.mu.Lock()
		l.line = line
		l.mu.Unlock()
		if sink != nil {
			sink(line)
		}
	}
}

func (l *lastLine) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.line
}
