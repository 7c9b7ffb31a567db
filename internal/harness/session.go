package harness

import (
	"strings"
	"sync"

	"github.com/michaelbrown/pyrun/internal/sandbox"
)

// Session is one runtime instance and the output it produced. It is never
// reused across requests.
type Session struct {
	ID      string
	Sandbox sandbox.Sandbox

	mu      sync.Mutex
	stdout  []string
	stderr  []string
	flushed bool
	out     string
	err     string
}

// Bootstrap checks the sandbox can start and returns a session whose output
// buffers capture everything the runtime writes.
func Bootstrap(sb sandbox.Sandbox, id string) (*Session, error) {
	if err := sb.Available(); err != nil {
		return nil, &BootstrapError{Err: err}
	}
	return &Session{ID: id, Sandbox: sb}, nil
}

func (s *Session) appendStdout(line string) {
	s.mu.Lock()
	s.stdout = append(s.stdout, line)
	s.mu.Unlock()
}

func (s *Session) appendStderr(line string) {
	s.mu.Lock()
	s.stderr = append(s.stderr, line)
	s.mu.Unlock()
}

// Flush joins both buffers. The first call fixes the result; lines arriving
// afterwards are dropped.
func (s *Session) Flush() (stdout, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.flushed {
		s.out = strings.Join(s.stdout, "")
		s.err = strings.Join(s.stderr, "")
		s.stdout, s.stderr = nil, nil
		s.flushed = true
	}
	return s.out, s.err
}
