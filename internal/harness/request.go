package harness

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Request is one execution request.
type Request struct {
	// DependencyText is the dependency list as the caller wrote it. Marker
	// rules match against this text.
	DependencyText string `yaml:"-" json:"-"`
	// Dependencies is the validated list handed to the runtime.
	Dependencies []string `yaml:"dependencies" json:"dependencies"`
	Code         string   `yaml:"code" json:"code"`
}

// NewRequest builds a request from a literal such as "['numpy', 'pandas']",
// the form the harness receives on its command line.
func NewRequest(literal, code string) (Request, error) {
	deps, err := ParseDependencies(literal)
	if err != nil {
		return Request{}, err
	}
	return Request{DependencyText: literal, Dependencies: deps, Code: code}, nil
}

// NewRequestList builds a request from an already structured dependency list.
func NewRequestList(deps []string, code string) (Request, error) {
	for _, d := range deps {
		if err := ValidateRequirement(d); err != nil {
			return Request{}, err
		}
	}
	return Request{DependencyText: FormatDependencies(deps), Dependencies: deps, Code: code}, nil
}

// LoadRequestFile reads a request from a YAML (or JSON) file.
func LoadRequestFile(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("reading request file: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("parsing request file: %w", err)
	}
	return NewRequestList(req.Dependencies, req.Code)
}

// ParseDependencies parses a list-of-strings literal. Both Python
// ("['a', \"b\",]") and JSON ("[\"a\"]") spellings are accepted, as are
// tuples. Blank text means no dependencies.
func ParseDependencies(literal string) ([]string, error) {
	p := &literalParser{src: literal}
	p.skipSpace()
	if p.done() {
		return nil, nil
	}

	var closer byte
	switch p.peek() {
	case '[':
		closer = ']'
	case '(':
		closer = ')'
	default:
		return nil, p.errorf("expected '[' or '('")
	}
	p.pos++

	deps := []string{}
	for {
		p.skipSpace()
		if p.done() {
			return nil, p.errorf("unterminated list")
		}
		if p.peek() == closer {
			p.pos++
			break
		}
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := ValidateRequirement(s); err != nil {
			return nil, err
		}
		deps = append(deps, s)

		p.skipSpace()
		if p.done() {
			return nil, p.errorf("unterminated list")
		}
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, p.errorf("expected ',' or %q", closer)
		}
	}

	p.skipSpace()
	if !p.done() {
		return nil, p.errorf("unexpected text after list")
	}
	return deps, nil
}

// FormatDependencies renders deps the way Python's repr would.
func FormatDependencies(deps []string) string {
	quoted := make([]string, len(deps))
	for i, d := range deps {
		quoted[i] = "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(d) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// requirementRe accepts a distribution name with optional extras and
// version specifiers ("pandas", "numpy>=1.26,<3", "httpx[http2]==0.27.0").
var requirementRe = regexp.MustCompile(
	`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?` +
		`(?:\[[A-Za-z0-9._-]+(?:,[A-Za-z0-9._-]+)*\])?` +
		`(?:(?:===|==|!=|~=|>=|<=|>|<)[A-Za-z0-9.*+!_-]+` +
		`(?:,(?:===|==|!=|~=|>=|<=|>|<)[A-Za-z0-9.*+!_-]+)*)?$`)

// ValidateRequirement rejects anything that is not a plain requirement
// specifier, which keeps installer options and URLs out of the install.
func ValidateRequirement(req string) error {
	if !requirementRe.MatchString(req) {
		return fmt.Errorf("invalid dependency %q", req)
	}
	return nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) done() bool { return p.pos >= len(p.src) }
func (p *literalParser) peek() byte { return p.src[p.pos] }

func (p *literalParser) skipSpace() {
	for !p.done() && strings.IndexByte(" \t\r\n", p.peek()) >= 0 {
		p.pos++
	}
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("dependency list at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) parseString() (string, error) {
	quote := p.peek()
	if quote != '\'' && quote != '"' {
		return "", p.errorf("expected string")
	}
	p.pos++

	var b strings.Builder
	for !p.done() {
		c := p.peek()
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\n':
			return "", p.errorf("newline in string")
		case '\\':
			if p.done() {
				return "", p.errorf("unterminated escape")
			}
			esc := p.peek()
			p.pos++
			switch esc {
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return "", p.errorf("unsupported escape \\%c", esc)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}
