package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultMarker prefixes the outcome line on stdout.
const DefaultMarker = "!!OUTPUT:"

// Outcome is the result of one execution. Exactly one of the success fields
// or Err is meaningful on the wire; Stdout and Stderr are still filled in on
// failure for logging.
type Outcome struct {
	RunID       string
	Stdout      string
	Stderr      string
	ReturnValue string // compact JSON text
	Err         *RunError
}

// Failed reports whether the outcome carries an error.
func (o *Outcome) Failed() bool { return o.Err != nil }

type successWire struct {
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ReturnValue string `json:"returnValue"`
}

type failureWire struct {
	Error string `json:"error"`
}

// MarshalJSON emits {stdout, stderr, returnValue} or {error}, never both.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return marshalRaw(failureWire{Error: o.Err.Error()}, "")
	}
	return marshalRaw(successWire{Stdout: o.Stdout, Stderr: o.Stderr, ReturnValue: o.ReturnValue}, "")
}

// marshalRaw encodes v without HTML escaping, so tracebacks mentioning
// <exec> stay readable.
func marshalRaw(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON accepts either wire shape.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var wire struct {
		Error       *string `json:"error"`
		Stdout      string  `json:"stdout"`
		Stderr      string  `json:"stderr"`
		ReturnValue string  `json:"returnValue"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Error != nil {
		*o = Outcome{Err: &RunError{Message: *wire.Error}}
		return nil
	}
	*o = Outcome{Stdout: wire.Stdout, Stderr: wire.Stderr, ReturnValue: wire.ReturnValue}
	return nil
}

// WriteOutcome writes the marker followed by the indented outcome. The
// marker appears once, at the start of the first line.
func WriteOutcome(w io.Writer, marker string, o *Outcome) error {
	data, err := marshalRaw(o, "  ")
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s%s\n", marker, data)
	return err
}
