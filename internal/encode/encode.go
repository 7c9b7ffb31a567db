package encode

import (
	"fmt"
	"strings"
)

// maxDepth bounds how many envelopes may resolve into further envelopes, so
// an encoder that keeps returning them cannot recurse forever. Plain nesting
// is not counted.
const maxDepth = 512

// reservedPrefix marks keys the runtime escapes by prepending one "$". A user
// key "$pyrun.foreign" arrives as "$$pyrun.foreign" and cannot be mistaken
// for an envelope.
const reservedPrefix = "pyrun."

func unescapeKey(key string) string {
	if strings.HasPrefix(key, "$$") && strings.HasPrefix(strings.TrimLeft(key, "$"), reservedPrefix) {
		return key[1:]
	}
	return key
}

// Encode resolves every foreign envelope in the runtime's value tree and
// returns the compact JSON text of the result. Empty input encodes as null.
func (r *Resolver) Encode(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	tree, err := Decode(raw)
	if err != nil {
		return "", fmt.Errorf("decoding value: %w", err)
	}
	resolved, err := r.walk(tree, 0)
	if err != nil {
		return "", err
	}
	out, err := marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	return string(out), nil
}

func (r *Resolver) walk(v any, depth int) (any, error) {
	switch v := v.(type) {
	case Object:
		if len(v) == 1 && v[0].Key == ForeignKey {
			if depth >= maxDepth {
				return nil, fmt.Errorf("foreign values nested deeper than %d levels", maxDepth)
			}
			f, err := parseForeign(v[0].Value)
			if err != nil {
				return nil, err
			}
			out, err := r.Resolve(f)
			if err != nil {
				return nil, err
			}
			return r.walk(out, depth+1)
		}
		out := make(Object, len(v))
		for i, m := range v {
			val, err := r.walk(m.Value, depth)
			if err != nil {
				return nil, err
			}
			out[i] = Member{Key: unescapeKey(m.Key), Value: val}
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			val, err := r.walk(item, depth)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	default:
		return v, nil
	}
}

func parseForeign(v any) (*Foreign, error) {
	env, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("malformed foreign value: %T", v)
	}
	f := &Foreign{
		Conversions: map[string]any{},
		Errors:      map[string]string{},
	}
	for _, m := range env {
		switch m.Key {
		case "module":
			f.Type.Module, _ = m.Value.(string)
		case "type":
			f.Type.Name, _ = m.Value.(string)
		case "repr":
			f.Repr, _ = m.Value.(string)
		case "conversions":
			conv, _ := m.Value.(Object)
			for _, c := range conv {
				f.Conversions[c.Key] = c.Value
			}
		case "errors":
			errs, _ := m.Value.(Object)
			for _, e := range errs {
				msg, _ := e.Value.(string)
				f.Errors[e.Key] = msg
			}
		}
	}
	if f.Type.Name == "" {
		return nil, fmt.Errorf("malformed foreign value: missing type")
	}
	return f, nil
}
