// Package encode turns the value tree reported by the runtime into the JSON
// return value, resolving foreign values the runtime could not encode itself.
//
// The runtime emits a foreign value as a single-member object:
//
//	{"$pyrun.foreign": {"module": "numpy", "type": "ndarray", "repr": "array([1, 2])",
//	                    "conversions": {"tolist": [1, 2]}, "errors": {"item": "ValueError: ..."}}}
//
// A Resolver decides, per type, which conversion (if any) stands in for it.
package encode

import "fmt"

// ForeignKey marks an object as a foreign value envelope.
const ForeignKey = "$pyrun.foreign"

// Conversion capabilities the runtime tries on foreign values.
const (
	ToList = "tolist"
	Item   = "item"
	ToPy   = "to_py"
)

// TypeID identifies a runtime type by its defining module and name.
type TypeID struct {
	Module string
	Name   string
}

func (t TypeID) String() string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}

// Foreign is a value the runtime's serializer could not encode natively.
type Foreign struct {
	Type        TypeID
	Repr        string
	Conversions map[string]any    // capability → converted value tree
	Errors      map[string]string // capability → error raised by it
}

// Converted returns the result of a conversion capability, or an error if
// the runtime could not perform it.
func (f *Foreign) Converted(capability string) (any, error) {
	if msg, ok := f.Errors[capability]; ok {
		return nil, fmt.Errorf("%s.%s() failed: %s", f.Type, capability, msg)
	}
	v, ok := f.Conversions[capability]
	if !ok {
		return nil, fmt.Errorf("%s has no %s() conversion", f.Type, capability)
	}
	return v, nil
}

// Encoder produces an encodable stand-in for a foreign value. The result may
// itself contain foreign envelopes; they are resolved in turn.
type Encoder func(f *Foreign) (any, error)

// Convert returns an Encoder that uses the named conversion capability.
func Convert(capability string) Encoder {
	return func(f *Foreign) (any, error) {
		return f.Converted(capability)
	}
}

// Repr encodes a foreign value as its textual representation. It never fails.
func Repr(f *Foreign) (any, error) {
	return f.Repr, nil
}

// Resolver dispatches foreign values to encoders: an exact type match wins,
// then a module match, then the fallback.
type Resolver struct {
	types    map[TypeID]Encoder
	modules  map[string]Encoder
	fallback Encoder
}

// NewResolver returns a Resolver with no registrations and Repr as fallback.
func NewResolver() *Resolver {
	return &Resolver{
		types:    make(map[TypeID]Encoder),
		modules:  make(map[string]Encoder),
		fallback: Repr,
	}
}

// DefaultResolver knows numpy arrays and scalars and pyodide proxies.
func DefaultResolver() *Resolver {
	r := NewResolver()
	r.RegisterType(TypeID{"numpy", "ndarray"}, Convert(ToList))
	r.RegisterType(TypeID{"numpy", "matrix"}, Convert(ToList))
	r.RegisterModule("numpy", Convert(Item))
	r.RegisterModule("pyodide.ffi", Convert(ToPy))
	return r
}

// RegisterType sets the encoder for one type.
func (r *Resolver) RegisterType(id TypeID, enc Encoder) {
	r.types[id] = enc
}

// RegisterModule sets the encoder for every type defined in module that has
// no type-level registration.
func (r *Resolver) RegisterModule(module string, enc Encoder) {
	r.modules[module] = enc
}

// SetFallback replaces the encoder used for unregistered types.
func (r *Resolver) SetFallback(enc Encoder) {
	r.fallback = enc
}

// Resolve picks the encoder for f and applies it.
func (r *Resolver) Resolve(f *Foreign) (any, error) {
	if enc, ok := r.types[f.Type]; ok {
		return enc(f)
	}
	if enc, ok := r.modules[f.Type.Module]; ok {
		return enc(f)
	}
	return r.fallback(f)
}
