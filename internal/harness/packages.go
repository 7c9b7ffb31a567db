package harness

import (
	"slices"
	"strings"
)

// DefaultBaseline is installed into every runtime before user code runs.
// pydantic provides the serializer the driver encodes return values with.
var DefaultBaseline = []string{"pydantic", "typing-extensions"}

// MarkerRule adds Package to the install set when the raw dependency text
// contains Marker anywhere, even inside another name.
type MarkerRule struct {
	Marker  string `mapstructure:"marker"`
	Package string `mapstructure:"package"`
}

// DefaultMarkers preinstalls numpy when the request mentions it, so the
// resolver's array conversions have their library available.
var DefaultMarkers = []MarkerRule{{Marker: "numpy", Package: "numpy"}}

// PackageSet is the ordered list of packages installed before user code.
type PackageSet []string

// Plan computes the install set from the baseline and the raw dependency
// text. The baseline slice is not modified.
func Plan(baseline []string, rules []MarkerRule, dependencyText string) PackageSet {
	set := slices.Clone(PackageSet(baseline))
	for _, rule := range rules {
		if rule.Marker == "" || !strings.Contains(dependencyText, rule.Marker) {
			continue
		}
		if !slices.Contains(set, rule.Package) {
			set = append(set, rule.Package)
		}
	}
	return set
}
