package sandbox

import (
	"slices"
	"time"
)

// Policy defines resource limits for sandbox execution.
type Policy struct {
	MaxMemory  string        // Docker memory limit (e.g. "512m")
	MaxCPUs    string        // Docker --cpus value, empty for no limit
	MaxTimeout time.Duration // Zero means no deadline
	Network    bool          // Package installation needs the network
	Images     []string      // Allowed Docker images
}

// DefaultPolicy returns the defaults used for code execution.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemory: "512m",
		Network:   true,
		Images: []string{
			"python:3.12-slim",
			"python:3.13-slim",
		},
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	return slices.Contains(p.Images, image)
}
