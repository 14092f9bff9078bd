package config

import "time"

// Policy bounds how many requests one client may make per window for a class of endpoints.
type Policy struct {
	Points   int           `mapstructure:"points"`
	Duration time.Duration `mapstructure:"duration"`
}

var DefaultPolicies = map[string]Policy{
	"review": {Points: 5, Duration: 60 * time.Second},
	"claim":  {Points: 3, Duration: time.Hour},
	"search": {Points: 30, Duration: 60 * time.Second},
}

// ClonePolicies returns a copy of src that callers may modify freely.
func ClonePolicies(src map[string]Policy) map[string]Policy {
	out := make(map[string]Policy, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// IsKnownClass reports whether name is one of the endpoint classes routes are limited by.
func IsKnownClass(name string) bool {
	_, ok := DefaultPolicies[name]
	return ok
}
