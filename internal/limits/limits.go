// Package limits holds the catalog of named limit classes the admission
// controller evaluates.
package limits

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Algorithm identifies a counting algorithm.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Well-known class names.
const (
	Global     = "global"
	User       = "user"
	IP         = "ip"
	Login      = "login"
	Search     = "search"
	APICreate  = "api_create"
	Story      = "story"
	Comment    = "comment"
	Suspicious = "suspicious"
	Default    = "default"
)

var (
	// ErrUnknownLimitClass is returned when a caller names a class that is
	// not registered.
	ErrUnknownLimitClass = errors.New("unknown limit class")
	// ErrInvalidLimitClass is returned by Validate.
	ErrInvalidLimitClass = errors.New("invalid limit class")
)

// LimitClass is the immutable configuration of one limit dimension.
type LimitClass struct {
	Name       string        `json:"name" yaml:"name"`
	Capacity   int           `json:"capacity" yaml:"capacity"`       // max requests per window
	Window     time.Duration `json:"window" yaml:"window"`           // counting window
	Burst      int           `json:"burst" yaml:"burst"`             // extra instantaneous allowance
	RefillRate float64       `json:"refill_rate" yaml:"refill_rate"` // tokens/second, token bucket only
	Algorithm  Algorithm     `json:"algorithm" yaml:"algorithm"`
}

// Validate checks the class invariants: capacity >= burst >= 0, positive
// window and refill rate, and a known algorithm.
func (c LimitClass) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLimitClass)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("%w %q: capacity must be >= 1, got %d", ErrInvalidLimitClass, c.Name, c.Capacity)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w %q: window must be positive, got %s", ErrInvalidLimitClass, c.Name, c.Window)
	}
	if c.Burst < 0 || c.Burst > c.Capacity {
		return fmt.Errorf("%w %q: burst must be within [0, capacity], got %d", ErrInvalidLimitClass, c.Name, c.Burst)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w %q: refill_rate must be positive, got %g", ErrInvalidLimitClass, c.Name, c.RefillRate)
	}
	switch c.Algorithm {
	case AlgorithmTokenBucket, AlgorithmSlidingWindow:
	default:
		return fmt.Errorf("%w %q: unknown algorithm %q", ErrInvalidLimitClass, c.Name, c.Algorithm)
	}
	return nil
}

// withDefaults fills the refill rate from capacity/window and the algorithm
// when they are left unset.
func (c LimitClass) withDefaults() LimitClass {
	if c.RefillRate == 0 && c.Window > 0 {
		c.RefillRate = float64(c.Capacity) / c.Window.Seconds()
	}
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmSlidingWindow
	}
	return c
}

// Registry is a read-only catalog of limit classes plus the endpoint to
// class mapping. Safe for concurrent reads once built.
type Registry struct {
	classes   map[string]LimitClass
	endpoints map[string]string
}

// NewRegistry validates classes and builds a registry. A "default" class
// must be present, since unnamed limit types resolve to it.
func NewRegistry(classes []LimitClass, endpoints map[string]string) (*Registry, error) {
	r := &Registry{
		classes:   make(map[string]LimitClass, len(classes)),
		endpoints: make(map[string]string, len(endpoints)),
	}
	for _, c := range classes {
		c = c.withDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.classes[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate class %q", ErrInvalidLimitClass, c.Name)
		}
		r.classes[c.Name] = c
	}
	if _, ok := r.classes[Default]; !ok {
		return nil, fmt.Errorf("%w: class %q is required", ErrInvalidLimitClass, Default)
	}
	for endpoint, class := range endpoints {
		if _, ok := r.classes[class]; !ok {
			return nil, fmt.Errorf("endpoint %q maps to %w %q", endpoint, ErrUnknownLimitClass, class)
		}
		r.endpoints[endpoint] = class
	}
	return r, nil
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (LimitClass, error) {
	c, ok := r.classes[name]
	if !ok {
		return LimitClass{}, fmt.Errorf("%w %q", ErrUnknownLimitClass, name)
	}
	return c, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.classes[name]
	return ok
}

// EndpointClass returns the class mapped to endpoint, if any.
func (r *Registry) EndpointClass(endpoint string) (string, bool) {
	if endpoint == "" {
		return "", false
	}
	name, ok := r.endpoints[endpoint]
	return name, ok
}

// Names returns registered class names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Classes returns all classes sorted by name.
func (r *Registry) Classes() []LimitClass {
	names := r.Names()
	out := make([]LimitClass, 0, len(names))
	for _, name := range names {
		out = append(out, r.classes[name])
	}
	return out
}
