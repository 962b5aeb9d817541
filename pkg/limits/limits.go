// Package limits exposes the limit class catalog for embedders.
package limits

import internallimits "github.com/SmitUplenchwar2687/gatekeeper/internal/limits"

// Algorithm identifies a counting algorithm.
type Algorithm = internallimits.Algorithm

const (
	AlgorithmTokenBucket   = internallimits.AlgorithmTokenBucket
	AlgorithmSlidingWindow = internallimits.AlgorithmSlidingWindow
)

// Built-in class names.
const (
	Global     = internallimits.Global
	User       = internallimits.User
	IP         = internallimits.IP
	Login      = internallimits.Login
	Search     = internallimits.Search
	APICreate  = internallimits.APICreate
	Story      = internallimits.Story
	Comment    = internallimits.Comment
	Suspicious = internallimits.Suspicious
	Default    = internallimits.Default
)

var (
	ErrUnknownLimitClass = internallimits.ErrUnknownLimitClass
	ErrInvalidLimitClass = internallimits.ErrInvalidLimitClass
)

// LimitClass is the configuration of one limit dimension.
type LimitClass = internallimits.LimitClass

// Registry is the immutable catalog of limit classes.
type Registry = internallimits.Registry

// NewRegistry validates classes and builds a registry.
func NewRegistry(classes []LimitClass, endpoints map[string]string) (*Registry, error) {
	return internallimits.NewRegistry(classes, endpoints)
}

// DefaultClasses returns the built-in catalog.
func DefaultClasses() []LimitClass {
	return internallimits.DefaultClasses()
}

// DefaultEndpoints returns the built-in endpoint map.
func DefaultEndpoints() map[string]string {
	return internallimits.DefaultEndpoints()
}
