package limits

import "time"

// Key addresses one counter: the pair (identifier, class).
type Key struct {
	Identifier string
	Class      string
}

func (k Key) String() string {
	return k.Class + ":" + k.Identifier
}

// Effective is a LimitClass after adaptive scaling. It is computed per
// request and never stored.
type Effective struct {
	Class      string
	Algorithm  Algorithm
	Capacity   int
	Window     time.Duration
	Burst      int
	RefillRate float64
	// Multiplier is the scaling applied to the base class (1.0 = unscaled).
	Multiplier float64
}

// Effective returns the class unscaled.
func (c LimitClass) Effective() Effective {
	return Effective{
		Class:      c.Name,
		Algorithm:  c.Algorithm,
		Capacity:   c.Capacity,
		Window:     c.Window,
		Burst:      c.Burst,
		RefillRate: c.RefillRate,
		Multiplier: 1,
	}
}

// MaxTokens is the token bucket ceiling, capacity plus burst.
func (e Effective) MaxTokens() float64 {
	return float64(e.Capacity + e.Burst)
}
