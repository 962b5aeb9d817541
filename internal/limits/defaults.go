package limits

import "time"

// DefaultClasses returns the built-in catalog. Burst-sensitive write paths
// (login, story, api_create) use the token bucket; read-heavy and identity
// dimensions use the sliding window.
func DefaultClasses() []LimitClass {
	return []LimitClass{
		{Name: Global, Capacity: 10000, Window: time.Minute, Burst: 1000, Algorithm: AlgorithmSlidingWindow},
		{Name: User, Capacity: 300, Window: time.Minute, Burst: 30, Algorithm: AlgorithmSlidingWindow},
		{Name: IP, Capacity: 600, Window: time.Minute, Burst: 60, Algorithm: AlgorithmSlidingWindow},
		{Name: Login, Capacity: 5, Window: 15 * time.Minute, Burst: 2, RefillRate: 0.006, Algorithm: AlgorithmTokenBucket},
		{Name: Search, Capacity: 50, Window: time.Minute, Algorithm: AlgorithmSlidingWindow},
		{Name: APICreate, Capacity: 10, Window: time.Minute, Burst: 5, Algorithm: AlgorithmTokenBucket},
		{Name: Story, Capacity: 5, Window: time.Hour, Burst: 1, Algorithm: AlgorithmTokenBucket},
		{Name: Comment, Capacity: 30, Window: 5 * time.Minute, Burst: 5, Algorithm: AlgorithmSlidingWindow},
		{Name: Suspicious, Capacity: 10, Window: time.Minute, Algorithm: AlgorithmSlidingWindow},
		{Name: Default, Capacity: 100, Window: time.Minute, Burst: 10, Algorithm: AlgorithmSlidingWindow},
	}
}

// DefaultEndpoints maps request endpoints to the class that guards them.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"POST /login":    Login,
		"GET /search":    Search,
		"POST /stories":  Story,
		"POST /comments": Comment,
		"POST /api":      APICreate,
	}
}

// DefaultRegistry builds a registry from the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultClasses(), DefaultEndpoints())
	if err != nil {
		panic("limits: built-in catalog is invalid: " + err.Error())
	}
	return r
}
