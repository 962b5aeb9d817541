package limits

// RequestContext carries the attributes of one inbound action that select
// extra limit classes and feed the scorers.
type RequestContext struct {
	IP       string `json:"ip,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // e.g. "POST /login"
	// Cost is the number of units the action consumes. Values below 1 count
	// as 1.
	Cost int `json:"cost,omitempty"`
}
