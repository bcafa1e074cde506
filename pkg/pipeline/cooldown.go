package pipeline

import "time"

// DefaultCooldown is how long an identity is ignored after it was accepted.
const DefaultCooldown = 10 * time.Second

// CooldownTable debounces identities. It is owned by the matching loop
// and not safe for concurrent use.
type CooldownTable struct {
	window time.Duration
	last   map[string]time.Time
}

// NewCooldownTable creates a table with the given window.
func NewCooldownTable(window time.Duration) *CooldownTable {
	if window < 0 {
		window = 0
	}
	return &CooldownTable{window: window, last: make(map[string]time.Time)}
}

// Active reports whether identity was accepted less than the window ago.
func (c *CooldownTable) Active(identity string, now time.Time) bool {
	t, ok := c.last[identity]
	return ok && now.Sub(t) < c.window
}

// Record marks identity as accepted at now.
func (c *CooldownTable) Record(identity string, now time.Time) {
	c.last[identity] = now
}

// Len returns the number of tracked identities.
func (c *CooldownTable) Len() int {
	return len(c.last)
}
