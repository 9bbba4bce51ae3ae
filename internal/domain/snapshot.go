package domain

// EntityState is what Home Assistant last saw for one entity.
type EntityState struct {
	UniqueID  string
	State     string
	Available bool
}

// Changed returns true if cur must be published given that prev was the last
// published state. A nil prev means nothing was published yet.
func Changed(prev *EntityState, cur EntityState) bool {
	if prev == nil {
		return true
	}
	return *prev != cur
}

// StateCache remembers the last published state per entity. It is owned by a
// single publisher goroutine and is not safe for concurrent use.
type StateCache struct {
	last map[string]EntityState
}

// NewStateCache returns an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{last: make(map[string]EntityState)}
}

// Changed reports whether cur differs from the last stored state.
func (c *StateCache) Changed(cur EntityState) bool {
	prev, ok := c.last[cur.UniqueID]
	if !ok {
		return Changed(nil, cur)
	}
	return Changed(&prev, cur)
}

// Store records cur as published.
func (c *StateCache) Store(cur EntityState) {
	c.last[cur.UniqueID] = cur
}

// Forget drops every stored state so the next pass republishes everything.
func (c *StateCache) Forget() {
	c.last = make(map[string]EntityState)
}
