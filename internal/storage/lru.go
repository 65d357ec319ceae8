package storage

import "container/list"

// DerivationCache is an LRU set of derivation keys used to suppress
// re-producing the same conclusion from the same premises along the same
// path.
type DerivationCache struct {
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

// NewDerivationCache creates an LRU cache with the given capacity.
func NewDerivationCache(capacity int) *DerivationCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &DerivationCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Contains reports whether the key is cached, refreshing its recency.
func (c *DerivationCache) Contains(key string) bool {
	el, ok := c.entries[key]
	if ok {
		c.order.MoveToFront(el)
	}
	return ok
}

// Add inserts the key, evicting the least recently used entry when full.
func (c *DerivationCache) Add(key string) {
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(key)
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}
}

// Len returns the number of cached keys.
func (c *DerivationCache) Len() int { return c.order.Len() }

// Clear empties the cache.
func (c *DerivationCache) Clear() {
	c.order.Init()
	c.entries = make(map[string]*list.Element, c.capacity)
}

// MemoKey identifies a derivation target reached along a particular
// activation path.
type MemoKey struct {
	Target   string
	PathHash uint64
}

// Memoization records the minimum path length at which each (target, path)
// pair was reached. A conclusion reached again at equal or longer length is
// skipped.
type Memoization struct {
	min map[MemoKey]uint32
}

// NewMemoization creates an empty memoization table.
func NewMemoization() *Memoization {
	return &Memoization{min: make(map[MemoKey]uint32)}
}

// ShouldSkip reports whether the target was previously reached along this
// path at a shorter or equal length.
func (m *Memoization) ShouldSkip(key MemoKey, pathLength uint32) bool {
	prev, ok := m.min[key]
	return ok && prev <= pathLength
}

// Record stores the path length if it improves on the previous minimum.
func (m *Memoization) Record(key MemoKey, pathLength uint32) {
	if prev, ok := m.min[key]; !ok || pathLength < prev {
		m.min[key] = pathLength
	}
}

// Len returns the number of memoized entries.
func (m *Memoization) Len() int { return len(m.min) }

// Truncate drops arbitrary entries until at most target remain. Called from
// memory maintenance when the table exceeds its configured bound.
func (m *Memoization) Truncate(target int) {
	if target < 0 || len(m.min) <= target {
		return
	}
	for k := range m.min {
		if len(m.min) <= target {
			break
		}
		delete(m.min, k)
	}
}

// Clear empties the table.
func (m *Memoization) Clear() {
	m.min = make(map[MemoKey]uint32)
}
