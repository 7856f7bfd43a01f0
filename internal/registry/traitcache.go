package registry

// TraitCache remembers which requirements of a slot have been resolved against the
// store. Resolution only ever moves forward: once a trait is known to exist with the
// expected kind it is not looked up again.
type TraitCache struct {
	Resolved  []bool
	Fulfilled bool

	mismatched map[string]struct{}
}

func newTraitCache() *TraitCache {
	return &TraitCache{mismatched: make(map[string]struct{})}
}

func (c *TraitCache) reset() *TraitCache {
	c.Resolved = c.Resolved[:0]
	c.Fulfilled = false
	clear(c.mismatched)
	return c
}

// MarkMismatch records a kind mismatch on name and reports whether it is the first one.
func (c *TraitCache) MarkMismatch(name string) bool {
	if _, ok := c.mismatched[name]; ok {
		return false
	}
	c.mismatched[name] = struct{}{}
	return true
}
