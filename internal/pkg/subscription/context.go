package subscription

// Context is an ordered set of key-value pairs attached to billing events
// and flow log lines. Insertion order is preserved so rendered output is
// stable and diffable.
type Context struct {
	keys   []string
	values map[string]string
}

// NewContext creates an empty event context.
func NewContext() *Context {
	return &Context{values: make(map[string]string)}
}

// Set adds or replaces a value. Replacing keeps the key's original position.
func (c *Context) Set(key, value string) *Context {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
	return c
}

// Get returns the value for a key, and whether it is present.
func (c *Context) Get(key string) (string, bool) {
	if c == nil || c.values == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	return c.keys
}

// Len returns the number of entries.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}
