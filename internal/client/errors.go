package client

import "time"

// DefaultErrorWindow is how long a scoped operation error stays visible
// before it clears itself.
const DefaultErrorWindow = 10 * time.Second

// scopedError tracks one operation's displayed failure. The generation
// counter lets the deferred clear tell whether a newer failure has replaced
// it in the meantime.
type scopedError struct {
	err        error
	generation uint64
}

// Fail records an error scoped to one operation, e.g. "addBook" or "login".
// It clears itself after the error window unless a newer failure for the
// same scope replaced it first. One failed operation never disturbs the
// cached entity data or errors in other scopes.
func (c *Cache) Fail(scope string, err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	gen := uint64(1)
	if prev, ok := c.errs[scope]; ok {
		gen = prev.generation + 1
	}
	c.errs[scope] = &scopedError{err: err, generation: gen}
	c.mu.Unlock()

	c.logger.Debug("operation failed", "scope", scope, "error", err)

	time.AfterFunc(c.errWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if cur, ok := c.errs[scope]; ok && cur.generation == gen {
			delete(c.errs, scope)
		}
	})
}

// Err returns the currently displayed error for a scope, or nil.
func (c *Cache) Err(scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.errs[scope]; ok {
		return cur.err
	}
	return nil
}

// ClearErr drops a scoped error before its window expires, e.g. when the
// user retries the operation.
func (c *Cache) ClearErr(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.errs, scope)
}
