package content

import (
	"context"
	"fmt"
)

// RegisterBacking binds a named backing-store service as this root
// cache's load/store collaborator. A cache starts unbound and latches
// the first name it binds for the rest of its lifetime, including across
// an unregister; a register under a different name is rejected with
// NameMismatch, and a second register under the same name while bound
// with Busy.
func (c *Cache) RegisterBacking(name string, loader Loader, storer Storer) error {
	if !c.IsRoot() {
		return newErr(InvalidRole, "backing-store registration is root-only")
	}
	if c.backing == backingBound {
		if c.backingName != name {
			return newErr(NameMismatch, fmt.Sprintf("already bound to backing %q", c.backingName))
		}
		return newErr(Busy, "backing store already registered")
	}
	// The latched name survives an unregister; only a cache that has
	// never bound a backing accepts any name.
	if c.backingName != "" && c.backingName != name {
		return newErr(NameMismatch, fmt.Sprintf("previously bound to backing %q", c.backingName))
	}
	c.backing = backingBound
	c.backingName = name
	c.loader = loader
	c.storer = storer
	c.log.Info("content backing store registered", "name", name)
	c.pumpFlushQueue(context.Background())
	return nil
}

// UnregisterBacking releases the current binding, if any. The latched
// backingName persists so a later register is still constrained to it.
// Any parked flush waiters can no longer complete and are failed.
func (c *Cache) UnregisterBacking() error {
	if !c.IsRoot() {
		return newErr(InvalidRole, "backing-store registration is root-only")
	}
	if c.backing == backingNone {
		return nil
	}
	c.backing = backingNone
	c.loader = nil
	c.storer = nil
	c.log.Info("content backing store unregistered", "name", c.backingName)
	waiters := c.flushWaiters
	c.flushWaiters = nil
	for _, w := range waiters {
		if !w.Disconnected() {
			w.FailFlush(newErr(NotImplemented, "backing store unregistered"))
		}
	}
	return nil
}

// BackingName reports the currently bound backing-store name, if any.
func (c *Cache) BackingName() (name string, bound bool) {
	return c.backingName, c.backing == backingBound
}
