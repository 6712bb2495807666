package atoms

import (
	"sync"
	"time"
)

// Cell is a reactive state cell. Subscribers are notified synchronously
// after every Set, in subscription order.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[uint64]func(T)
	order  []uint64
	nextID uint64
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: make(map[uint64]func(T))}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	fns := c.snapshot()
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to the current value and stores the result.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	c.value = fn(c.value)
	v := c.value
	fns := c.snapshot()
	c.mu.Unlock()
	for _, f := range fns {
		f(v)
	}
	return v
}

// Subscribe registers fn for value changes and returns its unsubscribe.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	c.order = append(c.order, id)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; !ok {
			return
		}
		delete(c.subs, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Watch adapts the cell to Derived sources.
func (c *Cell[T]) Watch(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}

func (c *Cell[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.subs[id])
	}
	return out
}

// Source is anything a Derived cell can recompute from.
type Source interface {
	Watch(fn func()) func()
}

// Derived is a read-only cell computed from other cells.
type Derived[T any] struct {
	compute func() T
	out     *Cell[T]
}

// NewDerived creates a derived cell recomputed whenever a source changes.
func NewDerived[T any](compute func() T, sources ...Source) *Derived[T] {
	d := &Derived[T]{compute: compute, out: NewCell(compute())}
	for _, s := range sources {
		s.Watch(func() { d.out.Set(d.compute()) })
	}
	return d
}

// Get returns the derived value.
func (d *Derived[T]) Get() T { return d.compute() }

// Subscribe registers fn for recomputed values.
func (d *Derived[T]) Subscribe(fn func(T)) func() { return d.out.Subscribe(fn) }

// Watch lets derived cells feed further derived cells.
func (d *Derived[T]) Watch(fn func()) func() { return d.out.Watch(fn) }

// BaseCells are present in every bundle.
type BaseCells struct {
	Active      *Cell[bool]
	Error       *Cell[string]
	Loading     *Cell[bool]
	LastUpdated *Cell[time.Time]
}

// NewBaseCells returns the base set with its defaults: active, no error,
// not loading, never updated.
func NewBaseCells() *BaseCells {
	return &BaseCells{
		Active:      NewCell(true),
		Error:       NewCell(""),
		Loading:     NewCell(false),
		LastUpdated: NewCell(time.Time{}),
	}
}

// Base lets BaseCells satisfy Bundle on its own.
func (b *BaseCells) Base() *BaseCells { return b }

// Touch records now as the last update time.
func (b *BaseCells) Touch(now time.Time) { b.LastUpdated.Set(now) }

// Fail records err in the error slot and clears the loading flag.
func (b *BaseCells) Fail(err error) {
	if err == nil {
		b.Error.Set("")
		return
	}
	b.Error.Set(err.Error())
	b.Loading.Set(false)
}
