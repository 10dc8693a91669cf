package bridge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zenibako/spacemap-qlab/messages"
)

// TrackedObject is one device object the bridge follows. Coordinates are
// updated by device reports and by orchestration-driven refreshes.
type TrackedObject struct {
	Number      int
	DisplayName string
	X           float64
	Y           float64
}

// PositionCache is the authoritative set of tracked objects. All access
// is serialized behind one mutex; device reports and concurrent polling
// waits both mutate it.
type PositionCache struct {
	mu      sync.Mutex
	objects map[int]*TrackedObject
}

// NewPositionCache returns an empty cache.
func NewPositionCache() *PositionCache {
	return &PositionCache{objects: make(map[int]*TrackedObject)}
}

// Add starts tracking object n at the origin. Numbers outside the device
// range are rejected, as is a number already tracked: overwriting would
// silently discard the existing name and positions, so duplicates fail
// loudly and Rename stays the only way to change a display name.
func (c *PositionCache) Add(n int, name string) error {
	if !messages.ValidObject(n) {
		return fmt.Errorf("object %d: %w (must be %d-%d)",
			n, ErrOutOfRange, messages.ObjectMin, messages.ObjectMax)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.objects[n]; exists {
		return fmt.Errorf("object %d: %w", n, ErrDuplicate)
	}
	c.objects[n] = &TrackedObject{Number: n, DisplayName: name}
	return nil
}

// Lookup returns a copy of object n.
func (c *PositionCache) Lookup(n int) (TrackedObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[n]
	if !ok {
		return TrackedObject{}, fmt.Errorf("object %d: %w", n, ErrNotFound)
	}
	return *obj, nil
}

// List returns a snapshot of all tracked objects, ascending by number.
func (c *PositionCache) List() []TrackedObject {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]TrackedObject, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, *obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Remove stops tracking object n.
func (c *PositionCache) Remove(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[n]; !ok {
		return fmt.Errorf("object %d: %w", n, ErrNotFound)
	}
	delete(c.objects, n)
	return nil
}

// Rename changes the display name of object n. Coordinates are untouched.
func (c *PositionCache) Rename(n int, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[n]
	if !ok {
		return fmt.Errorf("object %d: %w", n, ErrNotFound)
	}
	obj.DisplayName = name
	return nil
}

// ApplyPosition updates the coordinates of object n. A nil coordinate
// keeps its prior value; device reports may carry x only, y only, or
// both, depending on which sub-address produced them.
func (c *PositionCache) ApplyPosition(n int, x, y *float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[n]
	if !ok {
		return fmt.Errorf("object %d: %w", n, ErrNotFound)
	}
	if x != nil {
		obj.X = *x
	}
	if y != nil {
		obj.Y = *y
	}
	return nil
}

// Len returns the number of tracked objects.
func (c *PositionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}
