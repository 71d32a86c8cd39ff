package mount

import (
	"context"
	"sort"

	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/sysexec"
)

// Collection is the ordered, deduplicated mount inventory the rest of
// the boot pipeline walks: root always present and first by
// destination, every other destination appearing at most once
// (first-in-source-order wins), the whole set sorted by mount depth so
// that parents are always replicated and pivoted before their children.
type Collection struct {
	entries []*MountEntry
}

// NewCollection builds a Collection from a flat, unordered list of
// entries (as produced by ParseFstab, or by merging fstab entries with
// zfsvol-derived ones). Every entry is initialized against p and exec
// before the collection is sorted. The entries slice is not retained.
func NewCollection(ctx context.Context, entries []*MountEntry, p *probe.Prober, exec sysexec.Executor) (*Collection, error) {
	var root *MountEntry
	for _, e := range entries {
		if e.IsRoot() {
			root = e
			break
		}
	}
	if root == nil {
		return nil, ErrNoRootMount
	}

	deduped := []*MountEntry{root}
	seen := map[string]bool{root.Destination: true}
	for _, e := range entries {
		if seen[e.Destination] {
			continue
		}
		seen[e.Destination] = true
		deduped = append(deduped, e)
	}

	for _, e := range deduped {
		if err := e.Initialize(ctx, p, exec); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return Depth(deduped[i].Destination) < Depth(deduped[j].Destination)
	})

	return &Collection{entries: deduped}, nil
}

// Len returns the number of entries in the collection.
func (c *Collection) Len() int {
	return len(c.entries)
}

// At returns the i'th entry in depth order.
func (c *Collection) At(i int) *MountEntry {
	return c.entries[i]
}

// All returns every entry, in depth order. The returned slice is a copy
// and may be mutated freely by the caller.
func (c *Collection) All() []*MountEntry {
	out := make([]*MountEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Root returns the entry mounted at "/". Every Collection built via
// NewCollection is guaranteed to have one.
func (c *Collection) Root() *MountEntry {
	for _, e := range c.entries {
		if e.IsRoot() {
			return e
		}
	}
	return nil
}

// Physical returns a new Collection containing only entries that
// correspond to real local block devices (IsPhysical), re-sorted by
// depth. Re-running it through NewCollection is cheap: every entry is
// already initialized, so Initialize is a no-op and no external tools
// are invoked again.
func (c *Collection) Physical(ctx context.Context, p *probe.Prober, exec sysexec.Executor) (*Collection, error) {
	var physical []*MountEntry
	for _, e := range c.entries {
		if e.IsPhysical() {
			physical = append(physical, e)
		}
	}
	return NewCollection(ctx, physical, p, exec)
}
