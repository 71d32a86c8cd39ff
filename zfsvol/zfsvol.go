// Package zfsvol discovers ZFS datasets and projects them into the same
// mount.MountEntry shape as fstab-declared mounts, so the rest of the
// boot pipeline never needs to know a given entry came from a pool
// instead of a partition table.
package zfsvol

import (
	"context"
	"sort"

	gozfs "github.com/mistifyio/go-zfs/v4"

	"go.ramboot.dev/ramboot/classify"
	"go.ramboot.dev/ramboot/mount"
	"go.ramboot.dev/ramboot/sysexec"
)

// Volume is one ZFS dataset, carrying the order it was returned in by
// `zfs list` (used to break ties when the same mountpoint is claimed by
// more than one dataset) alongside the pool and size facts its
// MountEntry projection needs.
type Volume struct {
	Name   string
	Dest   string
	Order  int
	Pool   string
	SizeGB int
}

// Discover lists every ZFS dataset visible to the system and returns one
// Volume per dataset, in `zfs list` order. Datasets are resolved via
// go-zfs rather than hand-parsed `zfs list` output; pool size is
// resolved through the sysexec port so it stays mockable in tests. A
// system with no ZFS support at all (zfs/zpool binaries missing)
// returns an empty slice, not an error: ZFS is one of several optional
// storage technologies ramboot may or may not find in use.
func Discover(ctx context.Context, exec sysexec.Executor) ([]*Volume, error) {
	datasets, err := gozfs.Datasets("")
	if err != nil {
		return nil, nil
	}

	poolSizes := map[string]int{}
	var volumes []*Volume
	for i, ds := range datasets {
		pool := poolName(ds.Name)
		size, ok := poolSizes[pool]
		if !ok {
			size, err = classify.ZFSPoolSizeGB(ctx, exec, pool)
			if err != nil {
				size = 0
			}
			poolSizes[pool] = size
		}
		volumes = append(volumes, &Volume{
			Name:   ds.Name,
			Dest:   ds.Mountpoint,
			Order:  i,
			Pool:   pool,
			SizeGB: size,
		})
	}
	return volumes, nil
}

// ToMountEntry projects a Volume into a fully-initialized MountEntry.
// ZFS entries skip MountEntry.Initialize's generic discovery dispatch
// entirely: their topology is pool-level rather than partition-level, so
// there is no backing partition for the probe to find, only the pool
// itself acting as both "partition" and "parent disk".
func (v *Volume) ToMountEntry() *mount.MountEntry {
	e := mount.New(v.Name, v.Dest, "zfs", nil, "0", "0")
	e.CanonicalSource = v.Name
	e.IsLVM = false
	e.IsRAID = false
	e.Partitions = []string{v.Name}
	e.ParentDisks = []string{v.Pool}
	e.SizeGB = v.SizeGB
	e.ParentSizeGB = v.SizeGB
	e.MarkInitialized()
	return e
}

// MountEntries filters out datasets with no mountpoint ("none" or
// "legacy" entries managed by fstab instead), deduplicates by
// destination keeping the highest-order (last-listed) dataset when two
// datasets claim the same mountpoint, and projects the survivors into
// MountEntry values.
func MountEntries(volumes []*Volume) []*mount.MountEntry {
	byDest := map[string]*Volume{}
	for _, v := range volumes {
		if v.Dest == "" || v.Dest == "none" || v.Dest == "legacy" {
			continue
		}
		if existing, ok := byDest[v.Dest]; !ok || v.Order > existing.Order {
			byDest[v.Dest] = v
		}
	}

	dests := make([]string, 0, len(byDest))
	for d := range byDest {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	entries := make([]*mount.MountEntry, 0, len(dests))
	for _, d := range dests {
		entries = append(entries, byDest[d].ToMountEntry())
	}
	return entries
}

func poolName(dataset string) string {
	for i, c := range dataset {
		if c == '/' {
			return dataset[:i]
		}
	}
	return dataset
}
