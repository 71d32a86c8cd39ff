// Package probe is the sole path through which ramboot queries the
// kernel's block-layer model. It wraps lsblk's inverse-dependency mode
// (lsblk -s) so that, given any device, it can answer "what does this
// device sit on top of" without the caller needing to know whether that
// device is a disk, a partition, an LVM logical volume, a RAID member,
// or a device-mapper node.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.ramboot.dev/ramboot/sysexec"
)

// ErrUnavailable is returned when lsblk has no data for a device - it
// does not exist, or the probe tool exited non-zero. Storage-class
// classifiers catch this and answer "false" (the device is simply not
// that kind of thing); callers that need the data propagate it.
var ErrUnavailable = errors.New("probe: device unavailable")

// columns is the fixed set of lsblk output fields the probe requests.
// Every classifier and mount-inventory resolver in ramboot is answered
// from this one column set, so whichever query a caller makes, one lsblk
// invocation returns every column it needs. Each query runs its own
// invocation; results are not cached between queries.
var columns = []string{
	"NAME", "PATH", "TYPE", "SIZE", "FSTYPE", "MOUNTPOINT", "UUID", "PARTUUID", "LABEL",
}

// Prober queries the block-device tree via the sysexec external-tool port.
type Prober struct {
	exec sysexec.Executor
}

// New creates a Prober backed by the given command executor.
func New(exec sysexec.Executor) *Prober {
	return &Prober{exec: exec}
}

// GetTree returns the inverse block-device tree rooted at device.
func (p *Prober) GetTree(ctx context.Context, device string) (*Node, error) {
	args := append([]string{"-J", "-b", "-s", "-o", join(columns)}, device)
	out, err := p.exec.Output(ctx, "lsblk", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, device, err)
	}

	var result struct {
		BlockDevices []*Node `json:"blockdevices"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("probe: parse lsblk output for %s: %w", device, err)
	}
	if len(result.BlockDevices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, device)
	}
	return result.BlockDevices[0], nil
}

// FirstFieldMatching walks the children[0] chain of device's tree, node
// by node, looking for the first node whose key field equals value, and
// returns that node's returnField. When continuePastNull is false, a
// node with an empty key field stops the walk (no match); when true,
// such nodes are skipped and the walk continues to the next child.
func (p *Prober) FirstFieldMatching(ctx context.Context, device, key, value, returnField string, continuePastNull bool) (string, bool, error) {
	tree, err := p.GetTree(ctx, device)
	if err != nil {
		return "", false, err
	}
	for _, n := range tree.walkFirst() {
		fv := n.field(key)
		if fv == "" {
			if continuePastNull {
				continue
			}
			break
		}
		if fv == value {
			return n.field(returnField), true, nil
		}
	}
	return "", false, nil
}

// FirstNonNullAtAnyDepth returns the first non-empty returnField found
// by a full depth-first traversal of device's tree (not limited to the
// children[0] chain).
func (p *Prober) FirstNonNullAtAnyDepth(ctx context.Context, device, returnField string) (string, bool, error) {
	tree, err := p.GetTree(ctx, device)
	if err != nil {
		return "", false, err
	}
	for _, n := range tree.walkAll() {
		if fv := n.field(returnField); fv != "" {
			return fv, true, nil
		}
	}
	return "", false, nil
}

// AllFieldsMatching returns returnField for every node, at any depth, in
// device's tree whose key field equals value.
func (p *Prober) AllFieldsMatching(ctx context.Context, device, key, value, returnField string) ([]string, error) {
	tree, err := p.GetTree(ctx, device)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range tree.walkAll() {
		if n.field(key) == value {
			out = append(out, n.field(returnField))
		}
	}
	return out, nil
}

// TypeOf returns the lsblk TYPE of device itself (disk, part, lvm,
// lvm2, raid0/1/5/6/10, crypt, ...).
func (p *Prober) TypeOf(ctx context.Context, device string) (string, error) {
	tree, err := p.GetTree(ctx, device)
	if err != nil {
		return "", err
	}
	return tree.Type, nil
}

// DisksOf returns every whole-disk ancestor of device, sorted and
// deduplicated.
func (p *Prober) DisksOf(ctx context.Context, device string) ([]string, error) {
	names, err := p.AllFieldsMatching(ctx, device, "type", "disk", "path")
	if err != nil {
		return nil, err
	}
	return sortedUnique(names), nil
}

// PartitionsOf returns every backing partition of device, sorted and
// deduplicated.
func (p *Prober) PartitionsOf(ctx context.Context, device string) ([]string, error) {
	names, err := p.AllFieldsMatching(ctx, device, "type", "part", "path")
	if err != nil {
		return nil, err
	}
	return sortedUnique(names), nil
}

// DiskSizeGB returns device's size in gigabytes, rounded up.
func (p *Prober) DiskSizeGB(ctx context.Context, device string) (int, error) {
	tree, err := p.GetTree(ctx, device)
	if err != nil {
		return 0, err
	}
	return bytesToGB(tree.Size), nil
}

// MountSizeGB is an alias of DiskSizeGB used where the caller is
// resolving the size of a mounted partition rather than a whole disk;
// both read the same SIZE column off the same tree node.
func (p *Prober) MountSizeGB(ctx context.Context, device string) (int, error) {
	return p.DiskSizeGB(ctx, device)
}

func bytesToGB(size uint64) int {
	return int(math.Ceil(float64(size) / (1024 * 1024 * 1024)))
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func join(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += "," + c
	}
	return out
}
