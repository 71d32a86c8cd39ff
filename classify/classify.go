// Package classify holds pure predicates and resolvers for the storage
// technologies ramboot's mount inventory needs to tell apart: plain
// partitions, LVM logical volumes, software RAID, and ZFS pools. Each
// function consumes a probe.Prober and/or a sysexec.Executor and
// answers one narrow question about a single device.
package classify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/sysexec"
)

// lvmTypes are the lsblk TYPE values that mean "this is an LVM logical volume".
var lvmTypes = map[string]bool{"lvm": true, "lvm2": true}

// IsLVM reports whether device is an LVM logical volume. A probe
// failure (device does not exist, lsblk errored) is not an error here:
// it simply means the device is not LVM.
func IsLVM(ctx context.Context, p *probe.Prober, device string) bool {
	typ, err := p.TypeOf(ctx, device)
	if err != nil {
		return false
	}
	return lvmTypes[typ]
}

// IsRAID reports whether device's lsblk TYPE begins with "raid"
// (raid0, raid1, raid5, raid6, raid10, ...).
func IsRAID(ctx context.Context, p *probe.Prober, device string) bool {
	typ, err := p.TypeOf(ctx, device)
	if err != nil {
		return false
	}
	return strings.HasPrefix(typ, "raid")
}

// LVMMap returns the canonical /dev/mapper/<name> form of an LVM
// device, found by walking device's tree for the first node of type
// "lvm" and reading its name.
func LVMMap(ctx context.Context, p *probe.Prober, device string) (string, error) {
	name, ok, err := p.FirstFieldMatching(ctx, device, "type", "lvm", "name", true)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("classify: no lvm node found for %s", device)
	}
	return "/dev/mapper/" + name, nil
}

// LVMVolumeGroup invokes the LVM volume-group query tool (lvs) and
// returns the trimmed volume group name backing device.
func LVMVolumeGroup(ctx context.Context, exec sysexec.Executor, device string) (string, error) {
	out, err := exec.Output(ctx, "/sbin/lvs", "--noheadings", "--options", "vg_name", device)
	if err != nil {
		return "", fmt.Errorf("classify: lvs %s: %w", device, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// LVMPartition resolves device's backing physical volume partition: it
// looks up the volume group, then asks vgs for the physical volume
// backing that group.
func LVMPartition(ctx context.Context, exec sysexec.Executor, device string) (string, error) {
	vg, err := LVMVolumeGroup(ctx, exec, device)
	if err != nil {
		return "", err
	}
	out, err := exec.Output(ctx, "/sbin/vgs", "--noheadings", "--options", "pv_name", vg)
	if err != nil {
		return "", fmt.Errorf("classify: vgs %s: %w", vg, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// LVMSizeGB returns the size, in gigabytes rounded up, of the logical
// volume backing device.
func LVMSizeGB(ctx context.Context, exec sysexec.Executor, device string) (int, error) {
	out, err := exec.Output(ctx, "/sbin/lvs", "--noheadings", "--options", "lv_size", "--units", "g", "--nosuffix", device)
	if err != nil {
		return 0, fmt.Errorf("classify: lvs size %s: %w", device, err)
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("classify: parse lvs size %q: %w", out, err)
	}
	return int(math.Ceil(size)), nil
}

// DisksOf collects every whole-disk ancestor of device, sorted and
// deduplicated. It is a thin forward to the probe's own convenience
// resolver, exposed here too since classifiers are where mount
// inventory looks up parent disks once a device's storage class is
// known.
func DisksOf(ctx context.Context, p *probe.Prober, device string) ([]string, error) {
	return p.DisksOf(ctx, device)
}

// ZFSPoolSizeGB invokes `zpool list -p` (bytes) and rounds the result
// up to gigabytes.
func ZFSPoolSizeGB(ctx context.Context, exec sysexec.Executor, pool string) (int, error) {
	out, err := exec.Output(ctx, "zpool", "list", "-H", "-o", "size", "-p", pool)
	if err != nil {
		return 0, fmt.Errorf("classify: zpool list %s: %w", pool, err)
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("classify: parse zpool size %q: %w", out, err)
	}
	return int(math.Ceil(size / (1024 * 1024 * 1024))), nil
}
