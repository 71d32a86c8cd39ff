package ramdisk

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/mem"

	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/mount"
)

// Plan decides the RAM disk's layout from the physical mount inventory
// and the configuration's overrides. Btrfs and ZFS roots always force
// the single-partition layout regardless of the simple_ramdisk setting:
// both filesystems manage their own subvolumes/datasets internally, and
// trying to carve them up into separate RAM-disk partitions would fight
// that instead of reproducing it.
func Plan(cfg *config.Config, physical *mount.Collection) *Plan {
	root := physical.Root()

	var partitions []Partition
	if cfg.SimpleRAMDisk || root.FSType == "zfs" || root.FSType == "btrfs" {
		size := simpleSizeGB(cfg, physical)
		fstype := simpleFSType(cfg, root)
		partitions = []Partition{{
			Order:       1,
			Destination: "/",
			SizeGB:      size,
			FSType:      substituteZFS(cfg, fstype),
		}}
	} else {
		for i, m := range physical.All() {
			partitions = append(partitions, Partition{
				Order:       i + 1,
				Destination: m.Destination,
				SizeGB:      m.SizeGB,
				FSType:      substituteZFS(cfg, m.FSType),
			})
		}
	}

	return &Plan{
		Partitions:  partitions,
		TotalSizeGB: withSlack(sumSizes(partitions)),
	}
}

// simpleSizeGB returns the configured override, or else the sum of
// distinct parent-disk tuples' sizes across the physical mounts: a mount
// whose parent disks are shared with another mount (striping, an LVM
// volume group spanning multiple disks already counted under a sibling
// mount) is only counted once.
func simpleSizeGB(cfg *config.Config, physical *mount.Collection) int {
	if cfg.SimpleRAMDiskSizeGB > 0 {
		return cfg.SimpleRAMDiskSizeGB
	}

	seen := map[string]bool{}
	total := 0
	for _, m := range physical.All() {
		key := m.ParentDiskKey()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		total += m.ParentSizeGB
	}
	return total
}

func simpleFSType(cfg *config.Config, root *mount.MountEntry) string {
	if cfg.SimpleRAMDiskFSType != "" {
		return cfg.SimpleRAMDiskFSType
	}
	return root.FSType
}

// substituteZFS replaces "zfs" with the configured replacement
// filesystem, since a RAM disk partition is never itself a ZFS pool.
func substituteZFS(cfg *config.Config, fstype string) string {
	if fstype == "zfs" {
		return cfg.ZFSReplacementFSType
	}
	return fstype
}

func sumSizes(partitions []Partition) int {
	total := 0
	for _, p := range partitions {
		total += p.SizeGB
	}
	return total
}

// withSlack adds a buffer on top of the raw partition total: the
// greater of 2GB or 5% of the total, matching the margin ramboot has
// always budgeted for filesystem overhead and rounding error in the
// underlying size lookups.
func withSlack(totalGB int) int {
	slack := int(float64(totalGB) * 0.05)
	if slack < 2 {
		slack = 2
	}
	return totalGB + slack
}

// WarnIfTight logs a warning, but does not fail, when the planned RAM
// disk is large relative to available memory: going ahead anyway is a
// valid choice on a system with swap or one the operator already knows
// is tight, so this is a diagnostic rather than a guard.
func WarnIfTight(ctx context.Context, logger *slog.Logger, plan *Plan) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return
	}
	neededBytes := uint64(plan.TotalSizeGB) * 1024 * 1024 * 1024
	if neededBytes > vm.Available {
		logger.Warn("ram disk plan exceeds available memory",
			"planned_gb", plan.TotalSizeGB,
			"available_bytes", vm.Available,
		)
	}
}
