// Package activation runs the storage-technology drivers that need to
// run before the block-device probe can see a system's full topology:
// software RAID arrays, ZFS pools, Btrfs multi-device filesystems and
// LVM volume groups all need an explicit activation step, since the
// kernel does not assemble them on its own at early boot.
package activation

import (
	"context"
	"path/filepath"

	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/sysexec"
)

// Run drives every enabled activation in a fixed order: RAID assembly
// has to happen first since a RAID member may itself be an LVM physical
// volume or host a ZFS pool, Btrfs multi-device scanning and LVM volume
// group activation come last since neither depends on the others having
// already run. A tool that isn't present on the running system is
// skipped silently: not every ramboot target has every storage
// technology installed, and a missing tool simply means that technology
// is not in use here.
func Run(ctx context.Context, cfg *config.Config, exec sysexec.Executor) {
	if cfg.Activations.RAID {
		AssembleRAID(ctx, exec)
	}
	if cfg.Activations.ZFS {
		ImportZpools(ctx, exec)
	}
	if cfg.Activations.Btrfs {
		ScanBtrfs(ctx, exec)
	}
	if cfg.Activations.LVM {
		ActivateVGs(ctx, exec)
	}
}

// AssembleRAID assembles every software RAID array mdadm can find by
// scanning, then pokes each resulting /dev/md* node with `udevadm test`
// so the kernel finishes creating its device nodes before the probe
// runs.
func AssembleRAID(ctx context.Context, exec sysexec.Executor) {
	runSilently(ctx, exec, "/usr/sbin/mdadm", "--assemble", "--scan")

	// The glob pattern excludes bare /dev/md, which is a directory, not
	// a device node, on systems that use the mdadm "named array" layout.
	mdNodes, _ := filepath.Glob("/dev/md?*")
	for _, node := range mdNodes {
		runSilently(ctx, exec, "/usr/sbin/udevadm", "test", node)
	}
}

// ImportZpools imports every ZFS pool the system can find.
func ImportZpools(ctx context.Context, exec sysexec.Executor) {
	runSilently(ctx, exec, "/usr/sbin/zpool", "import", "-a")
}

// ScanBtrfs scans every attached block device for Btrfs multi-device
// filesystem members.
func ScanBtrfs(ctx context.Context, exec sysexec.Executor) {
	runSilently(ctx, exec, "/usr/sbin/btrfs", "device", "scan", "--all")
}

// ActivateVGs activates every LVM volume group and asks vgscan to create
// the corresponding /dev/mapper nodes.
func ActivateVGs(ctx context.Context, exec sysexec.Executor) {
	runSilently(ctx, exec, "/usr/sbin/vgchange", "-a", "y")
	runSilently(ctx, exec, "/usr/sbin/vgscan", "--mknodes")
}

// runSilently invokes name and swallows both ErrToolMissing (the binary
// simply isn't installed) and any runtime failure: an activation driver
// is best-effort by design, since the mount inventory that follows only
// cares about what actually got activated, not about why something
// didn't.
func runSilently(ctx context.Context, exec sysexec.Executor, name string, args ...string) {
	_ = exec.Run(ctx, name, args...)
}
