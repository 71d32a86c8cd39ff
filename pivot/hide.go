package pivot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/mount"
)

// ZpoolCacheFile and ZFSListCacheDir are removed so a ZFS-rooted system
// doesn't try to re-import the original pool on its next real reboot,
// which would see the RAM disk's copy and the original pool fighting
// over the same pool name. They are exported vars, not consts, so
// callers (and tests, following the same convention as ramdisk.Base)
// can redirect them into a temp directory instead of touching the real
// system's /etc/zfs.
var (
	ZpoolCacheFile  = "/etc/zfs/zpool.cache"
	ZFSListCacheDir = "/etc/zfs/zfs-list.cache"
)

// maskedZFSTargets are masked the same way `systemctl mask` would: by
// symlinking their unit file to /dev/null. A direct D-Bus call to the
// running systemd manager would be more conventional, but the manager
// that's reachable right after pivot_root is still the pre-pivot
// instance, and there's no guarantee its D-Bus socket survives the
// pivot; writing the symlink directly needs no running daemon at all.
var maskedZFSTargets = []string{
	"zfs-volumes.target",
	"zfs-import.target",
	"zfs.target",
}

// SystemdUnitDir and SysfsBlockDir are exported vars for the same
// reason: pointing them at a temp directory exercises the real
// mask/hide logic without writing into the host's actual /etc or /sys.
var (
	SystemdUnitDir = "/etc/systemd/system"
	SysfsBlockDir  = "/sys/block"
)

// HideDevices best-effort hides whatever trace of the original
// disk-backed root the configuration asks to remove. Every failure here
// is logged and swallowed: the system is already running live from the
// RAM disk, and a hide step failing is cosmetic, not a boot failure.
func HideDevices(ctx context.Context, logger *slog.Logger, cfg *config.Config, all []*mount.MountEntry) {
	root := rootOf(all)
	if root == nil {
		return
	}

	if root.FSType == "zfs" {
		hideZFSCache(logger)
		maskZFSTargets(logger)
	}
	hideBlockDevices(logger, cfg, root, all)
}

func rootOf(all []*mount.MountEntry) *mount.MountEntry {
	for _, m := range all {
		if m.IsRoot() {
			return m
		}
	}
	return nil
}

func hideZFSCache(logger *slog.Logger) {
	files := []string{ZpoolCacheFile}
	if matches, err := filepath.Glob(filepath.Join(ZFSListCacheDir, "*")); err == nil {
		files = append(files, matches...)
	}
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			continue
		}
		if err := os.Remove(f); err != nil {
			logger.Warn("could not remove zfs cache file", "path", f, "error", err)
		}
	}
}

// maskZFSTargets prevents the next real reboot's systemd from trying to
// bring ZFS back up against a root that is no longer a ZFS pool.
func maskZFSTargets(logger *slog.Logger) {
	for _, target := range maskedZFSTargets {
		unitPath := filepath.Join(SystemdUnitDir, target)
		_ = os.Remove(unitPath)
		if err := os.Symlink(os.DevNull, unitPath); err != nil {
			logger.Warn("could not mask zfs systemd target", "target", target, "error", err)
		}
	}
}

// hideBlockDevices writes "1" to each backing disk's sysfs delete file,
// causing the kernel to detach it from userspace. This only runs for an
// LVM root: on a plain-partition root, ramboot is still running off
// that same disk's contents (now just copied into RAM), and there is no
// way to hide the disk out from under its own live copy without a
// dedicated teardown service running later in boot, which ramboot does
// not provide today.
//
// Config.HideDisks gates this: hide iff HideDisks is true. The source
// material this was ported from had this check inverted (hiding unless
// the option was set), so in practice it never ran at all; ramboot
// restores the option's stated meaning.
func hideBlockDevices(logger *slog.Logger, cfg *config.Config, root *mount.MountEntry, all []*mount.MountEntry) {
	if !cfg.HideDisks {
		return
	}
	if !root.IsLVM {
		return
	}

	disks := map[string]bool{}
	for _, m := range all {
		for _, d := range m.ParentDisks {
			disks[filepath.Base(d)] = true
		}
	}

	for disk := range disks {
		deletePath := filepath.Join(SysfsBlockDir, disk, "device", "delete")
		if _, err := os.Stat(deletePath); err != nil {
			continue
		}
		if err := os.WriteFile(deletePath, []byte("1"), 0o200); err != nil {
			logger.Warn("could not hide block device", "disk", disk, "error", err)
		}
	}
}
