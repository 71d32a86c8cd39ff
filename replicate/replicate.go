// Package replicate copies every physical mount's contents onto the
// freshly formatted RAM disk, and rewrites fstab for the mounts that
// remain off it.
package replicate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"go.ramboot.dev/ramboot/mount"
	"go.ramboot.dev/ramboot/sysexec"
)

// copyArgs are the flags every replication copy runs with: --archive
// preserves ownership, permissions and symlinks, --one-file-system
// keeps a mount's copy from wandering into a filesystem mounted inside
// it (that filesystem gets its own, separate copy step).
var copyArgs = []string{"--archive", "--one-file-system"}

// CopyAll replicates every entry in physical onto the RAM disk staged
// at base. The root mount is copied directly from "/", since it is
// already what the running system is using; every other mount is
// temporarily remounted at a scratch point so it can be read without
// disturbing the running system's own view of it.
func CopyAll(ctx context.Context, exec sysexec.Executor, physical *mount.Collection, base string) error {
	for _, m := range physical.All() {
		if m.IsRoot() {
			if err := copyRoot(ctx, exec, base); err != nil {
				return err
			}
			continue
		}
		if err := copyMount(ctx, exec, m, base); err != nil {
			return err
		}
	}
	return nil
}

func copyRoot(ctx context.Context, exec sysexec.Executor, base string) error {
	// The trailing "/." copies root's contents into base, not a "root"
	// subdirectory of base.
	if err := exec.Run(ctx, "cp", append(append([]string{}, copyArgs...), "/.", base)...); err != nil {
		return fmt.Errorf("replicate: copy root: %w", err)
	}
	return nil
}

func copyMount(ctx context.Context, exec sysexec.Executor, m *mount.MountEntry, base string) error {
	dest := filepath.Join(base, strings.TrimPrefix(m.Destination, "/"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("replicate: mkdir %s: %w", dest, err)
	}

	scratch := filepath.Join(os.TempDir(), "ramboot-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return fmt.Errorf("replicate: mkdir %s: %w", scratch, err)
	}

	if err := mountSource(ctx, exec, m, scratch); err != nil {
		return err
	}

	copyErr := copyFromScratch(ctx, exec, scratch, dest)
	unmountErr := cleanupScratch(ctx, exec, scratch)
	if copyErr != nil {
		return copyErr
	}
	return unmountErr
}

// mountSource remounts a mount's source at scratch so its contents can
// be read and copied. Btrfs needs its declared mount options replayed
// so the right subvolume is exposed; ZFS needs -o zfsutil so the kernel
// treats the dataset's canonical mountpoint property like a normal
// mount instead of refusing because zfs.ko already "owns" it; anything
// else mounts with its defaults.
func mountSource(ctx context.Context, exec sysexec.Executor, m *mount.MountEntry, scratch string) error {
	var err error
	switch m.FSType {
	case "btrfs":
		err = exec.Run(ctx, "mount", "--options", strings.Join(m.Options, ","), m.CanonicalSource, scratch)
	case "zfs":
		err = exec.Run(ctx, "mount", "--types", "zfs", "--options", "zfsutil", m.CanonicalSource, scratch)
	default:
		err = exec.Run(ctx, "mount", m.CanonicalSource, scratch)
	}
	if err != nil {
		return fmt.Errorf("replicate: mount %s: %w", m.CanonicalSource, err)
	}
	return nil
}

func copyFromScratch(ctx context.Context, exec sysexec.Executor, scratch, dest string) error {
	// cp treats "dir" and "dir/." differently when the destination
	// already exists; the trailing "/." copies scratch's contents into
	// dest instead of creating dest/<basename of scratch>.
	source := scratch + string(filepath.Separator) + "."
	if err := exec.Run(ctx, "cp", append(append([]string{}, copyArgs...), source, dest)...); err != nil {
		return fmt.Errorf("replicate: copy %s to %s: %w", scratch, dest, err)
	}
	return nil
}

func cleanupScratch(ctx context.Context, exec sysexec.Executor, scratch string) error {
	if err := exec.Run(ctx, "umount", "--force", scratch); err != nil {
		return fmt.Errorf("replicate: umount %s: %w", scratch, err)
	}
	if err := os.Remove(scratch); err != nil {
		return fmt.Errorf("replicate: rmdir %s: %w", scratch, err)
	}
	return nil
}

// RewriteFstab writes a new fstab body to w (the caller decides where it
// is stored) containing only entries that are not physical: every
// physical mount now lives on
// the RAM disk as part of its single unified filesystem tree and no
// longer needs (or wants) its own fstab line, since remounting it post-
// pivot would simply try to reattach the original disk-backed device.
func RewriteFstab(w io.Writer, all []*mount.MountEntry) error {
	var keep []*mount.MountEntry
	for _, m := range all {
		if !m.IsPhysical() {
			keep = append(keep, m)
		}
	}
	return mount.WriteFstab(w, keep)
}
