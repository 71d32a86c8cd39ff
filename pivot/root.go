package pivot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.ramboot.dev/ramboot/sysexec"
)

// oldRootDir is the directory pivot_root moves the original root
// filesystem under, relative to the new root.
const oldRootDir = "oldroot"

// Root pivots the running system's root filesystem onto base: it chdirs
// into base, creates the oldroot mountpoint, calls pivot_root(2) via
// the new root's own pivot_root binary (base/usr/sbin/pivot_root), then
// lazily and recursively unmounts the
// original root now sitting at oldroot and removes the now-empty
// directory. The rmdir is best-effort: a lazy unmount may not have
// finished detaching every submount by the time it runs, and trying
// again later buys nothing the running system still needs.
func Root(ctx context.Context, exec sysexec.Executor, base string) error {
	if err := os.Chdir(base); err != nil {
		return fmt.Errorf("pivot: chdir %s: %w", base, err)
	}

	oldRoot := filepath.Join(base, oldRootDir)
	if err := os.Mkdir(oldRoot, 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("pivot: mkdir %s: %w", oldRoot, err)
	}

	if err := exec.Run(ctx, filepath.Join(base, "usr", "sbin", "pivot_root"), ".", oldRootDir); err != nil {
		return fmt.Errorf("pivot: pivot_root: %w", err)
	}

	if err := exec.Run(ctx, "umount", "--lazy", "--recursive", oldRootDir); err != nil {
		return fmt.Errorf("pivot: umount %s: %w", oldRootDir, err)
	}

	_ = os.Remove(oldRootDir)
	return nil
}
