// Package pivot carries out the final, irreversible step of the boot
// pipeline: moving the kernel-managed system mounts onto the RAM disk,
// pivoting the root filesystem onto it, and afterward tidying up
// whatever trace of the original disk-backed root the configuration
// asks to hide. MoveSystemMounts and Root return their failures to the
// caller; HideDevices runs after the pivot, when the system is already
// live on the RAM disk, so it logs its failures and returns nothing.
package pivot

import (
	"context"
	"path/filepath"

	"go.ramboot.dev/ramboot/sysexec"
)

// systemMounts are the kernel-managed mounts every running userspace
// expects to already be in place; they are moved rather than
// re-mounted, since /dev and /proc already hold the live device nodes
// and process list the new root needs to see.
var systemMounts = []string{"dev", "proc", "sys", "run"}

// MoveSystemMounts relocates /dev, /proc, /sys and /run onto the RAM
// disk staged at base, using `mount --move` so the kernel repoints the
// existing mount instead of creating a second one.
func MoveSystemMounts(ctx context.Context, exec sysexec.Executor, base string) error {
	for _, name := range systemMounts {
		source := "/" + name
		target := filepath.Join(base, name)
		if err := exec.Run(ctx, "mount", "--move", source, target); err != nil {
			return err
		}
	}
	return nil
}
