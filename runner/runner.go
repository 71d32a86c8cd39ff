// Package runner orchestrates ramboot's boot pipeline end to end:
// activation, mount inventory, RAM-disk planning and construction,
// replication, fstab rewriting, system-mount migration and, finally,
// the root pivot and post-pivot cleanup.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.ramboot.dev/ramboot/activation"
	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/logger"
	"go.ramboot.dev/ramboot/mount"
	"go.ramboot.dev/ramboot/pivot"
	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/ramdisk"
	"go.ramboot.dev/ramboot/replicate"
	"go.ramboot.dev/ramboot/sysexec"
	"go.ramboot.dev/ramboot/zfsvol"
)

// Run drives a full ramboot transition. Everything through
// ramdisk.Execute's first call (modprobe brd) can still fail safely:
// the original disk-backed root is untouched and a non-zero exit just
// means the system keeps booting from disk. Every step after that is
// unrecoverable: the RAM disk already exists and the original root's
// mount table is about to be rewritten out from under it, so a failure
// there is reported but the pipeline cannot meaningfully back out.
func Run(ctx context.Context, cfg *config.Config, exec sysexec.Executor) error {
	activation.Run(ctx, cfg, exec)

	p := probe.New(exec)

	entries, err := mount.ReadFstabFile(cfg.FstabFile)
	if err != nil {
		return fmt.Errorf("runner: read fstab: %w", err)
	}

	zfsVolumes, err := zfsvol.Discover(ctx, exec)
	if err != nil {
		return fmt.Errorf("runner: discover zfs volumes: %w", err)
	}
	entries = append(entries, zfsvol.MountEntries(zfsVolumes)...)
	entries = filterIgnored(cfg, entries)

	all, err := mount.NewCollection(ctx, entries, p, exec)
	if err != nil {
		return fmt.Errorf("runner: build mount inventory: %w", err)
	}

	physical, err := all.Physical(ctx, p, exec)
	if err != nil {
		return fmt.Errorf("runner: build physical mount inventory: %w", err)
	}

	plan := ramdisk.Plan(cfg, physical)
	ramdisk.WarnIfTight(ctx, logger.Stage("ramdisk"), plan)

	// Point of no return: the RAM disk is about to be created.
	if err := ramdisk.Execute(ctx, exec, plan); err != nil {
		return fmt.Errorf("runner: build ram disk: %w", err)
	}

	if err := replicate.CopyAll(ctx, exec, physical, ramdisk.Base); err != nil {
		return fmt.Errorf("runner: replicate mounts: %w", err)
	}

	if err := writeFstab(all.All(), cfg.FstabFile); err != nil {
		return fmt.Errorf("runner: rewrite fstab: %w", err)
	}

	if err := pivot.MoveSystemMounts(ctx, exec, ramdisk.Base); err != nil {
		return fmt.Errorf("runner: move system mounts: %w", err)
	}

	if err := pivot.Root(ctx, exec, ramdisk.Base); err != nil {
		return fmt.Errorf("runner: pivot root: %w", err)
	}

	pivot.HideDevices(ctx, logger.Stage("pivot"), cfg, all.All())
	return nil
}

func filterIgnored(cfg *config.Config, entries []*mount.MountEntry) []*mount.MountEntry {
	if len(cfg.IgnoredMounts) == 0 {
		return entries
	}
	var out []*mount.MountEntry
	for _, e := range entries {
		if cfg.IgnoredMounts[e.Destination] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// writeFstab rewrites the new root's own /etc/fstab (staged under the
// RAM disk) with just the non-physical entries, and is written relative
// to ramdisk.Base + the fstab's own configured path so a non-default
// fstab location is respected post-pivot too.
func writeFstab(all []*mount.MountEntry, fstabPath string) error {
	var buf bytes.Buffer
	if err := replicate.RewriteFstab(&buf, all); err != nil {
		return err
	}
	dest := ramdisk.Base + fstabPath
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0o644)
}
