package ramdisk

import (
	"context"
	"fmt"
	"os"

	"go.ramboot.dev/ramboot/sysexec"
)

// Execute creates the brd block device sized per plan, partitions it,
// formats every partition, and mounts each one under Base. Every step
// here runs after activation has already modified the live system, so
// a failure at any point is unrecoverable: there is no path back to the
// original disk-backed root once modprobe has loaded brd and sgdisk has
// started writing a partition table.
func Execute(ctx context.Context, exec sysexec.Executor, plan *Plan) error {
	if err := modprobeRAMDisk(ctx, exec, plan); err != nil {
		return err
	}
	if err := partitionRAMDisk(ctx, exec, plan); err != nil {
		return err
	}
	if err := formatPartitions(ctx, exec, plan); err != nil {
		return err
	}
	return mountPartitions(ctx, exec, plan)
}

func modprobeRAMDisk(ctx context.Context, exec sysexec.Executor, plan *Plan) error {
	sizeKB := 1024 * 1024 * plan.TotalSizeGB
	err := exec.Run(ctx, "/sbin/modprobe", "brd",
		"rd_nr=1",
		fmt.Sprintf("max_part=%d", len(plan.Partitions)),
		fmt.Sprintf("rd_size=%d", sizeKB),
	)
	if err != nil {
		return fmt.Errorf("ramdisk: modprobe brd: %w", err)
	}
	return nil
}

func partitionRAMDisk(ctx context.Context, exec sysexec.Executor, plan *Plan) error {
	args := []string{"--zap-all"}
	for _, p := range plan.Partitions {
		args = append(args, "--new", fmt.Sprintf("%d::+%dG", p.Order, p.SizeGB))
	}
	args = append(args, Device)

	if err := exec.Run(ctx, "/sbin/sgdisk", args...); err != nil {
		return fmt.Errorf("ramdisk: sgdisk: %w", err)
	}
	return nil
}

func formatPartitions(ctx context.Context, exec sysexec.Executor, plan *Plan) error {
	for _, p := range plan.Partitions {
		if err := exec.Run(ctx, "/sbin/mkfs."+p.FSType, p.DevicePath()); err != nil {
			return fmt.Errorf("ramdisk: mkfs.%s %s: %w", p.FSType, p.DevicePath(), err)
		}
	}
	return nil
}

func mountPartitions(ctx context.Context, exec sysexec.Executor, plan *Plan) error {
	for _, p := range plan.Partitions {
		if err := os.MkdirAll(p.MountPath(), 0o755); err != nil {
			return fmt.Errorf("ramdisk: mkdir %s: %w", p.MountPath(), err)
		}
		if err := exec.Run(ctx, "mount", p.DevicePath(), p.MountPath()); err != nil {
			return fmt.Errorf("ramdisk: mount %s %s: %w", p.DevicePath(), p.MountPath(), err)
		}
	}
	return nil
}
