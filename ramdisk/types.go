// Package ramdisk plans and builds the brd-backed block device that
// becomes the new root filesystem: sizing and partitioning the disk,
// then formatting and mounting each partition under a staging directory
// the replication stage populates before the pivot.
package ramdisk

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Device is the brd block device ramboot always creates. rd_nr=1 in the
// modprobe invocation guarantees there is ever only one.
const Device = "/dev/ram0"

// Base is the staging directory the RAM disk's partitions are mounted
// under while the system is still running from its original root. It is
// a var, not a const, so tests can point it at a temp directory instead
// of actually creating paths under /mnt.
var Base = "/mnt/ramdisk-ramboot"

// Partition describes one partition to be created on the RAM disk.
type Partition struct {
	// Order is both the partition's sgdisk partition number and its
	// sort key; device nodes are named Device+"p"+Order.
	Order int

	// Destination is the path, relative to the eventual new root, this
	// partition is mounted at.
	Destination string

	// SizeGB is the partition's size.
	SizeGB int

	// FSType is the filesystem mkfs formats the partition with. "zfs"
	// is never a valid value here: Plan substitutes the configured
	// replacement before a Partition is ever constructed, since the RAM
	// disk itself is never a ZFS pool.
	FSType string
}

// DevicePath returns the partition's device node path.
func (p Partition) DevicePath() string {
	return Device + "p" + strconv.Itoa(p.Order)
}

// MountPath returns the partition's staging mount point under Base.
func (p Partition) MountPath() string {
	return filepath.Join(Base, strings.TrimPrefix(p.Destination, "/"))
}

// Plan is the full RAM-disk layout: its partitions plus the total disk
// size (partition sizes plus slack) the executor passes to modprobe.
type Plan struct {
	Partitions  []Partition
	TotalSizeGB int
}
