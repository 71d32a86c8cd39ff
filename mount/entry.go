// Package mount builds ramboot's mount inventory: one MountEntry per
// fstab line, augmented with the storage-class and backing-device facts
// that the RAM-disk planner needs, plus the Collection type that turns a
// flat fstab into the depth-ordered, root-deduplicated sequence the rest
// of the boot pipeline walks.
package mount

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"go.ramboot.dev/ramboot/classify"
	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/sysexec"
)

// ErrParseFailure is returned when a line does not split into the six
// whitespace-separated fstab fields.
var ErrParseFailure = errors.New("mount: malformed fstab line")

// ErrNoRootMount is returned when a mount table has no entry whose
// destination is "/".
var ErrNoRootMount = errors.New("mount: no root mount found")

// softFSTypes never correspond to a real backing block device.
var softFSTypes = map[string]bool{
	"swap": true, "tmpfs": true, "ramfs": true, "proc": true,
	"sysfs": true, "devtmpfs": true, "devpts": true, "cgroup": true,
	"cgroup2": true, "overlay": true,
}

// remoteFSTypes are served over the network and have no local backing
// device at all.
var remoteFSTypes = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "fuse.s3fs": true, "fuse.ceph": true,
}

// MountEntry is one row of the mount inventory: the six fields declared
// in fstab, plus the identity and backing-device facts discovered by
// Initialize.
type MountEntry struct {
	// Declared, straight from fstab.
	Source      string
	Destination string
	FSType      string
	Options     []string
	Dump        string
	FsckOrder   string

	// Identity, parsed out of Source.
	UUID     string
	PartUUID string
	Label    string

	// Discovered by Initialize.
	CanonicalSource string
	IsLVM           bool
	IsRAID          bool
	Partitions      []string
	ParentDisks     []string
	SizeGB          int
	ParentSizeGB    int

	initialized bool
}

// New constructs an uninitialized MountEntry from its declared fstab
// fields.
func New(source, destination, fstype string, options []string, dump, fsckOrder string) *MountEntry {
	return &MountEntry{
		Source:      source,
		Destination: destination,
		FSType:      fstype,
		Options:     options,
		Dump:        dump,
		FsckOrder:   fsckOrder,
	}
}

// ParseLine parses one fstab line into a MountEntry. Comment and blank
// lines are the caller's concern (see ParseFstab); ParseLine always
// expects exactly six whitespace-separated fields.
func ParseLine(line string) (*MountEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrParseFailure, line)
	}
	return New(fields[0], fields[1], fields[2], strings.Split(fields[3], ","), fields[4], fields[5]), nil
}

// ToFstabLine renders the entry back into a six-field fstab line,
// preferring CanonicalSource once Initialize has resolved one.
func (m *MountEntry) ToFstabLine() string {
	source := m.Source
	if m.CanonicalSource != "" {
		source = m.CanonicalSource
	}
	return strings.Join([]string{
		source, m.Destination, m.FSType, strings.Join(m.Options, ","), m.Dump, m.FsckOrder,
	}, "\t")
}

// IsRoot reports whether this entry mounts at "/".
func (m *MountEntry) IsRoot() bool {
	return m.Destination == "/"
}

// IsRemote reports whether this entry's filesystem is served over the
// network and therefore has no local backing device.
func (m *MountEntry) IsRemote() bool {
	return remoteFSTypes[m.FSType]
}

// IsPhysical reports whether this entry corresponds to a real local
// block device. The root mount is always physical regardless of its
// fstype, since every other classification depends on being able to
// find root's backing disk.
func (m *MountEntry) IsPhysical() bool {
	if m.IsRoot() {
		return true
	}
	return !softFSTypes[m.FSType] && !m.IsRemote()
}

// Depth returns the number of path components in Destination, used to
// order mounts so that parents are always processed before children.
// Destination values that do not look like absolute paths sort last.
func Depth(destination string) int {
	if destination == "/" {
		return 1
	}
	trimmed := strings.TrimRight(destination, "/")
	count := strings.Count(trimmed, "/")
	if count == 0 {
		return math.MaxInt
	}
	return count + 1
}

// MarkInitialized flags the entry as already resolved without running
// the generic discovery dispatch, for callers (zfsvol.ToMountEntry) that
// populate the discovered fields themselves from a different source of
// truth than probe/classify.
func (m *MountEntry) MarkInitialized() {
	m.initialized = true
}

// Initialize resolves identity, canonical source, storage classification
// and backing-device facts for the entry. It is idempotent: a second
// call is a no-op. ZFS-derived entries arrive pre-initialized (see
// zfsvol.ToMountEntry) and skip this entirely, since their topology is
// pool-level rather than partition-level.
func (m *MountEntry) Initialize(ctx context.Context, p *probe.Prober, exec sysexec.Executor) error {
	if m.initialized {
		return nil
	}
	m.initialized = true

	m.resolveIdentity()
	m.CanonicalSource = m.resolveCanonicalSource()

	if !m.IsPhysical() || m.IsRemote() {
		return nil
	}

	m.IsLVM = classify.IsLVM(ctx, p, m.CanonicalSource)
	m.IsRAID = classify.IsRAID(ctx, p, m.CanonicalSource)

	if m.IsLVM {
		if _, err := os.Stat(m.CanonicalSource); err == nil {
			if mapped, err := classify.LVMMap(ctx, p, m.CanonicalSource); err == nil {
				m.CanonicalSource = mapped
			}
		}
	}

	return m.resolveBackingDevice(ctx, p, exec)
}

// resolveIdentity extracts UUID, PARTUUID and LABEL from Source, which
// fstab allows in either the "by-path" symlink form or the bare
// "KEY=value" form.
func (m *MountEntry) resolveIdentity() {
	upper := strings.ToUpper(m.Source)
	switch {
	case strings.HasPrefix(upper, "UUID="):
		m.UUID = m.Source[len("UUID="):]
	case strings.HasPrefix(upper, "PARTUUID="):
		m.PartUUID = m.Source[len("PARTUUID="):]
	case strings.HasPrefix(upper, "LABEL="):
		m.Label = m.Source[len("LABEL="):]
	case strings.HasPrefix(m.Source, "/dev/disk/by-uuid/"):
		m.UUID = strings.TrimPrefix(m.Source, "/dev/disk/by-uuid/")
	case strings.HasPrefix(m.Source, "/dev/disk/by-partuuid/"):
		m.PartUUID = strings.TrimPrefix(m.Source, "/dev/disk/by-partuuid/")
	case strings.HasPrefix(m.Source, "/dev/disk/by-label/"):
		m.Label = strings.TrimPrefix(m.Source, "/dev/disk/by-label/")
	}
}

// resolveCanonicalSource picks the device path ramboot will actually use
// for every subsequent lookup, in UUID > PARTUUID > LABEL > original
// priority order.
func (m *MountEntry) resolveCanonicalSource() string {
	switch {
	case m.UUID != "":
		return "/dev/disk/by-uuid/" + m.UUID
	case m.PartUUID != "":
		return "/dev/disk/by-partuuid/" + m.PartUUID
	case m.Label != "":
		return "/dev/disk/by-label/" + m.Label
	default:
		return m.Source
	}
}

// resolveBackingDevice dispatches on storage class to fill in
// Partitions, ParentDisks, SizeGB and ParentSizeGB.
func (m *MountEntry) resolveBackingDevice(ctx context.Context, p *probe.Prober, exec sysexec.Executor) error {
	switch {
	case m.IsRAID:
		size, err := p.MountSizeGB(ctx, m.CanonicalSource)
		if err != nil {
			return err
		}
		m.Partitions = []string{m.CanonicalSource}
		m.ParentDisks = []string{m.CanonicalSource}
		m.SizeGB = size
		m.ParentSizeGB = size
		return nil

	case m.IsLVM:
		partition, err := classify.LVMPartition(ctx, exec, m.CanonicalSource)
		if err != nil {
			return err
		}
		size, err := classify.LVMSizeGB(ctx, exec, m.CanonicalSource)
		if err != nil {
			return err
		}
		disks, err := p.DisksOf(ctx, partition)
		if err != nil {
			return err
		}
		m.Partitions = []string{partition}
		m.SizeGB = size
		m.ParentDisks = disks
		m.ParentSizeGB = sumDiskSizes(ctx, p, disks)
		return nil

	default:
		partition := m.resolveGenericPartition(ctx, exec)
		if partition == "" {
			return nil
		}
		disks, err := p.DisksOf(ctx, partition)
		if err != nil {
			return err
		}
		size, err := p.MountSizeGB(ctx, partition)
		if err != nil {
			return err
		}
		m.Partitions = []string{partition}
		m.ParentDisks = disks
		m.SizeGB = size
		m.ParentSizeGB = sumDiskSizes(ctx, p, disks)
		return nil
	}
}

// resolveGenericPartition finds the underlying partition device for a
// plain (non-LVM, non-RAID) mount: when the entry was named by UUID,
// PARTUUID or LABEL, the symlink is resolved to its target; otherwise,
// if Source is already a /dev path, it is used as-is.
func (m *MountEntry) resolveGenericPartition(ctx context.Context, exec sysexec.Executor) string {
	if m.UUID != "" || m.PartUUID != "" || m.Label != "" {
		out, err := exec.Output(ctx, "readlink", "--canonicalize", m.CanonicalSource)
		if err == nil {
			if resolved := strings.TrimSpace(string(out)); resolved != "" {
				return resolved
			}
		}
		return ""
	}
	if strings.HasPrefix(m.Source, "/dev/") {
		return m.Source
	}
	return ""
}

func sumDiskSizes(ctx context.Context, p *probe.Prober, disks []string) int {
	total := 0
	for _, d := range disks {
		size, err := p.DiskSizeGB(ctx, d)
		if err != nil {
			continue
		}
		total += size
	}
	return total
}

// ParentDiskKey returns a stable string identifying the tuple of
// ParentDisks backing this entry, used to deduplicate striped or
// LVM-spanning configurations that share physical disks across multiple
// mounts so their sizes are not double-counted.
func (m *MountEntry) ParentDiskKey() string {
	return strings.Join(m.ParentDisks, ",")
}
