package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/pivot"
	"go.ramboot.dev/ramboot/ramdisk"
	"go.ramboot.dev/ramboot/sysexec"
)

const singleDiskTree = `{"blockdevices":[{"name":"sda1","path":"/dev/sda1","type":"part","size":10737418240,
  "children":[{"name":"sda","path":"/dev/sda","type":"disk","size":21474836480}]}]}`

func withTempRamdiskBase(t *testing.T) string {
	t.Helper()
	orig := ramdisk.Base
	base := t.TempDir()
	ramdisk.Base = base
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() {
		ramdisk.Base = orig
		_ = os.Chdir(cwd)
	})
	return base
}

func writeFstabFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fstab")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func commandNames(cmds []sysexec.Command) []string {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	return names
}

// S1 — plain root, simple plan.
func TestRun_S1_PlainRootSimplePlan(t *testing.T) {
	withTempRamdiskBase(t)
	dir := t.TempDir()
	fstabPath := writeFstabFile(t, dir, "UUID=abc\t/\text4\tdefaults\t0\t1\n")

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(singleDiskTree))
	m.SetOutput("readlink", []byte("/dev/sda1\n"))

	cfg := &config.Config{
		SimpleRAMDisk:        true,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	names := commandNames(m.Commands())
	assert.Contains(t, names, "/sbin/modprobe")
	assert.Contains(t, names, "/sbin/mkfs.ext4")

	var modprobeArgs []string
	for _, c := range m.Commands() {
		if c.Name == "/sbin/modprobe" {
			modprobeArgs = c.Args
		}
	}
	assert.Contains(t, modprobeArgs, "max_part=1")

	for _, c := range m.Commands() {
		if c.Name == "cp" {
			assert.Contains(t, c.Args, "/.")
		}
	}
}

// S5 — an ignored mount must not appear in the inventory, must not be
// copied, and must not appear in the rewritten fstab.
func TestRun_S5_IgnoredMountExcluded(t *testing.T) {
	withTempRamdiskBase(t)
	dir := t.TempDir()
	fstabPath := writeFstabFile(t, dir,
		"UUID=abc\t/\text4\tdefaults\t0\t1\n"+
			"/dev/sdb1\t/scratch\text4\tdefaults\t0\t2\n")

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(singleDiskTree))
	m.SetOutput("readlink", []byte("/dev/sda1\n"))

	cfg := &config.Config{
		SimpleRAMDisk:        true,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
		IgnoredMounts:        map[string]bool{"/scratch": true},
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	for _, c := range m.Commands() {
		for _, a := range c.Args {
			assert.NotContains(t, a, "sdb1")
		}
	}
}

// S6 — remote and soft mounts are excluded from physical_mounts() but
// survive, unmodified, in the rewritten fstab.
func TestRun_S6_MixedRemoteAndPhysical(t *testing.T) {
	base := withTempRamdiskBase(t)
	dir := t.TempDir()
	fstabPath := writeFstabFile(t, dir,
		"UUID=abc\t/\text4\tdefaults\t0\t1\n"+
			"server:/export\t/data\tnfs\tdefaults\t0\t0\n"+
			"tmpfs\t/tmp\ttmpfs\tdefaults\t0\t0\n")

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(singleDiskTree))
	m.SetOutput("readlink", []byte("/dev/sda1\n"))

	cfg := &config.Config{
		SimpleRAMDisk:        true,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	rewritten, err := os.ReadFile(base + fstabPath)
	require.NoError(t, err)
	body := string(rewritten)
	assert.Contains(t, body, "nfs")
	assert.Contains(t, body, "tmpfs")
	assert.NotContains(t, body, "sda1")

	cpCount := 0
	for _, c := range m.Commands() {
		if c.Name == "cp" {
			cpCount++
		}
	}
	assert.Equal(t, 1, cpCount, "only the root mount should be copied")
}

// lvmRootTree is shared by the classification call (TypeOf on the root's
// canonical source) and the parent-disk lookup (DisksOf on the resolved
// PV partition): MockExecutor keys purely by command name, so one lsblk
// fixture serves every lsblk invocation regardless of the device passed.
const lvmRootTree = `{"blockdevices":[{"name":"vg0-root","path":"/dev/mapper/vg0-root","type":"lvm","size":10737418240,
  "children":[{"name":"sda1","path":"/dev/sda1","type":"part","size":21474836480,
    "children":[{"name":"sda","path":"/dev/sda","type":"disk","size":21474836480}]}]}]}`

// S2 — LVM root with hide_disks enabled: activation brings the volume
// group up, the mount inventory classifies root as LVM, and the pivot
// stage's LVM-hide branch runs (see pivot.TestHideDevices_LVMRootDeletesSysfsFile
// for that branch's own direct coverage). pivot.SysfsBlockDir is pointed
// at an empty temp directory, so the hide branch finds no delete files
// here; this test only asserts the activation/classification commands
// that lead into it.
func TestRun_S2_LVMRootHideDisks(t *testing.T) {
	withTempRamdiskBase(t)
	dir := t.TempDir()

	origSysfs := pivot.SysfsBlockDir
	pivot.SysfsBlockDir = t.TempDir()
	defer func() { pivot.SysfsBlockDir = origSysfs }()
	fstabPath := writeFstabFile(t, dir, "UUID=abc\t/\text4\tdefaults\t0\t1\n")

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(lvmRootTree))
	// classify.LVMVolumeGroup and classify.LVMSizeGB both shell out to
	// "/sbin/lvs" with different flags; MockExecutor can't tell them
	// apart, so "10" doubles as both a trimmed vg name and a parseable
	// lv_size value.
	m.SetOutput("/sbin/lvs", []byte("10\n"))
	m.SetOutput("/sbin/vgs", []byte("/dev/sda1\n"))

	cfg := &config.Config{
		SimpleRAMDisk:        true,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
		HideDisks:            true,
		Activations:          config.Activations{LVM: true},
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	names := commandNames(m.Commands())
	assert.Contains(t, names, "/usr/sbin/vgchange")
	assert.Contains(t, names, "/usr/sbin/vgscan")
	assert.Contains(t, names, "/sbin/lvs")
	assert.Contains(t, names, "/sbin/vgs")
}

// S3 — a Btrfs root forces the single-partition plan even when
// simple_ramdisk is off and a second physical mount exists.
func TestRun_S3_BtrfsRootForcesSimplePlan(t *testing.T) {
	withTempRamdiskBase(t)
	dir := t.TempDir()
	fstabPath := writeFstabFile(t, dir,
		"UUID=abc\t/\tbtrfs\tdefaults\t0\t1\n"+
			"/dev/sdb1\t/var\text4\tdefaults\t0\t2\n")

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(singleDiskTree))
	m.SetOutput("readlink", []byte("/dev/sda1\n"))

	cfg := &config.Config{
		SimpleRAMDisk:        false,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	var sgdiskArgs []string
	mkfsCount := 0
	for _, c := range m.Commands() {
		if c.Name == "/sbin/sgdisk" {
			sgdiskArgs = c.Args
		}
		if strings.HasPrefix(c.Name, "/sbin/mkfs.") {
			mkfsCount++
		}
	}

	newCount := 0
	for _, a := range sgdiskArgs {
		if a == "--new" {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount, "btrfs root should force a single ram-disk partition")
	assert.Equal(t, 1, mkfsCount)
	names := commandNames(m.Commands())
	assert.Contains(t, names, "/sbin/mkfs.btrfs")
}

// S4 — a ZFS root forces the single-partition plan (with the configured
// replacement fstype) and, post-pivot, removes the ZFS caches and masks
// the ZFS systemd targets.
func TestRun_S4_ZFSRootHidesCacheAndMasksTargets(t *testing.T) {
	withTempRamdiskBase(t)
	dir := t.TempDir()
	fstabPath := writeFstabFile(t, dir, "tank/root\t/\tzfs\tdefaults\t0\t0\n")

	unitDir := t.TempDir()
	cacheDir := t.TempDir()
	listDir := t.TempDir()
	origUnitDir, origCache, origListDir := pivot.SystemdUnitDir, pivot.ZpoolCacheFile, pivot.ZFSListCacheDir
	pivot.SystemdUnitDir = unitDir
	pivot.ZpoolCacheFile = cacheDir + "/zpool.cache"
	pivot.ZFSListCacheDir = listDir
	defer func() {
		pivot.SystemdUnitDir, pivot.ZpoolCacheFile, pivot.ZFSListCacheDir = origUnitDir, origCache, origListDir
	}()
	require.NoError(t, os.WriteFile(cacheDir+"/zpool.cache", []byte("x"), 0o644))

	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(singleDiskTree))

	cfg := &config.Config{
		SimpleRAMDisk:        false,
		ZFSReplacementFSType: "ext4",
		FstabFile:            fstabPath,
	}

	require.NoError(t, Run(context.Background(), cfg, m))

	names := commandNames(m.Commands())
	assert.Contains(t, names, "/sbin/mkfs.ext4")

	_, err := os.Stat(cacheDir + "/zpool.cache")
	assert.True(t, os.IsNotExist(err))
}
