// Package config loads ramboot's INI configuration file and exposes it
// as a typed, immutable Config value. The file is read exactly once,
// at process start, from the path named by RAMBOOT_CONFIG or
// /etc/ramboot.conf if that variable is unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mvo5/goconfigparser"
)

const defaultPath = "/etc/ramboot.conf"

// Activations gates which storage-discovery drivers the activation
// stage runs before the mount inventory is built.
type Activations struct {
	RAID  bool
	ZFS   bool
	Btrfs bool
	LVM   bool
}

// Config is ramboot's fully-resolved runtime configuration.
type Config struct {
	// SimpleRAMDisk selects the single-partition RAM-disk plan over the
	// per-mount replica plan.
	SimpleRAMDisk bool

	// HideDisks, when true, hides the backing physical devices from
	// userspace after the pivot. Defaults to false: hiding disks is
	// something an operator opts into, not a default posture.
	HideDisks bool

	// SimpleRAMDiskSizeGB overrides the computed size of the simple RAM
	// disk, in gigabytes. Zero means "compute it".
	SimpleRAMDiskSizeGB int

	// SimpleRAMDiskFSType overrides the filesystem type used to format
	// the simple RAM disk. Empty means "use the root mount's own
	// fstype".
	SimpleRAMDiskFSType string

	// ZFSReplacementFSType is the filesystem used in place of "zfs"
	// when formatting a RAM disk, since the RAM disk itself is never a
	// ZFS pool.
	ZFSReplacementFSType string

	Activations Activations

	// LogLevel and LogFormat configure the process's logger. Ramboot
	// takes no command-line flags at all, so these are the only knobs
	// available for tuning boot-time log verbosity.
	LogLevel  string
	LogFormat string

	// FstabFile is the path to the mount table ramboot reads its
	// inventory from.
	FstabFile string

	// IgnoredMounts lists destination paths the mount inventory skips
	// entirely, regardless of what fstab says about them.
	IgnoredMounts map[string]bool
}

// Load reads the config file named by RAMBOOT_CONFIG, or defaultPath if
// that variable is unset, and parses it into a Config. A missing file is
// not an error: every field simply takes its documented default, the
// same way Python's configparser.read() silently skips files that don't
// exist.
func Load() (*Config, error) {
	path := os.Getenv("RAMBOOT_CONFIG")
	if path == "" {
		path = defaultPath
	}
	return LoadFile(path)
}

// LoadFile reads and parses the config file at path.
func LoadFile(path string) (*Config, error) {
	cp := goconfigparser.New()
	cp.AllowNoSectionHeader = false

	if data, err := os.ReadFile(path); err == nil {
		if err := cp.ReadString(string(data)); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return fromParser(cp), nil
}

func fromParser(cp *goconfigparser.ConfigParser) *Config {
	return &Config{
		SimpleRAMDisk:        getBool(cp, "main", "simple_ramdisk", true),
		HideDisks:            getBool(cp, "main", "hide_disks", false),
		SimpleRAMDiskSizeGB:  getInt(cp, "ramdisk_simple", "size_gb", 0),
		SimpleRAMDiskFSType:  getString(cp, "ramdisk_simple", "fstype", ""),
		ZFSReplacementFSType: getString(cp, "ramdisk_simple", "zfs_replacement_fstype", "ext4"),
		Activations: Activations{
			// REDESIGN: the source material read these as raw strings
			// with fallback=True, so any explicit "false" string was
			// still truthy and silently ran the activation. GetBool
			// parses a real boolean so "false" means false.
			RAID:  getBool(cp, "activations", "raid", true),
			ZFS:   getBool(cp, "activations", "zfs", true),
			Btrfs: getBool(cp, "activations", "btrfs", true),
			LVM:   getBool(cp, "activations", "lvm", true),
		},
		LogLevel:      getString(cp, "main", "log_level", "info"),
		LogFormat:     getString(cp, "main", "log_format", "text"),
		FstabFile:     getString(cp, "mounts", "fstab_file", "/etc/fstab"),
		IgnoredMounts: getStringSet(cp, "mounts", "ignored_mounts", "[]"),
	}
}

func getBool(cp *goconfigparser.ConfigParser, section, option string, fallback bool) bool {
	v, err := cp.GetBool(section, option)
	if err != nil {
		return fallback
	}
	return v
}

func getInt(cp *goconfigparser.ConfigParser, section, option string, fallback int) int {
	v, err := cp.GetInt(section, option)
	if err != nil {
		return fallback
	}
	return v
}

func getString(cp *goconfigparser.ConfigParser, section, option, fallback string) string {
	v, err := cp.Get(section, option)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

func getStringSet(cp *goconfigparser.ConfigParser, section, option, fallback string) map[string]bool {
	raw, err := cp.Get(section, option)
	if err != nil || raw == "" {
		raw = fallback
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		list = nil
	}
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
