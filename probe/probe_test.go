package probe

import (
	"context"
	"errors"
	"testing"

	"go.ramboot.dev/ramboot/sysexec"
)

const lvmTreeJSON = `{
  "blockdevices": [
    {"name": "vg-root", "path": "/dev/mapper/vg-root", "type": "lvm", "size": 107374182400, "fstype": "xfs", "mountpoint": "/",
     "children": [
       {"name": "sda2", "path": "/dev/sda2", "type": "part", "size": 107374182400, "fstype": "LVM2_member",
        "children": [
          {"name": "sda", "path": "/dev/sda", "type": "disk", "size": 214748364800}
        ]}
     ]}
  ]
}`

func newMockProber(t *testing.T) (*Prober, *sysexec.MockExecutor) {
	t.Helper()
	m := sysexec.NewMock()
	return New(m), m
}

func TestGetTree(t *testing.T) {
	p, m := newMockProber(t)
	m.SetOutput("lsblk", []byte(lvmTreeJSON))

	tree, err := p.GetTree(context.Background(), "/dev/mapper/vg-root")
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if tree.Type != "lvm" {
		t.Errorf("root type = %q, want lvm", tree.Type)
	}
	if len(tree.Children) != 1 || tree.Children[0].Type != "part" {
		t.Fatalf("unexpected children: %+v", tree.Children)
	}
}

func TestGetTree_Unavailable(t *testing.T) {
	p, m := newMockProber(t)
	m.SetError("lsblk", context.DeadlineExceeded)

	_, err := p.GetTree(context.Background(), "/dev/nope")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFirstFieldMatching(t *testing.T) {
	p, m := newMockProber(t)
	m.SetOutput("lsblk", []byte(lvmTreeJSON))

	name, ok, err := p.FirstFieldMatching(context.Background(), "/dev/mapper/vg-root", "type", "disk", "path", false)
	if err != nil {
		t.Fatalf("FirstFieldMatching() error = %v", err)
	}
	if !ok || name != "/dev/sda" {
		t.Errorf("FirstFieldMatching() = (%q, %v), want (/dev/sda, true)", name, ok)
	}
}

func TestDisksOf(t *testing.T) {
	p, m := newMockProber(t)
	m.SetOutput("lsblk", []byte(lvmTreeJSON))

	disks, err := p.DisksOf(context.Background(), "/dev/mapper/vg-root")
	if err != nil {
		t.Fatalf("DisksOf() error = %v", err)
	}
	if len(disks) != 1 || disks[0] != "/dev/sda" {
		t.Errorf("DisksOf() = %v, want [/dev/sda]", disks)
	}
}

func TestDiskSizeGB(t *testing.T) {
	p, m := newMockProber(t)
	m.SetOutput("lsblk", []byte(lvmTreeJSON))

	gb, err := p.DiskSizeGB(context.Background(), "/dev/mapper/vg-root")
	if err != nil {
		t.Fatalf("DiskSizeGB() error = %v", err)
	}
	if gb != 100 {
		t.Errorf("DiskSizeGB() = %d, want 100", gb)
	}
}
