package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/sysexec"
)

const lvmTreeJSON = `{"blockdevices":[{"name":"vg-root","path":"/dev/mapper/vg-root","type":"lvm","size":1073741824,
  "children":[{"name":"sda2","path":"/dev/sda2","type":"part","size":1073741824,
    "children":[{"name":"sda","path":"/dev/sda","type":"disk","size":2147483648}]}]}]}`

const plainTreeJSON = `{"blockdevices":[{"name":"sda1","path":"/dev/sda1","type":"part","size":1073741824,
  "children":[{"name":"sda","path":"/dev/sda","type":"disk","size":2147483648}]}]}`

const raidTreeJSON = `{"blockdevices":[{"name":"md0","path":"/dev/md0","type":"raid1","size":1073741824}]}`

func TestIsLVM(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(lvmTreeJSON))
	p := probe.New(m)

	assert.True(t, IsLVM(context.Background(), p, "/dev/mapper/vg-root"))
}

func TestIsLVM_Plain(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(plainTreeJSON))
	p := probe.New(m)

	assert.False(t, IsLVM(context.Background(), p, "/dev/sda1"))
}

func TestIsLVM_ProbeFailureIsFalse(t *testing.T) {
	m := sysexec.NewMock()
	m.SetError("lsblk", assert.AnError)
	p := probe.New(m)

	assert.False(t, IsLVM(context.Background(), p, "/dev/sdz1"))
}

func TestIsRAID(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(raidTreeJSON))
	p := probe.New(m)

	assert.True(t, IsRAID(context.Background(), p, "/dev/md0"))
}

func TestIsRAID_Plain(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(plainTreeJSON))
	p := probe.New(m)

	assert.False(t, IsRAID(context.Background(), p, "/dev/sda1"))
}

func TestLVMMap(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(lvmTreeJSON))
	p := probe.New(m)

	name, err := LVMMap(context.Background(), p, "/dev/mapper/vg-root")
	require.NoError(t, err)
	assert.Equal(t, "/dev/mapper/vg-root", name)
}

func TestLVMVolumeGroup(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("/sbin/lvs", []byte("  vg0  \n"))

	vg, err := LVMVolumeGroup(context.Background(), m, "/dev/mapper/vg-root")
	require.NoError(t, err)
	assert.Equal(t, "vg0", vg)
}

func TestLVMSizeGB(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("/sbin/lvs", []byte("19.90\n"))

	gb, err := LVMSizeGB(context.Background(), m, "/dev/mapper/vg-root")
	require.NoError(t, err)
	assert.Equal(t, 20, gb)
}

func TestZFSPoolSizeGB(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("zpool", []byte("21474836480\n"))

	gb, err := ZFSPoolSizeGB(context.Background(), m, "tank")
	require.NoError(t, err)
	assert.Equal(t, 20, gb)
}
