package mount

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ramboot.dev/ramboot/probe"
	"go.ramboot.dev/ramboot/sysexec"
)

func lsblkCallCount(m *sysexec.MockExecutor) int {
	n := 0
	for _, c := range m.Commands() {
		if c.Name == "lsblk" {
			n++
		}
	}
	return n
}

func TestParseLine(t *testing.T) {
	e, err := ParseLine("UUID=1234-5678\t/\text4\tdefaults,noatime\t0\t1")
	require.NoError(t, err)
	assert.Equal(t, "UUID=1234-5678", e.Source)
	assert.Equal(t, "/", e.Destination)
	assert.Equal(t, "ext4", e.FSType)
	assert.Equal(t, []string{"defaults", "noatime"}, e.Options)
	assert.Equal(t, "0", e.Dump)
	assert.Equal(t, "1", e.FsckOrder)
}

func TestParseLine_MalformedLine(t *testing.T) {
	_, err := ParseLine("/dev/sda1 /")
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestParseFstab_SkipsCommentsAndBlankLines(t *testing.T) {
	body := "# a comment\n\nUUID=aaaa\t/\text4\tdefaults\t0\t1\nUUID=bbbb\t/var\text4\tdefaults\t0\t2\n"
	entries, err := ParseFstab(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/", entries[0].Destination)
	assert.Equal(t, "/var", entries[1].Destination)
}

func TestDepth(t *testing.T) {
	cases := []struct {
		dest string
		want int
	}{
		{"/", 1},
		{"/var", 2},
		{"/var/log", 3},
		{"/var/log/", 3},
		{"swap", math.MaxInt},
	}
	for _, c := range cases {
		got := Depth(c.dest)
		if c.dest == "swap" {
			assert.Greater(t, got, 1000)
			continue
		}
		assert.Equal(t, c.want, got, c.dest)
	}
}

func TestIsPhysical(t *testing.T) {
	root := New("UUID=aaa", "/", "ext4", []string{"defaults"}, "0", "1")
	assert.True(t, root.IsPhysical())

	sw := New("UUID=bbb", "none", "swap", []string{"sw"}, "0", "0")
	assert.False(t, sw.IsPhysical())

	nfs := New("server:/export", "/mnt/nfs", "nfs", []string{"defaults"}, "0", "0")
	assert.True(t, nfs.IsRemote())
	assert.False(t, nfs.IsPhysical())

	s3fs := New("s3fs#bucket", "/mnt/bucket", "fuse.s3fs", []string{"defaults"}, "0", "0")
	assert.True(t, s3fs.IsRemote())
	assert.False(t, s3fs.IsPhysical())

	ceph := New("mon1,mon2:/", "/mnt/ceph", "fuse.ceph", []string{"defaults"}, "0", "0")
	assert.True(t, ceph.IsRemote())
	assert.False(t, ceph.IsPhysical())

	cifs := New("//server/share", "/mnt/cifs", "cifs", []string{"defaults"}, "0", "0")
	assert.True(t, cifs.IsRemote())
	assert.False(t, cifs.IsPhysical())
}

func TestInitialize_ResolvesIdentityAndCanonicalSource(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(`{"blockdevices":[{"name":"sda1","path":"/dev/sda1","type":"part","size":1073741824,
	  "children":[{"name":"sda","path":"/dev/sda","type":"disk","size":2147483648}]}]}`))
	m.SetOutput("readlink", []byte("/dev/sda1\n"))
	p := probe.New(m)

	e := New("UUID=1111-2222", "/", "ext4", []string{"defaults"}, "0", "1")
	require.NoError(t, e.Initialize(context.Background(), p, m))

	assert.Equal(t, "1111-2222", e.UUID)
	assert.Equal(t, "/dev/disk/by-uuid/1111-2222", e.CanonicalSource)
	assert.Equal(t, []string{"/dev/sda1"}, e.Partitions)
	assert.Equal(t, []string{"/dev/sda"}, e.ParentDisks)
	assert.Equal(t, 1, e.SizeGB)
	assert.Equal(t, 2, e.ParentSizeGB)
}

func TestInitialize_SkipsSoftMounts(t *testing.T) {
	m := sysexec.NewMock()
	p := probe.New(m)

	e := New("tmpfs", "/tmp", "tmpfs", []string{"defaults"}, "0", "0")
	require.NoError(t, e.Initialize(context.Background(), p, m))
	assert.Nil(t, e.Partitions)
	assert.False(t, e.IsLVM)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	m := sysexec.NewMock()
	m.SetOutput("lsblk", []byte(`{"blockdevices":[{"name":"sda1","path":"/dev/sda1","type":"part","size":1073741824}]}`))
	p := probe.New(m)

	e := New("/dev/sda1", "/data", "ext4", []string{"defaults"}, "0", "2")
	require.NoError(t, e.Initialize(context.Background(), p, m))
	calls := lsblkCallCount(m)
	require.NoError(t, e.Initialize(context.Background(), p, m))
	assert.Equal(t, calls, lsblkCallCount(m))
}
