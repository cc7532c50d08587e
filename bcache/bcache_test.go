package bcache

import (
	"testing"

	"github.com/chzyer/logex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
)

func block(v byte) []byte {
	b := make([]byte, 512)
	for i := range b {
		b[i] = v
	}
	return b
}

func onDisk(t *testing.T, d disk.Disk, bn common.Bnum) byte {
	b, err := d.Read(bn)
	require.NoError(t, err)
	return b[0]
}

func TestCopySemantics(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(20, 512)
	bc, err := MkBcache(d, 4)
	require.NoError(t, err)

	in := block(1)
	require.NoError(t, bc.Write(3, in))
	in[0] = 9
	out := make([]byte, 512)
	require.NoError(t, bc.Read(3, out))
	assert.Equal(byte(1), out[0], "write copies in")
	out[0] = 7
	out2 := make([]byte, 512)
	require.NoError(t, bc.Read(3, out2))
	assert.Equal(byte(1), out2[0], "read copies out")
	assert.Equal(byte(0), onDisk(t, d, 3), "write-back is deferred")
}

func TestReadMissNotInstalled(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(20, 512)
	require.NoError(t, d.Write(5, block(5)))
	bc, err := MkBcache(d, 2)
	require.NoError(t, err)
	out := make([]byte, 512)
	require.NoError(t, bc.Read(5, out))
	assert.Equal(byte(5), out[0])
	assert.Equal([]common.Bnum{common.NULLBNUM, common.NULLBNUM}, bc.Cached())
}

func TestSecondChanceEviction(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(20, 512)
	bc, err := MkBcache(d, 2)
	require.NoError(t, err)

	require.NoError(t, bc.Write(10, block(10)))
	require.NoError(t, bc.Write(11, block(11)))
	require.NoError(t, bc.Read(10, make([]byte, 512)))

	require.NoError(t, bc.Write(12, block(12)))
	assert.Equal([]common.Bnum{10, 12}, bc.Cached(), "referenced block survives")
	assert.Equal(byte(11), onDisk(t, d, 11), "dirty victim written back")
	assert.Equal(byte(0), onDisk(t, d, 10))

	require.NoError(t, bc.Write(13, block(13)))
	assert.Equal([]common.Bnum{13, 12}, bc.Cached())
	assert.Equal(byte(10), onDisk(t, d, 10))

	out := make([]byte, 512)
	require.NoError(t, bc.Read(11, out))
	assert.Equal(byte(11), out[0], "evicted block reads from disk")
}

func TestSyncFlush(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(20, 512)
	bc, err := MkBcache(d, 4)
	require.NoError(t, err)
	require.NoError(t, bc.Write(1, block(1)))
	require.NoError(t, bc.Write(2, block(2)))

	require.NoError(t, bc.Sync())
	assert.Equal(byte(1), onDisk(t, d, 1))
	assert.Equal(byte(2), onDisk(t, d, 2))
	assert.Contains(bc.Cached(), common.Bnum(1), "sync keeps frames")

	require.NoError(t, bc.Write(1, block(7)))
	require.NoError(t, bc.Flush())
	assert.Equal(byte(7), onDisk(t, d, 1))
	for _, bn := range bc.Cached() {
		assert.Equal(common.NULLBNUM, bn, "flush unmaps every frame")
	}
}

func TestInvalidate(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(20, 512)
	bc, err := MkBcache(d, 2)
	require.NoError(t, err)
	require.NoError(t, bc.Write(4, block(4)))
	bc.Invalidate(4)
	require.NoError(t, bc.Flush())
	assert.Equal(byte(0), onDisk(t, d, 4), "invalidated data is discarded")
	bc.Invalidate(5)
}

func TestBounds(t *testing.T) {
	assert := assert.New(t)
	bc, err := MkBcache(disk.NewMemDisk(20, 512), 2)
	require.NoError(t, err)
	assert.True(logex.Equal(bc.Write(20, block(0)), ErrOutOfRange))
	assert.True(logex.Equal(bc.Read(20, make([]byte, 512)), ErrOutOfRange))
	assert.True(logex.Equal(bc.Write(1, make([]byte, 10)), disk.ErrBlockSize))
}
