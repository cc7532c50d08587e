package alloc

import (
	"testing"

	"github.com/chzyer/logex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/super"
)

func mkAlloc(t *testing.T, nblock uint64) (disk.Disk, *Alloc) {
	d := disk.NewMemDisk(nblock, 512)
	sb, err := super.Format(d, 16)
	require.NoError(t, err)
	return d, MkAlloc(d, sb)
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	_, a := mkAlloc(t, 10)

	n, err := a.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(8), n, "all but super and inode block")

	b1, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(common.Bnum(2), b1)
	b2, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(common.Bnum(3), b2)

	n, _ = a.NumFree()
	assert.Equal(uint64(6), n)

	assert.NoError(a.FreeNum(b1))
	assert.NoError(a.FreeNum(b2))
	n, _ = a.NumFree()
	assert.Equal(uint64(8), n, "frees return blocks to the list")

	// freed blocks go to the tail
	for _, want := range []common.Bnum{4, 5, 6, 7, 8, 9, 2, 3} {
		bn, err := a.AllocNum()
		require.NoError(t, err)
		assert.Equal(want, bn)
	}
	_, err = a.AllocNum()
	assert.True(logex.Equal(err, ErrNoSpace))

	assert.NoError(a.FreeNum(7))
	bn, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(common.Bnum(7), bn, "freeing onto an empty list sets the head")
}

func TestFreeChecks(t *testing.T) {
	assert := assert.New(t)
	_, a := mkAlloc(t, 10)
	assert.True(logex.Equal(a.FreeNum(0), ErrOutOfRange))
	assert.True(logex.Equal(a.FreeNum(1), ErrOutOfRange))
	assert.True(logex.Equal(a.FreeNum(10), ErrOutOfRange))
	assert.True(logex.Equal(a.FreeNum(5), ErrDoubleFree))
}

func TestSyncPersistsHead(t *testing.T) {
	assert := assert.New(t)
	d, a := mkAlloc(t, 10)
	_, err := a.AllocNum()
	require.NoError(t, err)
	require.NoError(t, a.Sync())

	sb, err := super.Load(d)
	require.NoError(t, err)
	assert.Equal(common.Bnum(3), sb.FreeHead)
	assert.True(sb.Valid(10, 512))
}

func TestCorruptHead(t *testing.T) {
	assert := assert.New(t)
	d, a := mkAlloc(t, 10)
	blk := make(disk.Block, 512)
	blk[0] = 1 // points into the inode table
	require.NoError(t, d.Write(2, blk))
	_, err := a.AllocNum()
	assert.True(logex.Equal(err, ErrNoSpace))
	_, err = a.NumFree()
	assert.True(logex.Equal(err, ErrCorrupt))
}
