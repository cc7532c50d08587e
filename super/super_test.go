package super

import (
	"testing"

	"github.com/chzyer/logex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/inode"
)

func TestFormat(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(1000, 512)
	sb, err := Format(d, 64)
	require.NoError(t, err)
	assert.Equal(uint64(4), sb.InodeBlocks())
	assert.Equal(common.Bnum(5), sb.FreeHead)

	sb2, err := Load(d)
	require.NoError(t, err)
	assert.Equal(sb, sb2)
	assert.True(sb2.Valid(1000, 512))

	blk, err := d.Read(0)
	require.NoError(t, err)
	assert.Equal([]byte{0xe8, 0x03, 0, 0, 64, 0, 0, 0, 5, 0, 0, 0}, blk[0:12])

	// free list chained in block order, tail is -1
	for _, bn := range []common.Bnum{5, 500, 998} {
		blk, err := d.Read(bn)
		require.NoError(t, err)
		assert.Equal(bn+1, buf.MkBuf(addr.MkAddr(bn, 0), blk).Bnum32Get(0))
	}
	blk, err = d.Read(999)
	require.NoError(t, err)
	assert.Equal([]byte{0xff, 0xff, 0xff, 0xff}, blk[0:4])

	s := inode.MkStore(d, 64)
	ip, err := s.Load(63)
	require.NoError(t, err)
	assert.Equal(inode.MkInode(63), ip)
}

func TestValid(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(100, 512)
	sb, err := Load(d)
	require.NoError(t, err)
	assert.False(sb.Valid(100, 512), "zeroed device")

	sb = &Super{NBlock: 100, NInode: 64, FreeHead: 5}
	assert.True(sb.Valid(100, 512))
	assert.False(sb.Valid(101, 512), "size mismatch")

	sb.FreeHead = common.NULLBNUM
	assert.True(sb.Valid(100, 512), "exhausted free list")
	sb2 := Decode(sb.Encode(512))
	assert.Equal(sb, sb2)

	sb.FreeHead = 3
	assert.False(sb.Valid(100, 512), "head inside the inode table")
	sb.FreeHead = 100
	assert.False(sb.Valid(100, 512))
}

func TestGeometry(t *testing.T) {
	assert := assert.New(t)
	assert.NoError(CheckGeometry(1000, 512, 64))
	assert.True(logex.Equal(CheckGeometry(common.MAXBLOCKS+1, 512, 64), ErrGeometry))
	assert.True(logex.Equal(CheckGeometry(1000, 256, 64), ErrGeometry))
	assert.True(logex.Equal(CheckGeometry(1000, 512, 0), ErrGeometry))
	assert.True(logex.Equal(CheckGeometry(5, 512, 64), ErrGeometry))

	_, err := Format(disk.NewMemDisk(5, 512), 64)
	assert.True(logex.Equal(err, ErrGeometry))
}
