package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
)

func TestBnumBoundaries(t *testing.T) {
	assert := assert.New(t)
	b := MkBuf(addr.MkAddr(3, 0), make([]byte, 8))

	b.BnumPut(0, common.NULLBNUM)
	assert.Equal([]byte{0xff, 0xff}, b.Data[0:2])
	assert.Equal(common.NULLBNUM, b.BnumGet(0))

	b.BnumPut(2, 32767)
	assert.Equal(common.Bnum(32767), b.BnumGet(2))
	assert.True(b.IsDirty())

	b.Bnum32Put(4, common.NULLBNUM)
	assert.Equal(int32(-1), b.Int32Get(4))
	assert.Equal(common.NULLBNUM, b.Bnum32Get(4))
	b.Bnum32Put(4, 70000)
	assert.Equal(common.Bnum(70000), b.Bnum32Get(4))
	assert.Equal([]byte{0x70, 0x11, 0x01, 0x00}, b.Data[4:8], "little-endian")
}

func TestLoadInstall(t *testing.T) {
	assert := assert.New(t)
	blk := make(disk.Block, 512)
	b := MkBufLoad(addr.MkAddr(1, 64), 32, blk)
	b.Uint16Put(4, 0xBEEF)
	assert.Equal(uint16(0xBEEF), b.Uint16Get(4))
	assert.Equal(byte(0xEF), blk[68], "load aliases the block")

	blk2 := make(disk.Block, 512)
	b.Install(blk2)
	assert.Equal(blk[64:96], blk2[64:96])
	assert.Equal(byte(0), blk2[63])
	assert.Equal(byte(0), blk2[96])
}

func TestWriteDirect(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(4, 512)
	full := make(disk.Block, 512)
	full[0] = 1
	full[200] = 2
	assert.NoError(MkBuf(addr.MkAddr(2, 0), full).WriteDirect(d))

	rec := MkBuf(addr.MkAddr(2, 96), make([]byte, 32))
	rec.Int32Put(0, 42)
	assert.NoError(rec.WriteDirect(d))
	assert.False(rec.IsDirty())

	blk, err := d.Read(2)
	assert.NoError(err)
	assert.Equal(byte(1), blk[0], "read-modify-write keeps neighbours")
	assert.Equal(byte(2), blk[200])
	assert.Equal(byte(42), blk[96])
}
