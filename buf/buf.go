// buf manages sub-block disk objects, to be packed into disk blocks
package buf

import (
	"encoding/binary"

	"github.com/chzyer/logex"
	"github.com/tchajed/goose/machine"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/util"
)

// A Buf is a view of a disk object (an inode record, a pointer block, or a
// whole disk block)
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // number of bytes
	Data  []byte
	dirty bool // has this object been written to?
}

func MkBuf(addr addr.Addr, data []byte) *Buf {
	b := &Buf{
		Addr:  addr,
		Sz:    uint64(len(data)),
		Data:  data,
		dirty: false,
	}
	return b
}

// Load the bytes of a disk block into a new buf, as specified by addr. The
// buf aliases blk.
func MkBufLoad(addr addr.Addr, sz uint64, blk disk.Block) *Buf {
	data := blk[addr.Off : addr.Off+sz]
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  data,
		dirty: false,
	}
	return b
}

// Install the bytes from buf into blk
func (buf *Buf) Install(blk disk.Block) {
	util.DPrintf(20, "%v: install\n", buf.Addr)
	copy(blk[buf.Addr.Off:buf.Addr.Off+buf.Sz], buf.Data)
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

func (buf *Buf) ClearDirty() {
	buf.dirty = false
}

// WriteDirect writes buf to its block, bypassing any cache. Sub-block objects
// are read-modify-written.
func (buf *Buf) WriteDirect(d disk.Disk) error {
	if buf.Sz == d.BlockSize() && buf.Addr.Off == 0 {
		if err := d.Write(buf.Addr.Blkno, buf.Data); err != nil {
			return logex.Trace(err)
		}
	} else {
		blk, err := d.Read(buf.Addr.Blkno)
		if err != nil {
			return logex.Trace(err)
		}
		buf.Install(blk)
		if err := d.Write(buf.Addr.Blkno, blk); err != nil {
			return logex.Trace(err)
		}
	}
	buf.ClearDirty()
	return nil
}

// BnumGet decodes the 16-bit signed block pointer at off; -1 is NULLBNUM.
func (buf *Buf) BnumGet(off uint64) common.Bnum {
	v := int16(binary.LittleEndian.Uint16(buf.Data[off : off+2]))
	if v < 0 {
		return common.NULLBNUM
	}
	return common.Bnum(v)
}

func (buf *Buf) BnumPut(off uint64, v common.Bnum) {
	var x int16 = -1
	if v != common.NULLBNUM {
		x = int16(v)
	}
	binary.LittleEndian.PutUint16(buf.Data[off:off+2], uint16(x))
	buf.SetDirty()
}

func (buf *Buf) Uint16Get(off uint64) uint16 {
	return binary.LittleEndian.Uint16(buf.Data[off : off+2])
}

func (buf *Buf) Uint16Put(off uint64, v uint16) {
	binary.LittleEndian.PutUint16(buf.Data[off:off+2], v)
	buf.SetDirty()
}

func (buf *Buf) Int32Get(off uint64) int32 {
	return int32(machine.UInt32Get(buf.Data[off : off+4]))
}

func (buf *Buf) Int32Put(off uint64, v int32) {
	machine.UInt32Put(buf.Data[off:off+4], uint32(v))
	buf.SetDirty()
}

// Bnum32Get decodes a 32-bit block link (as used by the free list).
func (buf *Buf) Bnum32Get(off uint64) common.Bnum {
	v := buf.Int32Get(off)
	if v < 0 {
		return common.NULLBNUM
	}
	return common.Bnum(v)
}

func (buf *Buf) Bnum32Put(off uint64, v common.Bnum) {
	if v == common.NULLBNUM {
		buf.Int32Put(off, -1)
		return
	}
	buf.Int32Put(off, int32(v))
}
