package alloc

import (
	"sync"

	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/super"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrNoSpace    = logex.Define("no free blocks")
	ErrOutOfRange = logex.Define("block is not a data block")
	ErrDoubleFree = logex.Define("block is already free")
	ErrCorrupt    = logex.Define("free list is corrupt")
)

// Alloc manages the free list rooted in the superblock. Each free block
// stores the number of the next free block in its first 4 bytes; -1 ends the
// list. The superblock copy is written back by Sync.
type Alloc struct {
	lock *sync.Mutex // protects sb.FreeHead and the list nodes
	d    disk.Disk
	sb   *super.Super
}

func MkAlloc(d disk.Disk, sb *super.Super) *Alloc {
	a := &Alloc{
		lock: new(sync.Mutex),
		d:    d,
		sb:   sb,
	}
	return a
}

func (a *Alloc) isData(bn common.Bnum) bool {
	return bn >= a.sb.DataStart() && bn < a.sb.NBlock
}

func (a *Alloc) readNext(bn common.Bnum) (*buf.Buf, common.Bnum, error) {
	blk, err := a.d.Read(bn)
	if err != nil {
		return nil, common.NULLBNUM, logex.Trace(err)
	}
	b := buf.MkBuf(addr.MkAddr(bn, 0), blk)
	next := b.Bnum32Get(0)
	if next != common.NULLBNUM && !a.isData(next) {
		return nil, common.NULLBNUM, ErrCorrupt.Trace(bn, next)
	}
	return b, next, nil
}

// AllocNum pops the head of the free list. The block's contents are
// undefined.
func (a *Alloc) AllocNum() (common.Bnum, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	head := a.sb.FreeHead
	if head == common.NULLBNUM || !a.isData(head) {
		return common.NULLBNUM, ErrNoSpace.Trace()
	}
	_, next, err := a.readNext(head)
	if err != nil {
		return common.NULLBNUM, ErrNoSpace.Trace(err)
	}
	a.sb.FreeHead = next
	util.DPrintf(10, "alloc: %d (next %d)", head, int64(next))
	return head, nil
}

// FreeNum appends bn to the tail of the free list.
func (a *Alloc) FreeNum(bn common.Bnum) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.isData(bn) {
		return ErrOutOfRange.Trace(bn)
	}

	var tail *buf.Buf
	if a.sb.FreeHead != common.NULLBNUM {
		cur := a.sb.FreeHead
		for n := uint64(0); ; n++ {
			if cur == bn {
				return ErrDoubleFree.Trace(bn)
			}
			if n >= a.sb.NBlock {
				return ErrCorrupt.Trace("cycle")
			}
			b, next, err := a.readNext(cur)
			if err != nil {
				return err
			}
			if next == common.NULLBNUM {
				tail = b
				break
			}
			cur = next
		}
	}

	nb := buf.MkBuf(addr.MkAddr(bn, 0), make(disk.Block, a.d.BlockSize()))
	nb.Bnum32Put(0, common.NULLBNUM)
	if err := nb.WriteDirect(a.d); err != nil {
		return err
	}
	if tail == nil {
		a.sb.FreeHead = bn
	} else {
		tail.Bnum32Put(0, bn)
		if err := tail.WriteDirect(a.d); err != nil {
			return err
		}
	}
	util.DPrintf(10, "alloc: free %d", bn)
	return nil
}

// NumFree walks the free list.
func (a *Alloc) NumFree() (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	var n uint64
	for cur := a.sb.FreeHead; cur != common.NULLBNUM; n++ {
		if n >= a.sb.NBlock {
			return 0, ErrCorrupt.Trace("cycle")
		}
		_, next, err := a.readNext(cur)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return n, nil
}

// Sync writes the superblock, including the current free-list head.
func (a *Alloc) Sync() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.sb.Write(a.d)
}
