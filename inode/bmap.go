package inode

import (
	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/util"
)

// Allocator hands out and takes back data blocks.
type Allocator interface {
	AllocNum() (common.Bnum, error)
	FreeNum(bn common.Bnum) error
}

func emptyIndirect(bsz uint64) disk.Block {
	blk := make(disk.Block, bsz)
	for i := range blk {
		blk[i] = 0xff
	}
	return blk
}

func (ip *Inode) readIndirect(d disk.Disk) (*buf.Buf, error) {
	blk, err := d.Read(ip.Indirect)
	if err != nil {
		return nil, logex.Trace(err)
	}
	return buf.MkBuf(addr.MkAddr(ip.Indirect, 0), blk), nil
}

// Bmap translates byte offset off of ip into a disk block number. With a nil
// allocator nothing is allocated and an unmapped offset yields NULLBNUM;
// otherwise missing blocks (and the indirect block) are allocated and fresh
// reports that the returned data block has undefined contents. The indirect
// block is written through immediately, but changes to ip itself are left
// for the caller to save.
func (ip *Inode) Bmap(d disk.Disk, off uint64, a Allocator) (common.Bnum, bool, error) {
	bsz := d.BlockSize()
	if off >= MaxFileSize(bsz) {
		return common.NULLBNUM, false, ErrFileTooBig.Trace(off)
	}
	lbn := off / bsz
	if lbn < common.NDIRECT {
		bn := ip.Direct[lbn]
		if bn != common.NULLBNUM || a == nil {
			return bn, false, nil
		}
		bn, err := a.AllocNum()
		if err != nil {
			return common.NULLBNUM, false, logex.Trace(err)
		}
		ip.Direct[lbn] = bn
		util.DPrintf(5, "bmap: inode %d direct[%d] = %d", ip.Inum, lbn, bn)
		return bn, true, nil
	}

	if ip.Indirect == common.NULLBNUM {
		if a == nil {
			return common.NULLBNUM, false, nil
		}
		ibn, err := a.AllocNum()
		if err != nil {
			return common.NULLBNUM, false, logex.Trace(err)
		}
		if err := d.Write(ibn, emptyIndirect(bsz)); err != nil {
			if ferr := a.FreeNum(ibn); ferr != nil {
				logex.Error("bmap: leaked indirect block", ibn, ferr)
			}
			return common.NULLBNUM, false, logex.Trace(err)
		}
		ip.Indirect = ibn
		util.DPrintf(5, "bmap: inode %d indirect = %d", ip.Inum, ibn)
	}

	ib, err := ip.readIndirect(d)
	if err != nil {
		return common.NULLBNUM, false, err
	}
	slot := 2 * (lbn - common.NDIRECT)
	bn := ib.BnumGet(slot)
	if bn != common.NULLBNUM || a == nil {
		return bn, false, nil
	}
	bn, err = a.AllocNum()
	if err != nil {
		return common.NULLBNUM, false, logex.Trace(err)
	}
	ib.BnumPut(slot, bn)
	if err := ib.WriteDirect(d); err != nil {
		if ferr := a.FreeNum(bn); ferr != nil {
			logex.Error("bmap: leaked block", bn, ferr)
		}
		return common.NULLBNUM, false, logex.Trace(err)
	}
	return bn, true, nil
}

// Blocks lists every data block ip references, in file order.
func (ip *Inode) Blocks(d disk.Disk) ([]common.Bnum, error) {
	var bns []common.Bnum
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	if ip.Indirect == common.NULLBNUM {
		return bns, nil
	}
	ib, err := ip.readIndirect(d)
	if err != nil {
		return nil, err
	}
	for off := uint64(0); off < ib.Sz; off += 2 {
		if bn := ib.BnumGet(off); bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	return bns, nil
}

// Detach unhooks every block of ip except direct[0] and resets the length
// to zero. It returns the detached blocks, which the caller frees once the
// emptied inode is saved. On error ip is unchanged.
func (ip *Inode) Detach(d disk.Disk) ([]common.Bnum, error) {
	var freed []common.Bnum
	for _, bn := range ip.Direct[1:] {
		if bn != common.NULLBNUM {
			freed = append(freed, bn)
		}
	}
	if ip.Indirect != common.NULLBNUM {
		ib, err := ip.readIndirect(d)
		if err != nil {
			return nil, err
		}
		for off := uint64(0); off < ib.Sz; off += 2 {
			if bn := ib.BnumGet(off); bn != common.NULLBNUM {
				freed = append(freed, bn)
			}
		}
		freed = append(freed, ip.Indirect)
	}
	for i := uint64(1); i < common.NDIRECT; i++ {
		ip.Direct[i] = common.NULLBNUM
	}
	ip.Indirect = common.NULLBNUM
	ip.Length = 0
	util.DPrintf(5, "inode %d: detached %d blocks, keeping %d", ip.Inum,
		len(freed), int64(ip.Direct[0]))
	return freed, nil
}
