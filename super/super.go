package super

import (
	"fmt"

	"github.com/chzyer/logex"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrGeometry = logex.Define("unsupported file system geometry")
)

// Super is the in-memory copy of block 0.
type Super struct {
	NBlock   uint64
	NInode   uint64
	FreeHead common.Bnum // NULLBNUM when no block is free
}

func (sb *Super) InodeBlocks() uint64 {
	return util.RoundUp(sb.NInode, common.INODEBLK)
}

// DataStart is the first block after the inode table.
func (sb *Super) DataStart() common.Bnum {
	return common.Bnum(1 + sb.InodeBlocks())
}

func (sb *Super) Encode(bsz uint64) disk.Block {
	head := int32(-1)
	if sb.FreeHead != common.NULLBNUM {
		head = int32(sb.FreeHead)
	}
	enc := marshal.NewEnc(bsz)
	enc.PutInt32(uint32(sb.NBlock))
	enc.PutInt32(uint32(sb.NInode))
	enc.PutInt32(uint32(head))
	return enc.Finish()
}

func Decode(blk disk.Block) *Super {
	dec := marshal.NewDec(blk)
	sb := &Super{}
	sb.NBlock = uint64(dec.GetInt32())
	sb.NInode = uint64(dec.GetInt32())
	head := int32(dec.GetInt32())
	if head == -1 {
		sb.FreeHead = common.NULLBNUM
	} else {
		// any other negative value decodes out of range and fails Valid
		sb.FreeHead = common.Bnum(uint32(head))
	}
	return sb
}

// CheckGeometry reports whether a device of nblock blocks of bsz bytes can
// hold a file system with ninode inodes and at least one data block, and
// whether the directory for ninode files fits in a single file.
func CheckGeometry(nblock uint64, bsz uint64, ninode uint64) error {
	if nblock > common.MAXBLOCKS {
		return ErrGeometry.Trace(fmt.Sprintf("%d blocks exceed 16-bit block pointers", nblock))
	}
	if bsz < common.INODEBLK*common.INODESZ {
		return ErrGeometry.Trace(fmt.Sprintf("block size %d too small", bsz))
	}
	if ninode == 0 {
		return ErrGeometry.Trace("no inodes")
	}
	sb := &Super{NBlock: nblock, NInode: ninode}
	if uint64(sb.DataStart()) >= nblock {
		return ErrGeometry.Trace(fmt.Sprintf("%d inodes leave no data blocks on %d blocks", ninode, nblock))
	}
	if ninode*common.DIRENTSZ > inode.MaxFileSize(bsz) {
		return ErrGeometry.Trace(fmt.Sprintf("directory for %d inodes exceeds max file size", ninode))
	}
	return nil
}

// Valid reports whether sb describes a file system on a device of nblock
// blocks of bsz bytes.
func (sb *Super) Valid(nblock uint64, bsz uint64) bool {
	if sb.NBlock != nblock {
		return false
	}
	if CheckGeometry(nblock, bsz, sb.NInode) != nil {
		return false
	}
	if sb.FreeHead == common.NULLBNUM {
		return true
	}
	return sb.FreeHead >= sb.DataStart() && sb.FreeHead < sb.NBlock
}

func Load(d disk.Disk) (*Super, error) {
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, logex.Trace(err)
	}
	return Decode(blk), nil
}

func (sb *Super) Write(d disk.Disk) error {
	if err := d.Write(common.SUPERBLK, sb.Encode(d.BlockSize())); err != nil {
		return logex.Trace(err)
	}
	return nil
}

// Format lays out an empty file system on d: ninode fresh inodes, every
// remaining block chained onto the free list in block order, and the
// superblock.
func Format(d disk.Disk, ninode uint64) (*Super, error) {
	nblock, err := d.Size()
	if err != nil {
		return nil, logex.Trace(err)
	}
	bsz := d.BlockSize()
	if err := CheckGeometry(nblock, bsz, ninode); err != nil {
		return nil, err
	}
	sb := &Super{NBlock: nblock, NInode: ninode}

	for i := uint64(0); i < sb.InodeBlocks(); i++ {
		blk := make(disk.Block, bsz)
		for j := uint64(0); j < common.INODEBLK; j++ {
			inum := common.Inum(i*common.INODEBLK + j)
			b := buf.MkBufLoad(addr.InodeAddr(inum), common.INODESZ, blk)
			inode.MkInode(inum).Encode(b)
		}
		if err := d.Write(common.Bnum(1+i), blk); err != nil {
			return nil, logex.Trace(err)
		}
	}

	start := sb.DataStart()
	for bn := start; bn < nblock; bn++ {
		next := bn + 1
		if next == nblock {
			next = common.NULLBNUM
		}
		b := buf.MkBuf(addr.MkAddr(bn, 0), make(disk.Block, bsz))
		b.Bnum32Put(0, next)
		if err := d.Write(bn, b.Data); err != nil {
			return nil, logex.Trace(err)
		}
	}
	sb.FreeHead = start

	if err := sb.Write(d); err != nil {
		return nil, err
	}
	util.DPrintf(0, "format: %d blocks, %d inodes, data starts at %d",
		nblock, ninode, start)
	return sb, nil
}
