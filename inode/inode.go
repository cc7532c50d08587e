package inode

import (
	"fmt"

	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/lockmap"
	"github.com/mit-pdos/go-flatfs/util"
)

type Status uint16

const (
	Unused Status = 0 // no file
	Used   Status = 1 // file exists, nobody has it open
	Read   Status = 2 // open by one or more readers
	Write  Status = 3 // open by a writer
)

func (s Status) String() string {
	switch s {
	case Unused:
		return "unused"
	case Used:
		return "used"
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return fmt.Sprintf("status(%d)", uint16(s))
}

// on-disk record offsets
const (
	offLength   uint64 = 0
	offCount    uint64 = 4
	offStatus   uint64 = 6
	offDirect   uint64 = 8
	offIndirect uint64 = offDirect + 2*common.NDIRECT
)

var (
	ErrBadInum    = logex.Define("inode number out of range")
	ErrFileTooBig = logex.Define("offset beyond maximum file size")
)

type Inode struct {
	Inum     common.Inum
	Length   uint64
	Count    int16 // open-file table entries referring to this inode
	Status   Status
	Direct   [common.NDIRECT]common.Bnum
	Indirect common.Bnum
}

func MkInode(inum common.Inum) *Inode {
	ip := &Inode{Inum: inum, Indirect: common.NULLBNUM}
	for i := range ip.Direct {
		ip.Direct[i] = common.NULLBNUM
	}
	return ip
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d len %d count %d %v direct %v indirect %d",
		ip.Inum, ip.Length, ip.Count, ip.Status, ip.Direct, int64(ip.Indirect))
}

// Encode writes ip into b, a 32-byte record view.
func (ip *Inode) Encode(b *buf.Buf) {
	b.Int32Put(offLength, int32(ip.Length))
	b.Uint16Put(offCount, uint16(ip.Count))
	b.Uint16Put(offStatus, uint16(ip.Status))
	for i, bn := range ip.Direct {
		b.BnumPut(offDirect+2*uint64(i), bn)
	}
	b.BnumPut(offIndirect, ip.Indirect)
}

func Decode(b *buf.Buf, inum common.Inum) *Inode {
	ip := &Inode{Inum: inum}
	ip.Length = uint64(uint32(b.Int32Get(offLength)))
	ip.Count = int16(b.Uint16Get(offCount))
	ip.Status = Status(b.Uint16Get(offStatus))
	for i := range ip.Direct {
		ip.Direct[i] = b.BnumGet(offDirect + 2*uint64(i))
	}
	ip.Indirect = b.BnumGet(offIndirect)
	return ip
}

// MaxFileSize is the largest length a file can reach with 11 direct blocks
// and one indirect block of 2-byte pointers.
func MaxFileSize(bsz uint64) uint64 {
	return common.NDIRECT*bsz + (bsz/2)*bsz
}

// Store loads and saves inode records in the inode table. Records share
// blocks, so a save is a read-modify-write under the block's lock.
type Store struct {
	d      disk.Disk
	locks  *lockmap.LockMap
	ninode uint64
}

func MkStore(d disk.Disk, ninode uint64) *Store {
	return &Store{
		d:      d,
		locks:  lockmap.MkLockMap(),
		ninode: ninode,
	}
}

func (s *Store) NInode() uint64 {
	return s.ninode
}

// Detach empties ip (see Inode.Detach) without saving it.
func (s *Store) Detach(ip *Inode) ([]common.Bnum, error) {
	return ip.Detach(s.d)
}

func (s *Store) Load(inum common.Inum) (*Inode, error) {
	if uint64(inum) >= s.ninode {
		return nil, ErrBadInum.Trace(inum)
	}
	a := addr.InodeAddr(inum)
	blk, err := s.d.Read(a.Blkno)
	if err != nil {
		return nil, logex.Trace(err)
	}
	ip := Decode(buf.MkBufLoad(a, common.INODESZ, blk), inum)
	util.DPrintf(10, "inode: load %v", ip)
	return ip, nil
}

func (s *Store) Save(ip *Inode) error {
	if uint64(ip.Inum) >= s.ninode {
		return ErrBadInum.Trace(ip.Inum)
	}
	a := addr.InodeAddr(ip.Inum)
	s.locks.Acquire(a.Blkno)
	defer s.locks.Release(a.Blkno)
	b := buf.MkBuf(a, make([]byte, common.INODESZ))
	ip.Encode(b)
	if err := b.WriteDirect(s.d); err != nil {
		return logex.Trace(err)
	}
	util.DPrintf(10, "inode: save %v", ip)
	return nil
}
