package addr

import (
	"fmt"

	"github.com/mit-pdos/go-flatfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block in bytes. The size of the object is determined
// by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// InodeAddr locates the on-disk record of inode inum; the inode table
// starts right after the superblock.
func InodeAddr(inum common.Inum) Addr {
	n := uint64(inum)
	return MkAddr(common.Bnum(1+n/common.INODEBLK), (n%common.INODEBLK)*common.INODESZ)
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Blkno, a.Off)
}
