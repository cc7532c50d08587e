package common

import "math"

const (
	INODESZ  uint64 = 32 // on-disk size
	INODEBLK uint64 = 16 // inodes per inode-table block
	NDIRECT  uint64 = 11

	NAMELEN   uint64 = 30 // characters
	NAMEFIELD uint64 = 60 // bytes reserved per name on disk
	DIRENTSZ  uint64 = 4 + NAMEFIELD

	SUPERBLK      Bnum   = 0
	DEFAULTINODES uint64 = 64
	DEFAULTBLKSZ  uint64 = 512
	DEFAULTNBLOCK uint64 = 1000

	// Block pointers are 16-bit signed on disk.
	MAXBLOCKS uint64 = 1 << 15
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = math.MaxUint64
)

const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)
