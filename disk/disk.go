package disk

import (
	"github.com/chzyer/logex"
)

// Block is a BlockSize()-byte buffer
type Block = []byte

var (
	ErrOutOfBounds = logex.Define("block number out of bounds")
	ErrBlockSize   = logex.Define("buffer is not block-sized")
	ErrBadGeometry = logex.Define("invalid disk geometry")
)

// Disk provides access to a logical block-based disk
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects a < Size() and len(b) == BlockSize().
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects a < Size() and len(v) == BlockSize().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// BlockSize reports the size of every block, in bytes
	BlockSize() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

func checkAccess(a uint64, nblock uint64, b Block, bsz uint64) error {
	if uint64(len(b)) != bsz {
		return ErrBlockSize.Trace(len(b))
	}
	if a >= nblock {
		return ErrOutOfBounds.Trace(a)
	}
	return nil
}
