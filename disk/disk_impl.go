package disk

import (
	"sync"

	"github.com/chzyer/logex"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-flatfs/util"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk stores blocks in a regular file (or a block special file) at
// offset a*BlockSize().
type FileDisk struct {
	fd        int
	numBlocks uint64
	blockSize uint64
}

func NewFileDisk(path string, numBlocks uint64, blockSize uint64) (*FileDisk, error) {
	if numBlocks == 0 || blockSize == 0 {
		return nil, ErrBadGeometry.Trace(numBlocks, blockSize)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, logex.Trace(err, path)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, logex.Trace(err)
	}
	sz := int64(numBlocks * blockSize)
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && stat.Size != sz {
		err = unix.Ftruncate(fd, sz)
		if err != nil {
			unix.Close(fd)
			return nil, logex.Trace(err)
		}
	}
	util.DPrintf(1, "disk: opened %s (%d blocks of %d bytes)", path, numBlocks, blockSize)
	return &FileDisk{fd: fd, numBlocks: numBlocks, blockSize: blockSize}, nil
}

func (d *FileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, d.numBlocks, buf, d.blockSize); err != nil {
		return err
	}
	_, err := unix.Pread(d.fd, buf, int64(a*d.blockSize))
	if err != nil {
		return logex.Trace(err, a)
	}
	util.DPrintf(20, "disk: read %d", a)
	return nil
}

func (d *FileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, d.blockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *FileDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, d.numBlocks, v, d.blockSize); err != nil {
		return err
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*d.blockSize))
	if err != nil {
		return logex.Trace(err, a)
	}
	util.DPrintf(20, "disk: write %d", a)
	return nil
}

func (d *FileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *FileDisk) BlockSize() uint64 {
	return d.blockSize
}

func (d *FileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl with F_FULLFSYNC.
	if err := unix.Fsync(d.fd); err != nil {
		return logex.Trace(err)
	}
	return nil
}

func (d *FileDisk) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return logex.Trace(err)
	}
	return nil
}

var _ Disk = (*MemDisk)(nil)

type MemDisk struct {
	l         *sync.RWMutex
	blocks    [][]byte
	blockSize uint64
}

func NewMemDisk(numBlocks uint64, blockSize uint64) *MemDisk {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemDisk{l: new(sync.RWMutex), blocks: blocks, blockSize: blockSize}
}

func (d *MemDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkAccess(a, uint64(len(d.blocks)), buf, d.blockSize); err != nil {
		return err
	}
	copy(buf, d.blocks[a])
	return nil
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.blockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *MemDisk) Write(a uint64, v Block) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkAccess(a, uint64(len(d.blocks)), v, d.blockSize); err != nil {
		return err
	}
	copy(d.blocks[a], v)
	return nil
}

func (d *MemDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *MemDisk) BlockSize() uint64 { return d.blockSize }

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
