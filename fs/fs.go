package fs

import (
	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/alloc"
	"github.com/mit-pdos/go-flatfs/bcache"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/dir"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/filetable"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/super"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrBusy = logex.Define("file system has open files")
)

// FileSystem ties the layers together. File data goes through the block
// cache; the superblock, inode table, free list and indirect blocks are
// written to the device directly.
//
// Format must not run concurrently with any other call.
type FileSystem struct {
	d     disk.Disk
	cfg   *Config
	cache *bcache.Bcache

	sb     *super.Super
	alloc  *alloc.Alloc
	blocks *cachedAlloc
	store  *inode.Store
	dir    *dir.Directory
	ft     *filetable.FileTable
}

// cachedAlloc drops a block from the cache whenever it changes owner, so a
// stale dirty frame can never overwrite a free-list link or an indirect
// block.
type cachedAlloc struct {
	a     *alloc.Alloc
	cache *bcache.Bcache
}

func (ca *cachedAlloc) AllocNum() (common.Bnum, error) {
	bn, err := ca.a.AllocNum()
	if err != nil {
		return bn, err
	}
	ca.cache.Invalidate(bn)
	return bn, nil
}

func (ca *cachedAlloc) FreeNum(bn common.Bnum) error {
	ca.cache.Invalidate(bn)
	return ca.a.FreeNum(bn)
}

// Mount loads the file system on d, formatting d with cfg.DefaultInodes
// inodes if block 0 does not hold a valid superblock.
func Mount(d disk.Disk, cfg *Config) (*FileSystem, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	nblock, err := d.Size()
	if err != nil {
		return nil, logex.Trace(err)
	}
	cache, err := bcache.MkBcache(d, cfg.CacheBlocks)
	if err != nil {
		return nil, logex.Trace(err)
	}
	fs := &FileSystem{d: d, cfg: cfg, cache: cache}

	sb, err := super.Load(d)
	if err != nil {
		return nil, logex.Trace(err)
	}
	if !sb.Valid(nblock, d.BlockSize()) {
		util.DPrintf(0, "mount: no valid superblock, formatting with %d inodes",
			cfg.DefaultInodes)
		if err := fs.format(cfg.DefaultInodes); err != nil {
			return nil, err
		}
		return fs, nil
	}

	fs.setup(sb)
	if err := fs.loadDir(); err != nil {
		return nil, err
	}
	util.DPrintf(0, "mount: %d blocks, %d inodes, free head %d",
		sb.NBlock, sb.NInode, int64(sb.FreeHead))
	return fs, nil
}

func (fs *FileSystem) setup(sb *super.Super) {
	fs.sb = sb
	fs.alloc = alloc.MkAlloc(fs.d, sb)
	fs.blocks = &cachedAlloc{a: fs.alloc, cache: fs.cache}
	fs.store = inode.MkStore(fs.d, sb.NInode)
	fs.dir = dir.MkDirectory(sb.NInode)
	fs.ft = filetable.MkFileTable(fs.dir, fs.store, fs.reclaim)
}

// loadDir rebuilds the directory from the root file. A file system that was
// formatted but never synced has an empty root file and an empty directory.
func (fs *FileSystem) loadDir() error {
	e, err := fs.Open(dir.RootName, "r")
	if err != nil {
		return err
	}
	data := make([]byte, fs.Fsize(e))
	n, err := fs.Read(e, data)
	if cerr := fs.Close(e); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if err := fs.dir.FromBytes(data[:n]); err != nil {
		return logex.Trace(err)
	}
	return nil
}

func (fs *FileSystem) format(ninode uint64) error {
	if err := fs.cache.Flush(); err != nil {
		return logex.Trace(err)
	}
	sb, err := super.Format(fs.d, ninode)
	if err != nil {
		return logex.Trace(err)
	}
	fs.setup(sb)
	return fs.Sync()
}

// Format erases the device and lays out an empty file system with ninode
// inodes. It fails with ErrBusy while any file is open.
func (fs *FileSystem) Format(ninode uint64) error {
	if !fs.ft.Fempty() {
		return ErrBusy.Trace()
	}
	return fs.format(ninode)
}

// reclaim zeroes the block an emptied file keeps and frees the rest.
func (fs *FileSystem) reclaim(keep common.Bnum, freed []common.Bnum) error {
	if keep != common.NULLBNUM {
		if err := fs.cache.Write(keep, make([]byte, fs.d.BlockSize())); err != nil {
			return logex.Trace(err)
		}
	}
	for _, bn := range freed {
		if err := fs.blocks.FreeNum(bn); err != nil {
			return logex.Trace(err)
		}
	}
	return nil
}

// Sync persists the directory (as the root file), dirty cached blocks and
// the superblock, then waits for the device.
func (fs *FileSystem) Sync() error {
	e, err := fs.Open(dir.RootName, "w")
	if err != nil {
		return err
	}
	_, err = fs.Write(e, fs.dir.ToBytes())
	if cerr := fs.Close(e); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := fs.cache.Sync(); err != nil {
		return logex.Trace(err)
	}
	if err := fs.alloc.Sync(); err != nil {
		return logex.Trace(err)
	}
	if err := fs.d.Barrier(); err != nil {
		return logex.Trace(err)
	}
	util.DPrintf(1, "sync: done")
	return nil
}

// Flush writes back and empties the block cache.
func (fs *FileSystem) Flush() error {
	return fs.cache.Flush()
}

// Unmount syncs and flushes. The device stays open; it belongs to the
// caller.
func (fs *FileSystem) Unmount() error {
	if err := fs.Sync(); err != nil {
		return err
	}
	return fs.Flush()
}

func (fs *FileSystem) NumFree() (uint64, error) {
	return fs.alloc.NumFree()
}

func (fs *FileSystem) NInode() uint64 {
	return fs.sb.NInode
}

func (fs *FileSystem) BlockSize() uint64 {
	return fs.d.BlockSize()
}
