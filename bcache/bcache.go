// bcache caches data blocks in a fixed number of frames. Victims are chosen
// with the second-chance (clock) algorithm and dirty victims are written back
// before reuse. Read misses are served from disk without installing the
// block. Callers' buffers are always copied; no frame storage escapes.
package bcache

import (
	"sync"

	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/addr"
	"github.com/mit-pdos/go-flatfs/buf"
	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrOutOfRange = logex.Define("block number out of range")
)

type frame struct {
	buf   *buf.Buf // Addr.Blkno is the mapped block
	valid bool
	ref   bool // second chance
}

func (f *frame) mapped() common.Bnum {
	if !f.valid {
		return common.NULLBNUM
	}
	return f.buf.Addr.Blkno
}

type Bcache struct {
	mu     *sync.Mutex
	d      disk.Disk
	nblock uint64
	frames []*frame
	index  map[common.Bnum]*frame
	hand   int
}

func MkBcache(d disk.Disk, nframe uint64) (*Bcache, error) {
	nblock, err := d.Size()
	if err != nil {
		return nil, logex.Trace(err)
	}
	if nframe == 0 {
		nframe = 1
	}
	frames := make([]*frame, nframe)
	for i := range frames {
		frames[i] = &frame{
			buf: buf.MkBuf(addr.MkAddr(common.NULLBNUM, 0), make([]byte, d.BlockSize())),
		}
	}
	return &Bcache{
		mu:     new(sync.Mutex),
		d:      d,
		nblock: nblock,
		frames: frames,
		index:  make(map[common.Bnum]*frame),
	}, nil
}

func (bc *Bcache) check(bn common.Bnum, b []byte) error {
	if bn >= bc.nblock {
		return ErrOutOfRange.Trace(bn)
	}
	if uint64(len(b)) != bc.d.BlockSize() {
		return disk.ErrBlockSize.Trace(len(b))
	}
	return nil
}

// writeBack writes f to disk if it is dirty.
func (bc *Bcache) writeBack(f *frame) error {
	if !f.valid || !f.buf.IsDirty() {
		return nil
	}
	util.DPrintf(15, "bcache: write back %d", f.buf.Addr.Blkno)
	return f.buf.WriteDirect(bc.d)
}

func (bc *Bcache) Read(bn common.Bnum, out []byte) error {
	if err := bc.check(bn, out); err != nil {
		return err
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if f, ok := bc.index[bn]; ok {
		copy(out, f.buf.Data)
		f.ref = true
		return nil
	}
	if err := bc.d.ReadTo(bn, out); err != nil {
		return logex.Trace(err)
	}
	return nil
}

// victim picks a frame to reuse: the first invalid one, otherwise the clock
// hand sweeps, clearing second-chance bits, until it finds a clear one.
func (bc *Bcache) victim() *frame {
	for _, f := range bc.frames {
		if !f.valid {
			return f
		}
	}
	for {
		f := bc.frames[bc.hand]
		bc.hand = (bc.hand + 1) % len(bc.frames)
		if !f.ref {
			return f
		}
		f.ref = false
	}
}

func (bc *Bcache) Write(bn common.Bnum, in []byte) error {
	if err := bc.check(bn, in); err != nil {
		return err
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if f, ok := bc.index[bn]; ok {
		copy(f.buf.Data, in)
		f.buf.SetDirty()
		f.ref = true
		return nil
	}

	f := bc.victim()
	if err := bc.writeBack(f); err != nil {
		return logex.Trace(err)
	}
	if f.valid {
		util.DPrintf(15, "bcache: evict %d for %d", f.buf.Addr.Blkno, bn)
		delete(bc.index, f.buf.Addr.Blkno)
	}
	f.buf.Addr = addr.MkAddr(bn, 0)
	copy(f.buf.Data, in)
	f.buf.SetDirty()
	f.valid = true
	// New frames earn their second chance on the first hit, not on install.
	f.ref = false
	bc.index[bn] = f
	return nil
}

// Sync writes back every dirty frame; frames stay cached.
func (bc *Bcache) Sync() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, f := range bc.frames {
		if err := bc.writeBack(f); err != nil {
			return logex.Trace(err)
		}
	}
	return nil
}

// Flush writes back every dirty frame and then empties the cache.
func (bc *Bcache) Flush() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, f := range bc.frames {
		if err := bc.writeBack(f); err != nil {
			return logex.Trace(err)
		}
	}
	for _, f := range bc.frames {
		f.valid = false
		f.ref = false
		f.buf.ClearDirty()
		f.buf.Addr = addr.MkAddr(common.NULLBNUM, 0)
	}
	bc.index = make(map[common.Bnum]*frame)
	bc.hand = 0
	return nil
}

// Invalidate drops bn from the cache without writing it back. Used when a
// block changes owner, so stale contents never reach the disk.
func (bc *Bcache) Invalidate(bn common.Bnum) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	f, ok := bc.index[bn]
	if !ok {
		return
	}
	delete(bc.index, bn)
	f.valid = false
	f.ref = false
	f.buf.ClearDirty()
	f.buf.Addr = addr.MkAddr(common.NULLBNUM, 0)
}

// Cached reports the blocks currently held, in frame order; unmapped frames
// are NULLBNUM.
func (bc *Bcache) Cached() []common.Bnum {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bns := make([]common.Bnum, len(bc.frames))
	for i, f := range bc.frames {
		bns[i] = f.mapped()
	}
	return bns
}
