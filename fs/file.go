package fs

import (
	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/filetable"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrNotReadable = logex.Define("file not open for reading")
	ErrNotWritable = logex.Define("file not open for writing")
	ErrBadWhence   = logex.Define("invalid whence")
)

// Open opens name with mode "r", "w", "w+" or "a". It blocks while the file
// is open in a conflicting mode.
func (fs *FileSystem) Open(name string, mode string) (*filetable.Entry, error) {
	m, err := filetable.ParseMode(mode)
	if err != nil {
		logex.Error(err)
		return nil, err
	}
	e, err := fs.ft.Falloc(name, m)
	if err != nil {
		return nil, logex.Trace(err)
	}
	return e, nil
}

func (fs *FileSystem) Close(e *filetable.Entry) error {
	e.Lock()
	defer e.Unlock()
	return fs.ft.Ffree(e)
}

// Read copies up to len(b) bytes from the seek pointer and advances it.
func (fs *FileSystem) Read(e *filetable.Entry, b []byte) (int, error) {
	e.Lock()
	defer e.Unlock()
	if !e.Mode.CanRead() {
		logex.Error("read on", e.Mode, "handle")
		return 0, ErrNotReadable.Trace(e.Mode)
	}
	ip := e.Inode
	if e.SeekPtr >= ip.Length {
		return 0, nil
	}
	n := util.Min(uint64(len(b)), ip.Length-e.SeekPtr)
	bsz := fs.d.BlockSize()
	blk := make([]byte, bsz)
	var done uint64
	for done < n {
		off := e.SeekPtr + done
		boff := off % bsz
		cnt := util.Min(bsz-boff, n-done)
		bn, _, err := ip.Bmap(fs.d, off, nil)
		if err != nil {
			e.SeekPtr += done
			return int(done), logex.Trace(err)
		}
		if bn == common.NULLBNUM {
			for i := range blk {
				blk[i] = 0
			}
		} else if err := fs.cache.Read(bn, blk); err != nil {
			e.SeekPtr += done
			return int(done), logex.Trace(err)
		}
		copy(b[done:done+cnt], blk[boff:boff+cnt])
		done += cnt
	}
	e.SeekPtr += n
	return int(n), nil
}

// Write copies b into the file at the seek pointer (at the end for append
// handles), allocating blocks as needed, and returns the new length.
func (fs *FileSystem) Write(e *filetable.Entry, b []byte) (uint64, error) {
	e.Lock()
	defer e.Unlock()
	if !e.Mode.CanWrite() {
		logex.Error("write on", e.Mode, "handle")
		return 0, ErrNotWritable.Trace(e.Mode)
	}
	ip := e.Inode
	if e.Mode == filetable.ModeAppend {
		e.SeekPtr = ip.Length
	}
	bsz := fs.d.BlockSize()
	n := uint64(len(b))
	if util.SumOverflows(e.SeekPtr, n) || e.SeekPtr+n > inode.MaxFileSize(bsz) {
		return ip.Length, inode.ErrFileTooBig.Trace(e.SeekPtr, n)
	}

	blk := make([]byte, bsz)
	var done uint64
	var werr error
	for done < n {
		off := e.SeekPtr + done
		boff := off % bsz
		cnt := util.Min(bsz-boff, n-done)
		bn, fresh, err := ip.Bmap(fs.d, off, fs.blocks)
		if err != nil {
			werr = logex.Trace(err)
			break
		}
		if cnt < bsz {
			if fresh {
				for i := range blk {
					blk[i] = 0
				}
			} else if err := fs.cache.Read(bn, blk); err != nil {
				werr = logex.Trace(err)
				break
			}
		}
		copy(blk[boff:boff+cnt], b[done:done+cnt])
		if err := fs.cache.Write(bn, blk); err != nil {
			werr = logex.Trace(err)
			break
		}
		done += cnt
	}

	e.SeekPtr += done
	if e.SeekPtr > ip.Length {
		ip.Length = e.SeekPtr
	}
	if err := fs.store.Save(ip); err != nil && werr == nil {
		werr = logex.Trace(err)
	}
	return ip.Length, werr
}

// Seek moves the seek pointer relative to whence (SeekSet, SeekCur or
// SeekEnd), clamped to [0, length].
func (fs *FileSystem) Seek(e *filetable.Entry, offset int64, whence int) (uint64, error) {
	e.Lock()
	defer e.Unlock()
	length := e.Inode.Length
	var base uint64
	switch whence {
	case common.SeekSet:
		base = 0
	case common.SeekCur:
		base = e.SeekPtr
	case common.SeekEnd:
		base = length
	default:
		logex.Error("seek: whence", whence)
		return e.SeekPtr, ErrBadWhence.Trace(whence)
	}
	var pos uint64
	if offset >= 0 {
		if uint64(offset) >= length-util.Min(base, length) {
			pos = length
		} else {
			pos = base + uint64(offset)
		}
	} else {
		back := uint64(-(offset + 1)) + 1
		if back >= base {
			pos = 0
		} else {
			pos = base - back
		}
	}
	if pos > length {
		pos = length
	}
	e.SeekPtr = pos
	return pos, nil
}

func (fs *FileSystem) Fsize(e *filetable.Entry) uint64 {
	e.Lock()
	defer e.Unlock()
	return e.Inode.Length
}

// Delete removes name from the directory. Its blocks are reclaimed when the
// inode is next given to a new file.
func (fs *FileSystem) Delete(name string) error {
	if err := fs.ft.Unlink(name); err != nil {
		return logex.Trace(err)
	}
	return nil
}

type Info struct {
	Name   string
	Inum   common.Inum
	Length uint64
	Status inode.Status
}

func (fs *FileSystem) Stat(name string) (Info, error) {
	ip, err := fs.ft.Stat(name)
	if err != nil {
		return Info{}, logex.Trace(err)
	}
	return Info{Name: name, Inum: ip.Inum, Length: ip.Length, Status: ip.Status}, nil
}

// List describes every named file, root first.
func (fs *FileSystem) List() ([]Info, error) {
	var infos []Info
	for _, ent := range fs.dir.List() {
		info, err := fs.Stat(ent.Name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
