// filetable tracks open files and arbitrates access to each inode: any
// number of readers, or a single writer.
package filetable

import (
	"sync"

	"github.com/chzyer/logex"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/dir"
	"github.com/mit-pdos/go-flatfs/inode"
	"github.com/mit-pdos/go-flatfs/util"
)

var (
	ErrNotFound = logex.Define("no such file")
	ErrBadMode  = logex.Define("unknown open mode")
	ErrNotOpen  = logex.Define("entry is not open")
	ErrBusy     = logex.Define("file is open")
	ErrRoot     = logex.Define("operation not permitted on the root entry")
)

type Mode int

const (
	ModeRead      Mode = iota // "r"
	ModeWrite                 // "w": truncates
	ModeReadWrite             // "w+"
	ModeAppend                // "a"
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "w+":
		return ModeReadWrite, nil
	case "a":
		return ModeAppend, nil
	}
	return 0, ErrBadMode.Trace(s)
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeReadWrite:
		return "w+"
	case ModeAppend:
		return "a"
	}
	return "?"
}

func (m Mode) CanRead() bool {
	return m == ModeRead || m == ModeReadWrite
}

func (m Mode) CanWrite() bool {
	return m != ModeRead
}

// Entry is one open handle. The inode is shared by every entry open on the
// same file; hold the entry lock while using SeekPtr or the inode.
type Entry struct {
	mu      *sync.Mutex
	Inode   *inode.Inode
	Inum    common.Inum
	Mode    Mode
	SeekPtr uint64
}

func (e *Entry) Lock() {
	e.mu.Lock()
}

func (e *Entry) Unlock() {
	e.mu.Unlock()
}

// Reclaimer clears keep and frees the blocks detached from a file being
// emptied. It runs only after the emptied inode is on disk.
type Reclaimer func(keep common.Bnum, freed []common.Bnum) error

type FileTable struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	dir     *dir.Directory
	store   *inode.Store
	reclaim Reclaimer
	table   map[*Entry]struct{}
	inodes  map[common.Inum]*inode.Inode // inodes with open entries
}

func MkFileTable(d *dir.Directory, s *inode.Store, reclaim Reclaimer) *FileTable {
	mu := new(sync.Mutex)
	return &FileTable{
		mu:      mu,
		cond:    sync.NewCond(mu),
		dir:     d,
		store:   s,
		reclaim: reclaim,
		table:   make(map[*Entry]struct{}),
		inodes:  make(map[common.Inum]*inode.Inode),
	}
}

// getInode returns the shared in-memory inode, loading it if no entry has
// it open. Open counts and reader/writer status left on disk by an unclean
// shutdown cannot be live, so they are cleared.
func (ft *FileTable) getInode(inum common.Inum) (*inode.Inode, error) {
	if ip, ok := ft.inodes[inum]; ok {
		return ip, nil
	}
	ip, err := ft.store.Load(inum)
	if err != nil {
		return nil, logex.Trace(err)
	}
	if ip.Count != 0 || ip.Status == inode.Read || ip.Status == inode.Write {
		util.DPrintf(1, "filetable: clearing stale state of %v", ip)
		ip.Count = 0
		ip.Status = inode.Used
	}
	return ip, nil
}

func (ft *FileTable) resolve(name string, mode Mode) (common.Inum, bool, error) {
	if name == dir.RootName {
		return common.ROOTINUM, false, nil
	}
	if inum, ok := ft.dir.Namei(name); ok {
		return inum, false, nil
	}
	if mode == ModeRead {
		return 0, false, ErrNotFound.Trace(name)
	}
	inum, err := ft.dir.Ialloc(name)
	if err != nil {
		return 0, false, logex.Trace(err)
	}
	return inum, true, nil
}

// Falloc opens name, creating it for the write modes. It blocks while the
// file is open in a conflicting mode, re-resolving name after every wakeup.
// Opening with "w", or creating, empties the file first.
func (ft *FileTable) Falloc(name string, mode Mode) (*Entry, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var ip *inode.Inode
	var created bool
	for {
		inum, isNew, err := ft.resolve(name, mode)
		if err != nil {
			return nil, err
		}
		ip, err = ft.getInode(inum)
		if err != nil {
			if isNew {
				ft.dir.Ifree(inum)
			}
			return nil, err
		}
		if mode == ModeRead {
			if ip.Status != inode.Write {
				ip.Status = inode.Read
				break
			}
		} else if ip.Status == inode.Unused || ip.Status == inode.Used {
			ip.Status = inode.Write
			created = isNew
			break
		}
		util.DPrintf(5, "filetable: %q (%v) waits on %v", name, mode, ip.Status)
		ft.cond.Wait()
	}

	empty := ip.Count == 0 && (mode == ModeWrite || created)
	old := *ip
	var freed []common.Bnum
	if empty {
		var err error
		if freed, err = ft.store.Detach(ip); err != nil {
			return nil, ft.abort(ip, created, err)
		}
	}
	ip.Count++
	if err := ft.store.Save(ip); err != nil {
		if empty {
			*ip = old
		} else {
			ip.Count--
		}
		return nil, ft.abort(ip, created, err)
	}
	if empty {
		if err := ft.reclaim(ip.Direct[0], freed); err != nil {
			ip.Count--
			err = ft.abort(ip, created, err)
			if serr := ft.store.Save(ip); serr != nil {
				logex.Error("filetable: open of", name, "failed;", serr)
			}
			return nil, err
		}
	}
	ft.inodes[ip.Inum] = ip

	e := &Entry{
		mu:    new(sync.Mutex),
		Inode: ip,
		Inum:  ip.Inum,
		Mode:  mode,
	}
	if mode == ModeAppend {
		e.SeekPtr = ip.Length
	}
	ft.table[e] = struct{}{}
	util.DPrintf(5, "filetable: open %q %v -> %v", name, mode, ip)
	return e, nil
}

// abort undoes an open that failed after arbitration. A file the open
// created is taken out of the directory again.
func (ft *FileTable) abort(ip *inode.Inode, created bool, err error) error {
	ft.release(ip)
	if created {
		if ferr := ft.dir.Ifree(ip.Inum); ferr != nil {
			logex.Error("filetable: cannot undo create of", ip.Inum, ferr)
		}
	}
	return logex.Trace(err)
}

// release undoes the status change of an open that failed after
// arbitration.
func (ft *FileTable) release(ip *inode.Inode) {
	if ip.Count == 0 {
		ip.Status = inode.Used
		delete(ft.inodes, ip.Inum)
	} else if ip.Status == inode.Write {
		ip.Status = inode.Used
	}
	ft.cond.Broadcast()
}

// Ffree closes e. The last reader or any writer returns the inode to Used
// and wakes every waiting opener.
func (ft *FileTable) Ffree(e *Entry) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if _, ok := ft.table[e]; !ok {
		return ErrNotOpen.Trace()
	}
	delete(ft.table, e)
	ip := e.Inode
	ip.Count--
	if ip.Status == inode.Write || (ip.Status == inode.Read && ip.Count == 0) {
		ip.Status = inode.Used
	}
	ft.cond.Broadcast()
	if ip.Count == 0 {
		delete(ft.inodes, ip.Inum)
	}
	if err := ft.store.Save(ip); err != nil {
		return logex.Trace(err)
	}
	util.DPrintf(5, "filetable: close %v", ip)
	return nil
}

func (ft *FileTable) Fempty() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.table) == 0
}

// Unlink removes name from the directory. Open files and the root entry
// cannot be removed; their blocks are reclaimed when the slot is reused.
func (ft *FileTable) Unlink(name string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if name == dir.RootName {
		return ErrRoot.Trace()
	}
	inum, ok := ft.dir.Namei(name)
	if !ok {
		return ErrNotFound.Trace(name)
	}
	if _, open := ft.inodes[inum]; open {
		return ErrBusy.Trace(name)
	}
	if err := ft.dir.Ifree(inum); err != nil {
		return logex.Trace(err)
	}
	return nil
}

// Stat returns a copy of name's inode. An open file's inode may be changing
// under a writer's entry lock, so its blocks and length are taken from the
// last saved record; Write saves before it returns.
func (ft *FileTable) Stat(name string) (inode.Inode, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	inum := common.ROOTINUM
	if name != dir.RootName {
		var ok bool
		inum, ok = ft.dir.Namei(name)
		if !ok {
			return inode.Inode{}, ErrNotFound.Trace(name)
		}
	}
	if ip, ok := ft.inodes[inum]; ok {
		saved, err := ft.store.Load(inum)
		if err != nil {
			return inode.Inode{}, logex.Trace(err)
		}
		saved.Count = ip.Count
		saved.Status = ip.Status
		return *saved, nil
	}
	ip, err := ft.getInode(inum)
	if err != nil {
		return inode.Inode{}, err
	}
	return *ip, nil
}
