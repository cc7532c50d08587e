// dir is the single flat directory. It is stored as the contents of the file
// whose inode is 0: first every entry's name length as a 4-byte integer, then
// every name in a fixed-width field.
package dir

import (
	"sync"
	"unicode/utf8"

	"github.com/chzyer/logex"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/util"
)

const RootName = "/"

var (
	ErrFull      = logex.Define("directory full")
	ErrNotInUse  = logex.Define("directory slot not in use")
	ErrBadName   = logex.Define("invalid file name")
	ErrBadFormat = logex.Define("malformed directory image")
)

type Directory struct {
	mu     *sync.Mutex
	fsizes []uint32 // name length in characters; 0 marks a free slot
	fnames []string
}

func MkDirectory(ninode uint64) *Directory {
	d := &Directory{
		mu:     new(sync.Mutex),
		fsizes: make([]uint32, ninode),
		fnames: make([]string, ninode),
	}
	d.fsizes[common.ROOTINUM] = 1
	d.fnames[common.ROOTINUM] = RootName
	return d
}

// Truncate cuts name to at most NAMELEN characters, without splitting a
// character, such that it also fits the on-disk name field.
func Truncate(name string) string {
	var n uint64
	for i := range name {
		if n == common.NAMELEN {
			return name[:i]
		}
		_, sz := utf8.DecodeRuneInString(name[i:])
		if uint64(i+sz) > common.NAMEFIELD {
			return name[:i]
		}
		n++
	}
	return name
}

func (d *Directory) Size() uint64 {
	return uint64(len(d.fsizes))
}

// Ialloc gives name the lowest free inode number.
func (d *Directory) Ialloc(name string) (common.Inum, error) {
	if !utf8.ValidString(name) {
		return 0, ErrBadName.Trace(name)
	}
	name = Truncate(name)
	if name == "" {
		return 0, ErrBadName.Trace()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, sz := range d.fsizes {
		if sz == 0 {
			d.fsizes[i] = uint32(utf8.RuneCountInString(name))
			d.fnames[i] = name
			util.DPrintf(5, "dir: %q -> %d", name, i)
			return common.Inum(i), nil
		}
	}
	return 0, ErrFull.Trace(name)
}

func (d *Directory) Ifree(inum common.Inum) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if uint64(inum) >= uint64(len(d.fsizes)) || d.fsizes[inum] == 0 {
		return ErrNotInUse.Trace(inum)
	}
	if inum == common.ROOTINUM {
		return ErrBadName.Trace("cannot free the root entry")
	}
	d.fsizes[inum] = 0
	d.fnames[inum] = ""
	return nil
}

// Namei looks up name (after truncation, so over-long names find the entry
// they created).
func (d *Directory) Namei(name string) (common.Inum, bool) {
	name = Truncate(name)
	n := uint32(utf8.RuneCountInString(name))
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, sz := range d.fsizes {
		if sz != 0 && sz == n && d.fnames[i] == name {
			return common.Inum(i), true
		}
	}
	return 0, false
}

type Entry struct {
	Name string
	Inum common.Inum
}

// List returns the named entries in inode order, root included.
func (d *Directory) List() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ents []Entry
	for i, sz := range d.fsizes {
		if sz != 0 {
			ents = append(ents, Entry{Name: d.fnames[i], Inum: common.Inum(i)})
		}
	}
	return ents
}

func (d *Directory) ToBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := uint64(len(d.fsizes))
	enc := marshal.NewEnc(n * common.DIRENTSZ)
	for _, sz := range d.fsizes {
		enc.PutInt32(sz)
	}
	data := enc.Finish()
	off := n * 4
	for i, name := range d.fnames {
		if d.fsizes[i] != 0 {
			copy(data[off:off+common.NAMEFIELD], name)
		}
		off += common.NAMEFIELD
	}
	return data
}

// FromBytes replaces the directory contents with the image in data.
func (d *Directory) FromBytes(data []byte) error {
	n := uint64(len(d.fsizes))
	if uint64(len(data)) < n*common.DIRENTSZ {
		return ErrBadFormat.Trace(len(data))
	}
	dec := marshal.NewDec(data)
	fsizes := make([]uint32, n)
	fnames := make([]string, n)
	for i := range fsizes {
		fsizes[i] = dec.GetInt32()
	}
	off := n * 4
	for i, sz := range fsizes {
		field := data[off : off+common.NAMEFIELD]
		off += common.NAMEFIELD
		if sz == 0 {
			continue
		}
		if uint64(sz) > common.NAMELEN {
			return ErrBadFormat.Trace(i, sz)
		}
		name, ok := firstRunes(field, sz)
		if !ok {
			return ErrBadFormat.Trace(i)
		}
		fsizes[i] = sz
		fnames[i] = name
	}
	if fsizes[common.ROOTINUM] != 1 || fnames[common.ROOTINUM] != RootName {
		return ErrBadFormat.Trace("missing root entry")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fsizes = fsizes
	d.fnames = fnames
	return nil
}

func firstRunes(field []byte, n uint32) (string, bool) {
	off := 0
	for i := uint32(0); i < n; i++ {
		r, sz := utf8.DecodeRune(field[off:])
		if r == utf8.RuneError && sz <= 1 {
			return "", false
		}
		off += sz
	}
	return string(field[:off]), true
}

// Reset empties the directory, keeping only the root entry.
func (d *Directory) Reset(ninode uint64) {
	fresh := MkDirectory(ninode)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fsizes = fresh.fsizes
	d.fnames = fresh.fnames
}
