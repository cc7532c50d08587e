package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/chzyer/logex"
	"github.com/chzyer/readline"

	"github.com/mit-pdos/go-flatfs/filetable"
	"github.com/mit-pdos/go-flatfs/fs"
	"github.com/mit-pdos/go-flatfs/inode"
)

var (
	ErrUsage     = logex.Define("usage")
	ErrNoHandle  = logex.Define("no such handle")
	ErrWouldWait = logex.Define("file is open in a conflicting mode")
)

const shellHelp = `commands:
  ls                      list files
  stat NAME               show a file's inode
  cat NAME                print a file
  put NAME HOSTFILE       copy a host file in
  rm NAME                 delete a file
  cksum NAME              crc32 of a file
  df                      count free blocks
  open NAME MODE          open (r, w, w+, a); prints a handle
  read H N                read up to N bytes from handle H
  write H TEXT...         write TEXT to handle H
  seek H OFFSET WHENCE    whence is 0 (set), 1 (cur) or 2 (end)
  close H                 close handle H
  sync                    write everything back
  format N                erase with N inodes
  exit
`

type shell struct {
	fsys    *fs.FileSystem
	handles map[int]*filetable.Entry
	next    int
}

func newShell(fsys *fs.FileSystem) *shell {
	return &shell{fsys: fsys, handles: make(map[int]*filetable.Entry)}
}

func (sh *shell) run(prompt string) error {
	rl, err := readline.New(prompt)
	if err != nil {
		return logex.Trace(err)
	}
	defer rl.Close()
	defer sh.closeAll()

	for {
		line := rl.Line()
		if line.CanBreak() {
			break
		} else if line.CanContinue() {
			continue
		}
		quit, err := sh.exec(line.Line, rl.Stdout())
		if err != nil {
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
		if quit {
			break
		}
	}
	return nil
}

func (sh *shell) closeAll() {
	for h, e := range sh.handles {
		sh.fsys.Close(e)
		delete(sh.handles, h)
	}
}

func (sh *shell) handle(arg string) (int, *filetable.Entry, error) {
	h, err := strconv.Atoi(arg)
	if err != nil {
		return 0, nil, ErrNoHandle.Trace(arg)
	}
	e, ok := sh.handles[h]
	if !ok {
		return 0, nil, ErrNoHandle.Trace(h)
	}
	return h, e, nil
}

// conflicts reports whether opening name with mode would block. The shell
// is a single client, so waiting would wait on itself.
func (sh *shell) conflicts(name string, mode filetable.Mode) bool {
	info, err := sh.fsys.Stat(name)
	if err != nil {
		return false
	}
	if mode == filetable.ModeRead {
		return info.Status == inode.Write
	}
	return info.Status == inode.Read || info.Status == inode.Write
}

func want(args []string, n int, usage string) error {
	if len(args) < n {
		return ErrUsage.Trace(usage)
	}
	return nil
}

func (sh *shell) exec(line string, w io.Writer) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprint(w, shellHelp)
	case "ls":
		return false, list(sh.fsys, w)
	case "stat":
		if err := want(args, 1, "stat NAME"); err != nil {
			return false, err
		}
		return false, stat(sh.fsys, args[0], w)
	case "cat":
		if err := want(args, 1, "cat NAME"); err != nil {
			return false, err
		}
		if sh.conflicts(args[0], filetable.ModeRead) {
			return false, ErrWouldWait.Trace(args[0])
		}
		_, err := copyOut(sh.fsys, args[0], w)
		fmt.Fprintln(w)
		return false, err
	case "put":
		if err := want(args, 2, "put NAME HOSTFILE"); err != nil {
			return false, err
		}
		if sh.conflicts(args[0], filetable.ModeWrite) {
			return false, ErrWouldWait.Trace(args[0])
		}
		data, err := ioutil.ReadFile(args[1])
		if err != nil {
			return false, logex.Trace(err)
		}
		return false, putFile(sh.fsys, args[0], data)
	case "rm":
		if err := want(args, 1, "rm NAME"); err != nil {
			return false, err
		}
		return false, sh.fsys.Delete(args[0])
	case "cksum":
		if err := want(args, 1, "cksum NAME"); err != nil {
			return false, err
		}
		if sh.conflicts(args[0], filetable.ModeRead) {
			return false, ErrWouldWait.Trace(args[0])
		}
		sum, n, err := checksum(sh.fsys, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "%08x %d %s\n", sum, n, args[0])
	case "df":
		return false, df(sh.fsys, w)
	case "open":
		if err := want(args, 2, "open NAME MODE"); err != nil {
			return false, err
		}
		mode, err := filetable.ParseMode(args[1])
		if err != nil {
			return false, err
		}
		if sh.conflicts(args[0], mode) {
			return false, ErrWouldWait.Trace(args[0])
		}
		e, err := sh.fsys.Open(args[0], args[1])
		if err != nil {
			return false, err
		}
		h := sh.next
		sh.next++
		sh.handles[h] = e
		fmt.Fprintf(w, "%d\n", h)
	case "read":
		if err := want(args, 2, "read H N"); err != nil {
			return false, err
		}
		_, e, err := sh.handle(args[0])
		if err != nil {
			return false, err
		}
		n, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return false, ErrUsage.Trace("read H N")
		}
		buf := make([]byte, n)
		got, err := sh.fsys.Read(e, buf)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "%q\n", buf[:got])
	case "write":
		if err := want(args, 2, "write H TEXT..."); err != nil {
			return false, err
		}
		_, e, err := sh.handle(args[0])
		if err != nil {
			return false, err
		}
		length, err := sh.fsys.Write(e, []byte(strings.Join(args[1:], " ")))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "size %d\n", length)
	case "seek":
		if err := want(args, 3, "seek H OFFSET WHENCE"); err != nil {
			return false, err
		}
		_, e, err := sh.handle(args[0])
		if err != nil {
			return false, err
		}
		off, err1 := strconv.ParseInt(args[1], 10, 64)
		whence, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return false, ErrUsage.Trace("seek H OFFSET WHENCE")
		}
		pos, err := sh.fsys.Seek(e, off, whence)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "%d\n", pos)
	case "close":
		if err := want(args, 1, "close H"); err != nil {
			return false, err
		}
		h, e, err := sh.handle(args[0])
		if err != nil {
			return false, err
		}
		delete(sh.handles, h)
		return false, sh.fsys.Close(e)
	case "sync":
		if sh.conflicts("/", filetable.ModeWrite) {
			return false, ErrWouldWait.Trace("/")
		}
		return false, sh.fsys.Sync()
	case "format":
		if err := want(args, 1, "format N"); err != nil {
			return false, err
		}
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return false, ErrUsage.Trace("format N")
		}
		return false, sh.fsys.Format(n)
	default:
		return false, ErrUsage.Trace(fmt.Sprintf("unknown command %q; try help", cmd))
	}
	return false, nil
}
