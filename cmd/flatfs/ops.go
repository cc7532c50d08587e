package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chzyer/logex"
	"github.com/klauspost/crc32"

	"github.com/mit-pdos/go-flatfs/fs"
)

const chunkSize = 4096

func putFile(fsys *fs.FileSystem, name string, data []byte) error {
	e, err := fsys.Open(name, "w")
	if err != nil {
		return err
	}
	_, err = fsys.Write(e, data)
	if cerr := fsys.Close(e); err == nil {
		err = cerr
	}
	return err
}

// copyOut streams name into w.
func copyOut(fsys *fs.FileSystem, name string, w io.Writer) (uint64, error) {
	e, err := fsys.Open(name, "r")
	if err != nil {
		return 0, err
	}
	defer fsys.Close(e)
	buf := make([]byte, chunkSize)
	var total uint64
	for {
		n, err := fsys.Read(e, buf)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return total, logex.Trace(err)
		}
		total += uint64(n)
	}
}

func checksum(fsys *fs.FileSystem, name string) (uint32, uint64, error) {
	h := crc32.NewIEEE()
	n, err := copyOut(fsys, name, h)
	if err != nil {
		return 0, 0, err
	}
	return h.Sum32(), n, nil
}

func list(fsys *fs.FileSystem, w io.Writer) error {
	infos, err := fsys.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	for _, info := range infos {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", info.Inum, info.Length, info.Name)
	}
	return tw.Flush()
}

func stat(fsys *fs.FileSystem, name string, w io.Writer) error {
	info, err := fsys.Stat(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "name: %v\ninode: %v\nsize: %v\nstatus: %v\n",
		info.Name, info.Inum, info.Length, info.Status)
	return nil
}

func df(fsys *fs.FileSystem, w io.Writer) error {
	n, err := fsys.NumFree()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d free blocks of %d bytes\n", n, fsys.BlockSize())
	return nil
}
