package main

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/chzyer/logex"
	"github.com/klauspost/crc32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/fs"
)

func mkShell(t *testing.T) *shell {
	fsys, err := fs.Mount(disk.NewMemDisk(300, 512), nil)
	require.NoError(t, err)
	return newShell(fsys)
}

func (sh *shell) run1(t *testing.T, line string) string {
	var out bytes.Buffer
	_, err := sh.exec(line, &out)
	require.NoError(t, err, line)
	return out.String()
}

func TestShellHandles(t *testing.T) {
	assert := assert.New(t)
	sh := mkShell(t)
	assert.Equal("0\n", sh.run1(t, "open notes w"))
	assert.Equal("size 11\n", sh.run1(t, "write 0 hello world"))
	assert.Equal("6\n", sh.run1(t, "seek 0 6 0"))
	assert.Equal("size 11\n", sh.run1(t, "write 0 WORLD"))
	sh.run1(t, "close 0")

	assert.Equal("1\n", sh.run1(t, "open notes r"))
	assert.Equal("\"hello\"\n", sh.run1(t, "read 1 5"))
	assert.Equal("\" WORLD\"\n", sh.run1(t, "read 1 100"))

	var out bytes.Buffer
	_, err := sh.exec("open notes w", &out)
	assert.True(logex.Equal(err, ErrWouldWait), "writer would wait on our own reader")
	sh.run1(t, "close 1")

	_, err = sh.exec("close 1", &out)
	assert.True(logex.Equal(err, ErrNoHandle))
}

func TestShellFiles(t *testing.T) {
	assert := assert.New(t)
	sh := mkShell(t)
	host := filepath.Join(t.TempDir(), "in.txt")
	data := bytes.Repeat([]byte("0123456789"), 100)
	require.NoError(t, ioutil.WriteFile(host, data, 0644))

	sh.run1(t, "put doc "+host)
	assert.Equal(string(data)+"\n", sh.run1(t, "cat doc"))
	assert.Contains(sh.run1(t, "ls"), "1000 doc")
	assert.Contains(sh.run1(t, "stat doc"), "size: 1000")

	sum := crc32.ChecksumIEEE(data)
	out := sh.run1(t, "cksum doc")
	assert.Contains(out, " 1000 doc")
	assert.Equal(8, len(out)-len(" 1000 doc\n"))
	sum2, n, err := checksum(sh.fsys, "doc")
	require.NoError(t, err)
	assert.Equal(sum, sum2)
	assert.Equal(uint64(1000), n)

	sh.run1(t, "rm doc")
	var buf bytes.Buffer
	_, err = sh.exec("cat doc", &buf)
	assert.Error(err)
	assert.Contains(sh.run1(t, "df"), "free blocks")
}

func TestShellMisc(t *testing.T) {
	assert := assert.New(t)
	sh := mkShell(t)
	var out bytes.Buffer
	quit, err := sh.exec("", &out)
	assert.False(quit)
	assert.NoError(err)
	_, err = sh.exec("bogus", &out)
	assert.True(logex.Equal(err, ErrUsage))
	_, err = sh.exec("stat", &out)
	assert.True(logex.Equal(err, ErrUsage))
	quit, err = sh.exec("exit", &out)
	assert.True(quit)
	assert.NoError(err)

	sh.run1(t, "format 16")
	assert.Equal(uint64(16), sh.fsys.NInode())
	assert.Contains(sh.run1(t, "help"), "open NAME MODE")
	sh.run1(t, "sync")
}

func TestShellOwnHandlesConflict(t *testing.T) {
	assert := assert.New(t)
	sh := mkShell(t)
	host := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, ioutil.WriteFile(host, []byte("data"), 0644))

	assert.Equal("0\n", sh.run1(t, "open foo w"))
	var out bytes.Buffer
	for _, line := range []string{"cat foo", "cksum foo", "put foo " + host} {
		_, err := sh.exec(line, &out)
		assert.True(logex.Equal(err, ErrWouldWait), line)
	}
	sh.run1(t, "close 0")

	assert.Equal("1\n", sh.run1(t, "open foo r"))
	_, err := sh.exec("put foo "+host, &out)
	assert.True(logex.Equal(err, ErrWouldWait), "put under our own reader")
	sh.run1(t, "cksum foo")
	sh.run1(t, "cat foo")
	sh.run1(t, "close 1")

	sh.run1(t, "put foo "+host)
	assert.Equal("data\n", sh.run1(t, "cat foo"))
}
