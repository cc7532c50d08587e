package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/chzyer/logex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	assert.NoError(t, c.Validate())
}

func TestLoadConfigLayers(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "flatfs.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("image: /tmp/a.img\nblocks: 200\ninodes: 32\n"), 0644))
	os.Setenv("FLATFS_BLOCKS", "300")
	defer os.Unsetenv("FLATFS_BLOCKS")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal("/tmp/a.img", c.Image, "from file")
	assert.Equal(uint64(32), c.Inodes, "from file")
	assert.Equal(uint64(300), c.Blocks, "environment wins")
	assert.Equal(uint64(512), c.BlockSize, "default kept")
	assert.Equal(uint64(32), c.FsConfig().DefaultInodes)
}

func TestLoadConfigStrict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flatfs.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("blokcs: 10\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	c.Blocks = 1 << 20
	assert.True(t, logex.Equal(c.Validate(), ErrConfig))
	c = DefaultConfig()
	c.Image = ""
	assert.True(t, logex.Equal(c.Validate(), ErrConfig))
}
