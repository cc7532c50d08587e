package fs

import (
	"github.com/mit-pdos/go-flatfs/common"
)

type Config struct {
	// CacheBlocks is the number of block cache frames.
	CacheBlocks uint64
	// DefaultInodes is the inode count used when Mount finds no valid file
	// system on the device.
	DefaultInodes uint64
}

func DefaultConfig() *Config {
	return &Config{
		CacheBlocks:   10,
		DefaultInodes: common.DEFAULTINODES,
	}
}
