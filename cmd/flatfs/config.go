package main

import (
	"io/ioutil"
	"os"

	"github.com/chzyer/logex"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/fs"
	"github.com/mit-pdos/go-flatfs/super"
)

const (
	envVarPrefix = "FLATFS"
	appName      = "flatfs"
)

var ErrConfig = logex.Define("invalid configuration")

type Config struct {
	Image       string `envconfig:"IMAGE"        yaml:"image"`
	Blocks      uint64 `envconfig:"BLOCKS"       yaml:"blocks"`
	BlockSize   uint64 `envconfig:"BLOCK_SIZE"   yaml:"blockSize"`
	CacheBlocks uint64 `envconfig:"CACHE_BLOCKS" yaml:"cacheBlocks"`
	Inodes      uint64 `envconfig:"INODES"       yaml:"inodes"`
	Debug       uint64 `envconfig:"DEBUG"        yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Image:       appName + ".img",
		Blocks:      common.DEFAULTNBLOCK,
		BlockSize:   common.DEFAULTBLKSZ,
		CacheBlocks: fs.DefaultConfig().CacheBlocks,
		Inodes:      common.DEFAULTINODES,
	}
}

// LoadConfig starts from the defaults, applies the YAML file at path (if it
// exists) and then FLATFS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		path = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, logex.Trace(err, "reading config file")
		}
		if err == nil {
			if err := yaml.UnmarshalStrict(data, c); err != nil {
				return nil, logex.Trace(err, "unmarshaling config file")
			}
		}
	}
	if err := envconfig.Process(envVarPrefix, c); err != nil {
		return nil, logex.Trace(err, "parsing environment variables")
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return ErrConfig.Trace("missing image path")
	}
	if c.CacheBlocks == 0 {
		return ErrConfig.Trace("cacheBlocks must be positive")
	}
	if err := super.CheckGeometry(c.Blocks, c.BlockSize, c.Inodes); err != nil {
		return ErrConfig.Trace(err)
	}
	return nil
}

func (c *Config) FsConfig() *fs.Config {
	return &fs.Config{
		CacheBlocks:   c.CacheBlocks,
		DefaultInodes: c.Inodes,
	}
}
