package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/chzyer/logex"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-flatfs/disk"
	"github.com/mit-pdos/go-flatfs/fs"
	"github.com/mit-pdos/go-flatfs/util"
)

func main() {
	app := cli.App{
		Name:        appName,
		Description: "operate on a flat, single-directory file system image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file (default $FLATFS_CONFIG_FILE)",
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "disk image path",
			},
			&cli.Uint64Flag{
				Name:  "blocks",
				Usage: "device size in blocks",
			},
			&cli.Uint64Flag{
				Name:  "block-size",
				Usage: "block size in bytes",
			},
			&cli.Uint64Flag{
				Name:  "cache",
				Usage: "block cache frames",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug log level",
			},
		},
		Commands: []*cli.Command{{
			Name:        "format",
			Aliases:     []string{"mkfs"},
			Description: "erase the image and create an empty file system",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "inodes",
					Usage: "number of inodes (and so of files)",
				},
			},
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				n := cfg.Inodes
				if ctx.IsSet("inodes") {
					n = ctx.Uint64("inodes")
				}
				return fsys.Format(n)
			}),
		}, {
			Name:        "ls",
			Aliases:     []string{"list"},
			Description: "list files with inode numbers and sizes",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				return list(fsys, os.Stdout)
			}),
		}, {
			Name:        "put",
			ArgsUsage:   "NAME HOSTFILE",
			Description: "copy a host file into the file system",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				if ctx.NArg() != 2 {
					return ErrUsage.Trace("put NAME HOSTFILE")
				}
				data, err := ioutil.ReadFile(ctx.Args().Get(1))
				if err != nil {
					return logex.Trace(err)
				}
				return putFile(fsys, ctx.Args().Get(0), data)
			}),
		}, {
			Name:        "cat",
			ArgsUsage:   "NAME",
			Description: "write a file to stdout",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return ErrUsage.Trace("cat NAME")
				}
				_, err := copyOut(fsys, ctx.Args().First(), os.Stdout)
				return err
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"delete"},
			ArgsUsage:   "NAME",
			Description: "delete a file",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return ErrUsage.Trace("rm NAME")
				}
				return fsys.Delete(ctx.Args().First())
			}),
		}, {
			Name:        "stat",
			ArgsUsage:   "NAME",
			Description: "show a file's inode",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return ErrUsage.Trace("stat NAME")
				}
				return stat(fsys, ctx.Args().First(), os.Stdout)
			}),
		}, {
			Name:        "df",
			Description: "count free blocks",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				return df(fsys, os.Stdout)
			}),
		}, {
			Name:        "cksum",
			ArgsUsage:   "NAME",
			Description: "print the CRC-32 (IEEE) and size of a file",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return ErrUsage.Trace("cksum NAME")
				}
				sum, n, err := checksum(fsys, ctx.Args().First())
				if err != nil {
					return err
				}
				fmt.Printf("%08x %d %s\n", sum, n, ctx.Args().First())
				return nil
			}),
		}, {
			Name:        "shell",
			Aliases:     []string{"sh"},
			Description: "interactive shell over the mounted image",
			Action: withFS(func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error {
				return newShell(fsys).run(appName + "> ")
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		logex.Fatal(err)
	}
}

func loadConfig(ctx *cli.Context) (*Config, error) {
	cfg, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("image") {
		cfg.Image = ctx.String("image")
	}
	if ctx.IsSet("blocks") {
		cfg.Blocks = ctx.Uint64("blocks")
	}
	if ctx.IsSet("block-size") {
		cfg.BlockSize = ctx.Uint64("block-size")
	}
	if ctx.IsSet("cache") {
		cfg.CacheBlocks = ctx.Uint64("cache")
	}
	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Uint64("debug")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withFS mounts the configured image around f and unmounts it afterwards.
func withFS(
	f func(fsys *fs.FileSystem, cfg *Config, ctx *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		util.Debug = cfg.Debug
		d, err := disk.NewFileDisk(cfg.Image, cfg.Blocks, cfg.BlockSize)
		if err != nil {
			return err
		}
		defer d.Close()
		fsys, err := fs.Mount(d, cfg.FsConfig())
		if err != nil {
			return err
		}
		if err := f(fsys, cfg, ctx); err != nil {
			fsys.Unmount()
			return err
		}
		return fsys.Unmount()
	}
}
