package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk adapts a goose disk, whose operations panic on misuse, to the
// error-returning Disk interface.
type gooseDisk struct {
	d gdisk.Disk
}

// FromGoose wraps d. Blocks are always gdisk.BlockSize bytes.
func FromGoose(d gdisk.Disk) Disk {
	return &gooseDisk{d: d}
}

func (g *gooseDisk) ReadTo(a uint64, b Block) error {
	if err := checkAccess(a, g.d.Size(), b, gdisk.BlockSize); err != nil {
		return err
	}
	copy(b, g.d.Read(a))
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	b := make(Block, gdisk.BlockSize)
	if err := g.ReadTo(a, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, g.d.Size(), v, gdisk.BlockSize); err != nil {
		return err
	}
	g.d.Write(a, v)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g *gooseDisk) BlockSize() uint64 {
	return gdisk.BlockSize
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	g.d.Close()
	return nil
}
