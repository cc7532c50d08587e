package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-flatfs/common"
)

func TestInodeAddr(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MkAddr(1, 0), InodeAddr(0))
	assert.Equal(MkAddr(1, 15*32), InodeAddr(15))
	assert.Equal(MkAddr(2, 0), InodeAddr(16))
	assert.Equal(MkAddr(4, 15*32), InodeAddr(63))
	assert.Equal("2:32", InodeAddr(common.Inum(17)).String())
}
