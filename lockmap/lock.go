// lockmap is a sharded map of block locks.
//
// It behaves as if there were one lock per block number: Acquire(bn) blocks
// until no one else holds bn. Only blocks that are held (or waited on) have
// state; shard i tracks every bn with bn % NSHARD == i, so unrelated blocks
// rarely contend on the same shard mutex.
package lockmap

import (
	"sync"

	"github.com/mit-pdos/go-flatfs/common"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[common.Bnum]*lockState
}

func mkLockShard() *lockShard {
	mu := new(sync.Mutex)
	return &lockShard{
		mu:    mu,
		state: make(map[common.Bnum]*lockState),
	}
}

func (shard *lockShard) acquire(bn common.Bnum) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.state[bn]
	if !ok {
		state = &lockState{cond: sync.NewCond(shard.mu)}
		shard.state[bn] = state
	}
	for state.held {
		state.waiters++
		state.cond.Wait()
		state.waiters--
	}
	state.held = true
}

func (shard *lockShard) release(bn common.Bnum) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.state[bn]
	if !ok || !state.held {
		panic("lockmap: release of unheld block")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(shard.state, bn)
	}
}

func (shard *lockShard) size() int {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.state)
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	shards := make([]*lockShard, NSHARD)
	for i := range shards {
		shards[i] = mkLockShard()
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(bn common.Bnum) {
	lmap.shards[bn%NSHARD].acquire(bn)
}

func (lmap *LockMap) Release(bn common.Bnum) {
	lmap.shards[bn%NSHARD].release(bn)
}

// Len reports how many blocks currently have lock state.
func (lmap *LockMap) Len() int {
	n := 0
	for _, s := range lmap.shards {
		n += s.size()
	}
	return n
}
