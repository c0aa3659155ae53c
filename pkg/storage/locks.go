package storage

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockStripes = 1024

// lockTable provides per-record exclusive access through lock striping.
// Keys are always acquired in ascending stripe order so commits never deadlock.
type lockTable struct {
	stripes []sync.Mutex
}

func newLockTable(n int) *lockTable {
	return &lockTable{stripes: make([]sync.Mutex, n)}
}

func (lt *lockTable) stripe(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(lt.stripes)))
}

// lock acquires every stripe covering keys and returns the release func
func (lt *lockTable) lock(keys []string) func() {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := lt.stripe(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)

	for _, i := range idx {
		lt.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			lt.stripes[idx[j]].Unlock()
		}
	}
}
