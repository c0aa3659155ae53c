package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Value int `json:"value"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdate_CommitsAndReadsBack(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.Put([]byte("k:1"), record{Value: 7})
	})
	require.NoError(t, err)

	var got record
	err = s.View(func(r Reader) error {
		found, err := r.Get([]byte("k:1"), &got)
		assert.True(t, found)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Value)
}

func TestUpdate_ErrorDiscardsWrites(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(tx *Tx) error {
		if err := tx.Put([]byte("k:1"), record{Value: 1}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	err = s.View(func(r Reader) error {
		found, err := r.Get([]byte("k:1"), &record{})
		assert.False(t, found)
		return err
	})
	require.NoError(t, err)
}

func TestTx_ReadsOwnWrites(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put([]byte("k:a"), record{Value: 1}))
		require.NoError(t, tx.Put([]byte("k:b"), record{Value: 2}))

		var got record
		found, err := tx.Get([]byte("k:a"), &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 1, got.Value)

		var keys []string
		err = tx.Scan([]byte("k:"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		assert.Equal(t, []string{"k:a", "k:b"}, keys)
		return err
	})
	require.NoError(t, err)
}

func TestTx_StaleReadConflicts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Put([]byte("k:1"), record{Value: 1})
	}))

	slow := s.Begin()
	defer slow.Close()
	var seen record
	_, err := slow.Get([]byte("k:1"), &seen)
	require.NoError(t, err)

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Put([]byte("k:1"), record{Value: 2})
	}))

	require.NoError(t, slow.Put([]byte("k:1"), record{Value: seen.Value + 10}))
	err = slow.Commit()
	require.ErrorIs(t, err, ErrConflict)

	var got record
	require.NoError(t, s.View(func(r Reader) error {
		_, err := r.Get([]byte("k:1"), &got)
		return err
	}))
	assert.Equal(t, 2, got.Value)
}

func TestTx_AbsentReadConflictsWithInsert(t *testing.T) {
	s := newTestStore(t)

	slow := s.Begin()
	defer slow.Close()
	found, err := slow.Get([]byte("k:new"), &record{})
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Update(func(tx *Tx) error {
		return tx.Put([]byte("k:new"), record{Value: 1})
	}))

	require.NoError(t, slow.Put([]byte("k:other"), record{Value: 1}))
	require.ErrorIs(t, slow.Commit(), ErrConflict)
}

func TestTx_WatchAndBump(t *testing.T) {
	s := newTestStore(t)
	guard := []byte("grd:x")

	watcher := s.Begin()
	defer watcher.Close()
	require.NoError(t, watcher.Watch(guard))

	// Blind bumps from two units never conflict with each other
	require.NoError(t, s.Update(func(tx *Tx) error { return tx.Bump(guard) }))
	require.NoError(t, s.Update(func(tx *Tx) error { return tx.Bump(guard) }))

	require.NoError(t, watcher.Put([]byte("k:1"), record{}))
	require.ErrorIs(t, watcher.Commit(), ErrConflict)
}

func TestTx_ClosedUnitRejectsUse(t *testing.T) {
	s := newTestStore(t)
	tx := s.Begin()
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Put([]byte("k"), record{}), ErrTxClosed)
	assert.ErrorIs(t, tx.Commit(), ErrTxClosed)
	_, err := tx.Get([]byte("k"), &record{})
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestScanReverseAndStop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(tx *Tx) error {
		for i, k := range []string{"p:1", "p:2", "p:3", "q:1"} {
			if err := tx.Put([]byte(k), record{Value: i}); err != nil {
				return err
			}
		}
		return nil
	}))

	var keys []string
	err := s.View(func(r Reader) error {
		return r.ScanReverse([]byte("p:"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			if len(keys) == 2 {
				return ErrStopScan
			}
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p:3", "p:2"}, keys)
}

func TestNextSeq_StrictlyIncreasing(t *testing.T) {
	s := newTestStore(t)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := uint64(0)
			for i := 0; i < perWorker; i++ {
				n := s.NextSeq()
				assert.Greater(t, n, last)
				last = n
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestNextSeq_SurvivesRestartWithClockBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	// the clock runs an hour ahead, then steps back before the restart
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	var committed uint64
	require.NoError(t, s.Update(func(tx *Tx) error {
		committed = tx.NextSeq()
		return tx.PutRaw([]byte("k:a"), []byte("a"))
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	stored, err := reopened.storedSeq()
	require.NoError(t, err)
	assert.Equal(t, committed, stored)
	assert.Greater(t, reopened.NextSeq(), committed)
}

func TestSeqMark_NeverRegresses(t *testing.T) {
	s := newTestStore(t)

	early := s.Begin()
	defer early.Close()
	low := early.NextSeq()
	late := s.Begin()
	defer late.Close()
	high := late.NextSeq()
	require.Greater(t, high, low)

	require.NoError(t, late.PutRaw([]byte("k:late"), []byte("x")))
	require.NoError(t, late.Commit())
	require.NoError(t, early.PutRaw([]byte("k:early"), []byte("x")))
	require.NoError(t, early.Commit())

	stored, err := s.storedSeq()
	require.NoError(t, err)
	assert.Equal(t, high, stored)
}

func TestConcurrentIncrementsNeverLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	key := []byte("ctr")
	require.NoError(t, s.Update(func(tx *Tx) error { return tx.Put(key, record{}) }))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					err := s.Update(func(tx *Tx) error {
						var r record
						if _, err := tx.Get(key, &r); err != nil {
							return err
						}
						r.Value++
						return tx.Put(key, r)
					})
					if err == nil {
						break
					}
					if !assert.ErrorIs(t, err, ErrConflict) {
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	var got record
	require.NoError(t, s.View(func(r Reader) error {
		_, err := r.Get(key, &got)
		return err
	}))
	assert.Equal(t, workers*perWorker, got.Value)
}

func TestKeySchemaOrdering(t *testing.T) {
	owner := common.HexToAddress("0xAA00000000000000000000000000000000000000")

	assert.Equal(t, "bal:"+owner.Hex()+":BTC", string(BalanceKey(owner, "BTC")))
	assert.Less(t, string(OwnerOrderKey(owner, 9, "b")), string(OwnerOrderKey(owner, 10, "a")))
	assert.Less(t, string(BookKey("BTC-USD", "s", "1", 2)), string(BookKey("BTC-USD", "s", "1", 10)))
	assert.Equal(t, "bal:x;", string(keyUpperBound([]byte("bal:x:"))))
}
