package storage

import (
	"encoding/binary"
	"io"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// ErrStopScan can be returned from a scan callback to end the scan early
// without reporting an error
var ErrStopScan = errors.New("stop scan")

// Reader is the read side shared by units of work and snapshots
type Reader interface {
	// Get decodes the JSON value stored at key into v.
	// Returns false when the key does not exist.
	Get(key []byte, v any) (bool, error)
	// Scan visits every key with the given prefix in ascending order
	Scan(prefix []byte, fn func(key, value []byte) error) error
	// ScanReverse visits every key with the given prefix in descending order
	ScanReverse(prefix []byte, fn func(key, value []byte) error) error
}

// Store provides Pebble-based persistence with optimistic units of work.
// All mutations go through Update; queries go through View.
type Store struct {
	db    *pebble.DB
	locks *lockTable
	seq   atomic.Uint64
	now   func() time.Time
}

// Open opens a Pebble database at the given path
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		// Performance tuning
		Cache:                       pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:                64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions:    func() int { return 3 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20, // 64MB
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10, // 512KB
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble db at %s", dbPath)
	}

	s := &Store{
		db:    db,
		locks: newLockTable(defaultLockStripes),
		now:   time.Now,
	}
	stored, err := s.storedSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.seq.Store(max(uint64(s.now().UnixNano()), stored))
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// NextSeq returns a strictly increasing sequence number.
// Values track wall-clock nanoseconds but never fall below the high-water
// mark committed before the last restart, even if the clock stepped back.
func (s *Store) NextSeq() uint64 {
	for {
		last := s.seq.Load()
		next := uint64(s.now().UnixNano())
		if next <= last {
			next = last + 1
		}
		if s.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Update runs fn inside a new unit of work and commits it.
// Returns ErrConflict (wrapped) when a value read by fn changed before commit.
func (s *Store) Update(fn func(tx *Tx) error) error {
	tx := s.Begin()
	defer tx.Close()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn against a consistent point-in-time snapshot
func (s *Store) View(fn func(r Reader) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	return fn(&snapshotReader{snap: snap})
}

// storedSeq returns the highest sequence number any committed unit used
func (s *Store) storedSeq() (uint64, error) {
	data, found, err := s.getRaw(SeqKey())
	if err != nil || !found {
		return 0, err
	}
	if len(data) != 8 {
		return 0, errors.Errorf("corrupt sequence mark: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// getRaw reads the committed value of key
func (s *Store) getRaw(key []byte) ([]byte, bool, error) {
	return getCopy(s.db, key)
}

type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

type iterable interface {
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func getCopy(g getter, key []byte) ([]byte, bool, error) {
	data, closer, err := g.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %q", key)
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func getJSON(g getter, key []byte, v any) (bool, error) {
	data, found, err := getCopy(g, key)
	if err != nil || !found {
		return found, err
	}
	return true, decodeJSON(data, v)
}

func scan(src iterable, prefix []byte, reverse bool, fn func(key, value []byte) error) error {
	iter, err := src.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return errors.Wrapf(err, "iterate %q", prefix)
	}
	defer iter.Close()

	first, next := iter.First, iter.Next
	if reverse {
		first, next = iter.Last, iter.Prev
	}

	for ok := first(); ok; ok = next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return iter.Error()
}

type snapshotReader struct {
	snap *pebble.Snapshot
}

func (r *snapshotReader) Get(key []byte, v any) (bool, error) {
	return getJSON(r.snap, key, v)
}

func (r *snapshotReader) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return scan(r.snap, prefix, false, fn)
}

func (r *snapshotReader) ScanReverse(prefix []byte, fn func(key, value []byte) error) error {
	return scan(r.snap, prefix, true, fn)
}
