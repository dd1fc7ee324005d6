package index

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	murmur3 "github.com/spaolacci/murmur3"
)

// ---------------------------------------------------------------------
// Strategy: Defines which indexing strategy to use
// ---------------------------------------------------------------------

type Strategy int

const (
	RoaringBitmap Strategy = iota
	HashIndex
)

func (s Strategy) String() string {
	switch s {
	case RoaringBitmap:
		return "roaring"
	case HashIndex:
		return "hash"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ---------------------------------------------------------------------
// Key: a tuple of grouping values
// ---------------------------------------------------------------------

// Key is the tuple of grouping-column values shared by a partition of rows.
type Key []int64

// String renders the key as its values joined by "|".
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, "|")
}

func (k Key) bytes() []byte {
	buf := make([]byte, 8*len(k))
	for i, v := range k {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

// Compare orders keys element-wise, shorter keys first on a common prefix.
func Compare(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}

// Partition is the set of rows sharing one key.
type Partition struct {
	Key  Key
	Rows *roaring.Bitmap
}

// ---------------------------------------------------------------------
// Index: The universal interface for all index implementations
// ---------------------------------------------------------------------

type Index interface {
	// Add records that rowID carries key
	Add(rowID uint32, key Key) error
	// Partitions returns one partition per distinct key, ordered by key
	Partitions() []Partition
	// Len returns the number of distinct keys
	Len() int
}

// New instantiates an empty index of the given strategy.
func New(strategy Strategy, sizeHint int) (Index, error) {
	switch strategy {
	case RoaringBitmap:
		return NewRoaringIndex(), nil
	case HashIndex:
		return NewHashIndex(sizeHint), nil
	default:
		return nil, fmt.Errorf("unsupported index strategy: %v", strategy)
	}
}

// Build indexes rows by the tuple of values found at the same position in
// each of columns. All columns must have the same length.
func Build(strategy Strategy, columns [][]int64) (Index, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no key columns")
	}
	rows := len(columns[0])
	for i, col := range columns {
		if len(col) != rows {
			return nil, fmt.Errorf("key column %d has %d rows, want %d", i, len(col), rows)
		}
	}

	idx, err := New(strategy, 16)
	if err != nil {
		return nil, err
	}
	for r := 0; r < rows; r++ {
		key := make(Key, len(columns))
		for c, col := range columns {
			key[c] = col[r]
		}
		if err := idx.Add(uint32(r), key); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

type entry struct {
	key Key
	bm  *roaring.Bitmap
}

func sortedPartitions(entries []*entry) []Partition {
	out := make([]Partition, len(entries))
	for i, e := range entries {
		out[i] = Partition{Key: e.key, Rows: e.bm.Clone()}
	}
	sort.Slice(out, func(i, j int) bool {
		return Compare(out[i].Key, out[j].Key) < 0
	})
	return out
}

// ---------------------------------------------------------------------
// 1) Roaring Bitmap Index
//
//    Maps each distinct key -> roaring.Bitmap of rowIDs.
// ---------------------------------------------------------------------

type roaringIndex struct {
	mu     sync.RWMutex
	values map[string]*entry
}

// NewRoaringIndex constructs a new Index backed by one Roaring bitmap per key
func NewRoaringIndex() Index {
	return &roaringIndex{
		values: make(map[string]*entry),
	}
}

func (r *roaringIndex) Add(rowID uint32, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key.String()
	e, ok := r.values[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...), bm: roaring.New()}
		r.values[k] = e
	}
	e.bm.Add(rowID)
	return nil
}

func (r *roaringIndex) Partitions() []Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.values))
	for _, e := range r.values {
		entries = append(entries, e)
	}
	return sortedPartitions(entries)
}

func (r *roaringIndex) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// ---------------------------------------------------------------------
// 2) Hash Index
//
//    Uses Murmur3 to hash each key into a bucket, and within each bucket
//    stores key -> Roaring bitmap of rowIDs. Suited to composite keys.
// ---------------------------------------------------------------------

type hashIndex struct {
	mu      sync.RWMutex
	buckets map[uint64]map[string]*entry // hash -> map[key] -> entry
	keys    int
}

// NewHashIndex constructs a new HashIndex
func NewHashIndex(sizeHint int) Index {
	return &hashIndex{
		buckets: make(map[uint64]map[string]*entry, sizeHint),
	}
}

func (h *hashIndex) Add(rowID uint32, key Key) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket := murmurKey(key)
	submap, ok := h.buckets[bucket]
	if !ok {
		submap = make(map[string]*entry)
		h.buckets[bucket] = submap
	}
	k := key.String()
	e, ok := submap[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...), bm: roaring.New()}
		submap[k] = e
		h.keys++
	}
	e.bm.Add(rowID)
	return nil
}

func (h *hashIndex) Partitions() []Partition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := make([]*entry, 0, h.keys)
	for _, submap := range h.buckets {
		for _, e := range submap {
			entries = append(entries, e)
		}
	}
	return sortedPartitions(entries)
}

func (h *hashIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.keys
}

// murmurKey hashes the binary encoding of a key to a 64-bit bucket.
func murmurKey(key Key) uint64 {
	return murmur3.Sum64(key.bytes())
}
