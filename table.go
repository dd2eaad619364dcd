package chashtable

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/chashtable/internal/epoch"
)

// internalTable is a power-of-two array of buckets. It is immutable in
// shape once published: only its buckets' contents mutate afterwards.
type internalTable[V any] struct {
	buckets []bucket[V]
	mask    uintptr
	log2    int

	//lint:ignore U1000 prevents false sharing with whatever follows it
	_ [(CacheLineSize - unsafe.Sizeof(struct {
		buckets []bucket[struct{}]
		mask    uintptr
		log2    int
	}{})%CacheLineSize) % CacheLineSize]byte
}

func newInternalTable[V any](log2Size int) *internalTable[V] {
	n := 1 << uint(log2Size)
	return &internalTable[V]{
		buckets: make([]bucket[V], n),
		mask:    uintptr(n - 1),
		log2:    log2Size,
	}
}

func (it *internalTable[V]) bucketFor(hash uintptr) *bucket[V] {
	return &it.buckets[hash&it.mask]
}

// Table is a concurrent, resizable, open-chaining hash table. Readers
// never block; single-key writers take only a per-bucket lock; whole-
// table operations (Grow, Shrink, bulk delete, full scan) coexist with
// concurrent point operations by rerouting readers through buckets'
// redirect bit. Safe memory reclamation relies on the epoch package:
// a removed node is not reused until a global write-synchronize
// guarantees no reader still holds a reference to it.
type Table[V any] struct {
	tablePtr    atomic.Pointer[internalTable[V]]
	newTablePtr atomic.Pointer[internalTable[V]] // non-nil only while resizeMu is held

	resizeMu    sync.Mutex
	resizeOwner atomic.Pointer[epoch.Thread]

	invisibleEpoch atomic.Pointer[epoch.Thread]
	counter        *epoch.GlobalCounter

	cfg Config[V]

	log2StartSize int
	log2SizeLimit int
	growHint      int

	sizeLimitReached atomic.Bool
	size             atomic.Int64
}

// New constructs a Table governed by cfg and the given options.
func New[V any](cfg Config[V], opts ...Option) (*Table[V], error) {
	o := defaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log2StartSize < 5 {
		return nil, Errors.New("log2 start size must be at least 5, got %d", o.log2StartSize)
	}
	if o.log2SizeLimit > 30 {
		return nil, Errors.New("log2 size limit must be at most 30, got %d", o.log2SizeLimit)
	}
	if o.log2SizeLimit < o.log2StartSize {
		return nil, Errors.New("log2 size limit %d is below start size %d", o.log2SizeLimit, o.log2StartSize)
	}

	t := &Table[V]{
		cfg:           cfg,
		counter:       epoch.NewGlobalCounter(),
		log2StartSize: o.log2StartSize,
		log2SizeLimit: o.log2SizeLimit,
		growHint:      o.growHint,
	}
	t.tablePtr.Store(newInternalTable[V](o.log2StartSize))
	return t, nil
}

// NewThread registers a new reader/writer handle with the table's
// reclamation primitive. Callers should create one per long-lived
// goroutine and reuse it for every call that goroutine makes.
func (t *Table[V]) NewThread() *epoch.Thread {
	return t.counter.NewThread()
}

// GetSizeLog2 returns the current table size as a power-of-two
// exponent.
func (t *Table[V]) GetSizeLog2(_ *epoch.Thread) int {
	return t.tablePtr.Load().log2
}

// GrowHint returns the chain-length threshold configured via
// WithGrowHint. Callers compare it against the chainLen returned from
// Get/GetCopy/Insert to decide whether to call Grow themselves; the
// table never consults it, or grows automatically, on its own.
func (t *Table[V]) GrowHint() int {
	return t.growHint
}

func (t *Table[V]) enterEpoch(th *epoch.Thread) {
	if t.invisibleEpoch.Load() != nil {
		t.invisibleEpoch.Store(nil)
	}
	t.counter.CriticalSectionBegin(th)
}

func (t *Table[V]) exitEpoch(th *epoch.Thread) {
	t.counter.CriticalSectionEnd(th)
}

// writeSynchronizeOnVisibleEpoch is the single-writer fast path: if no
// reader has observed a version published since the last synchronize
// performed by this same writer, the global synchronize can be skipped
// entirely.
func (t *Table[V]) writeSynchronizeOnVisibleEpoch(th *epoch.Thread) {
	if t.invisibleEpoch.Load() == th {
		return
	}
	t.invisibleEpoch.Store(th)
	t.counter.WriteSynchronize()
}

// newOrCurrentTable resolves the table a redirected bucket's readers
// should continue into. A resize's redirects are only ever set after
// newTablePtr has been published, and newTablePtr is only cleared
// after tablePtr has been published to the finished new table, so
// exactly one of the two always points at the right place.
func (t *Table[V]) newOrCurrentTable() *internalTable[V] {
	if nt := t.newTablePtr.Load(); nt != nil {
		return nt
	}
	return t.tablePtr.Load()
}

// resolveBucket follows redirects until it lands on a bucket in a
// table that does not redirect it further.
func (t *Table[V]) resolveBucket(hash uintptr) *bucket[V] {
	tab := t.tablePtr.Load()
	b := tab.bucketFor(hash)
	for hasRedirect(b.firstRaw()) {
		tab = t.newOrCurrentTable()
		b = tab.bucketFor(hash)
	}
	return b
}

func (t *Table[V]) lockResizeLock(th *epoch.Thread) {
	t.resizeMu.Lock()
	t.resizeOwner.Store(th)
}

func (t *Table[V]) tryResizeLock(th *epoch.Thread) bool {
	if !t.resizeMu.TryLock() {
		return false
	}
	t.resizeOwner.Store(th)
	return true
}

func (t *Table[V]) unlockResizeLock() {
	t.resizeOwner.Store(nil)
	t.invisibleEpoch.Store(nil)
	t.resizeMu.Unlock()
}

// getBucketLocked returns the target bucket for hash, locked. It
// repeatedly opens an epoch section, resolves the bucket, and attempts
// a non-blocking lock; on contention it closes the section and backs
// off before retrying, so it never holds an open epoch section while
// spinning on a lock.
func (t *Table[V]) getBucketLocked(th *epoch.Thread, hash uintptr) *bucket[V] {
	spins := 0
	for {
		t.enterEpoch(th)
		b := t.resolveBucket(hash)
		if b.tryLock() {
			t.exitEpoch(th)
			return b
		}
		t.exitEpoch(th)
		delay(&spins)
	}
}

// Size returns an approximate count of live entries, maintained best-
// effort for diagnostic purposes; it is not consulted by any
// correctness-relevant path.
func (t *Table[V]) Size() int64 {
	return t.size.Load()
}
