package chashtable

import (
	"fmt"
	"sync"
	"testing"
)

type entry struct {
	key int
	val int
}

type entryConfig struct{}

func (entryConfig) Hash(v entry) (uintptr, bool) { return uintptr(v.key), false }
func (entryConfig) NotFound() entry              { return entry{key: -1} }

type keyLookup struct{ key int }

func (l keyLookup) Hash() uintptr { return uintptr(l.key) }

func (l keyLookup) Equals(v entry) (bool, bool) { return v.key == l.key, false }

func newTestTable(t *testing.T, opts ...Option) *Table[entry] {
	t.Helper()
	tbl, err := New[entry](entryConfig{}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tbl
}

func TestNewRejectsBadSizes(t *testing.T) {
	if _, err := New[entry](entryConfig{}, WithLog2StartSize(4)); err == nil {
		t.Fatal("expected an error for a start size below 5")
	}
	if _, err := New[entry](entryConfig{}, WithLog2SizeLimit(31)); err == nil {
		t.Fatal("expected an error for a size limit above 30")
	}
	if _, err := New[entry](entryConfig{}, WithLog2StartSize(10), WithLog2SizeLimit(9)); err == nil {
		t.Fatal("expected an error when the size limit is below the start size")
	}
}

func TestSmokeGrowShrink(t *testing.T) {
	tbl := newTestTable(t, WithLog2StartSize(5), WithLog2SizeLimit(10))
	th := tbl.NewThread()

	const n = 1000
	for i := 0; i < n; i++ {
		key := i
		inserted, _ := tbl.Insert(th, keyLookup{key}, func() entry {
			return entry{key: key, val: key * 2}
		}, nil)
		if !inserted {
			t.Fatalf("insert %d: unexpected duplicate", i)
		}
	}

	if got := tbl.GetSizeLog2(th); got != 5 {
		t.Fatalf("size log2 = %d, want 5", got)
	}

	for tbl.GetSizeLog2(th) < 10 {
		if !tbl.Grow(th, 10) {
			t.Fatalf("grow step failed before reaching log2=10 (at %d)", tbl.GetSizeLog2(th))
		}
	}
	if got := tbl.GetSizeLog2(th); got != 10 {
		t.Fatalf("size log2 = %d, want 10", got)
	}

	for i := 0; i < n; i++ {
		v, _ := tbl.GetCopy(th, keyLookup{i})
		if v.key != i || v.val != i*2 {
			t.Fatalf("key %d missing or wrong after grow: %+v", i, v)
		}
	}

	for tbl.GetSizeLog2(th) > 5 {
		if !tbl.Shrink(th, 5) {
			t.Fatalf("shrink step failed before reaching log2=5 (at %d)", tbl.GetSizeLog2(th))
		}
	}
	if got := tbl.GetSizeLog2(th); got != 5 {
		t.Fatalf("size log2 = %d, want 5", got)
	}

	for i := 0; i < n; i++ {
		v, _ := tbl.GetCopy(th, keyLookup{i})
		if v.key != i || v.val != i*2 {
			t.Fatalf("key %d missing or wrong after shrink: %+v", i, v)
		}
	}
}

func TestGrowRefusedAtLimit(t *testing.T) {
	tbl := newTestTable(t, WithLog2StartSize(5), WithLog2SizeLimit(5))
	th := tbl.NewThread()
	if tbl.Grow(th, 6) {
		t.Fatal("grow should be refused once the size limit is reached")
	}
}

func TestShrinkRefusedAtStartSize(t *testing.T) {
	tbl := newTestTable(t, WithLog2StartSize(5), WithLog2SizeLimit(10))
	th := tbl.NewThread()
	if tbl.Shrink(th, 4) {
		t.Fatal("shrink should be refused at the configured start size")
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	tbl := newTestTable(t)
	th := tbl.NewThread()

	insert := func(key, val int) (bool, entry) {
		var result entry
		var ok bool
		tbl.Insert(th, keyLookup{key}, func() entry { return entry{key: key, val: val} },
			func(inserted bool, v entry) { ok = inserted; result = v })
		return ok, result
	}

	ok, v := insert(1, 100)
	if !ok || v.val != 100 {
		t.Fatalf("first insert: ok=%v v=%+v", ok, v)
	}
	ok, v = insert(1, 200)
	if ok {
		t.Fatal("second insert of the same key should report inserted=false")
	}
	if v.val != 100 {
		t.Fatalf("duplicate callback should report the existing value, got %+v", v)
	}
}

func TestRemoveThenGetMisses(t *testing.T) {
	tbl := newTestTable(t)
	th := tbl.NewThread()

	tbl.Insert(th, keyLookup{7}, func() entry { return entry{key: 7, val: 70} }, nil)
	if found, _ := tbl.Get(th, keyLookup{7}, nil); !found {
		t.Fatal("key should be present after insert")
	}

	var deleted entry
	if !tbl.Remove(th, keyLookup{7}, func(v entry) { deleted = v }) {
		t.Fatal("remove should report success")
	}
	if deleted.val != 70 {
		t.Fatalf("delete callback value = %+v", deleted)
	}

	if found, _ := tbl.Get(th, keyLookup{7}, nil); found {
		t.Fatal("key should be gone after remove")
	}
	if tbl.Remove(th, keyLookup{7}, nil) {
		t.Fatal("removing an already-removed key should report false")
	}
}

func TestConcurrentDuplicateInsert(t *testing.T) {
	tbl := newTestTable(t)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := tbl.NewThread()
			ok, _ := tbl.Insert(th, keyLookup{42}, func() entry { return entry{key: 42, val: 1} }, nil)
			results[i] = ok
		}()
	}
	wg.Wait()

	insertedCount := 0
	for _, ok := range results {
		if ok {
			insertedCount++
		}
	}
	if insertedCount != 1 {
		t.Fatalf("exactly one insert should succeed, got %d", insertedCount)
	}

	th := tbl.NewThread()
	n := 0
	tbl.TryScan(th, func(v entry) bool {
		if v.key == 42 {
			n++
		}
		return true
	})
	if n != 1 {
		t.Fatalf("expected exactly one node for the key, found %d", n)
	}
}

func TestConcurrentGrowWithReaders(t *testing.T) {
	tbl := newTestTable(t, WithLog2StartSize(16), WithLog2SizeLimit(20))
	writerTh := tbl.NewThread()

	const keys = 20000
	for i := 0; i < keys; i++ {
		key := i
		tbl.Insert(writerTh, keyLookup{key}, func() entry { return entry{key: key, val: key} }, nil)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := tbl.NewThread()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < keys; i += 97 {
					v, _ := tbl.GetCopy(th, keyLookup{i})
					if v.key != i {
						select {
						case errs <- fmt.Errorf("reader observed missing key %d during grow", i):
						default:
						}
						return
					}
				}
			}
		}()
	}

	for tbl.GetSizeLog2(writerTh) < 20 {
		tbl.Grow(writerTh, 20)
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}

func TestBulkDeleteEvenOdd(t *testing.T) {
	tbl := newTestTable(t, WithLog2StartSize(8), WithLog2SizeLimit(15))
	th := tbl.NewThread()

	const n = 10000
	for i := 0; i < n; i++ {
		key := i
		tbl.Insert(th, keyLookup{key}, func() entry { return entry{key: key, val: key} }, nil)
	}

	deletedCount := 0
	tbl.BulkDelete(th, func(v entry) bool { return v.val%2 == 0 }, func(entry) { deletedCount++ })

	if deletedCount != n/2 {
		t.Fatalf("deleted %d nodes, want %d", deletedCount, n/2)
	}

	for i := 0; i < n; i++ {
		found, _ := tbl.Get(th, keyLookup{i}, nil)
		wantFound := i%2 != 0
		if found != wantFound {
			t.Fatalf("key %d: found=%v, want %v", i, found, wantFound)
		}
	}
}

func TestTryMoveNodesTo(t *testing.T) {
	a := newTestTable(t, WithLog2StartSize(8), WithLog2SizeLimit(15))
	b := newTestTable(t, WithLog2StartSize(8), WithLog2SizeLimit(15))
	th := a.NewThread()

	const n = 500
	for i := 0; i < n; i++ {
		key := i
		a.Insert(th, keyLookup{key}, func() entry { return entry{key: key, val: key} }, nil)
	}

	if !a.TryMoveNodesTo(th, b) {
		t.Fatal("TryMoveNodesTo should succeed on a quiescent source")
	}

	count := 0
	a.TryScan(th, func(entry) bool { count++; return true })
	if count != 0 {
		t.Fatalf("source table should be empty after the move, found %d entries", count)
	}

	count = 0
	b.TryScan(th, func(entry) bool { count++; return true })
	if count != n {
		t.Fatalf("destination table should contain %d entries, found %d", n, count)
	}
	for i := 0; i < n; i++ {
		found, _ := b.Get(th, keyLookup{i}, nil)
		if !found {
			t.Fatalf("destination table missing key %d", i)
		}
	}
}
