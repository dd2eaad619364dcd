package chashtable

import "github.com/llxisdsh/chashtable/internal/epoch"

// scanLocked walks every bucket of the current table, calling visit
// once per live value. It is only ever called with the resize lock
// held, so the table being walked cannot change shape underneath it;
// each bucket is still visited inside its own short epoch section
// rather than one section spanning the whole table.
func (t *Table[V]) scanLocked(th *epoch.Thread, visit func(V) bool) {
	tab := t.tablePtr.Load()
	for i := range tab.buckets {
		b := &tab.buckets[i]
		t.enterEpoch(th)
		keepGoing := true
		for n := untagNode[V](b.firstRaw()); n != nil; n = n.loadNext() {
			if !visit(n.value) {
				keepGoing = false
				break
			}
		}
		t.exitEpoch(th)
		if !keepGoing {
			return
		}
	}
}

// TryScan visits every value in the table, stopping early if visit
// returns false. It reports false immediately, without visiting
// anything, if the resize lock is already held elsewhere.
func (t *Table[V]) TryScan(th *epoch.Thread, visit func(V) bool) bool {
	if !t.tryResizeLock(th) {
		return false
	}
	defer t.unlockResizeLock()
	t.scanLocked(th, visit)
	return true
}

// DoScan is TryScan's blocking counterpart.
func (t *Table[V]) DoScan(th *epoch.Thread, visit func(V) bool) {
	t.lockResizeLock(th)
	defer t.unlockResizeLock()
	t.scanLocked(th, visit)
}

// bulkDeleteLocked implements the per-bucket probe/lock/unlink/sync
// sequence. It is only ever called with the resize lock held, so for
// its whole duration this goroutine is the sole writer and the
// invisible-epoch optimization is always sound to attempt, the way it
// is for the per-step synchronizes in Grow/Shrink.
func (t *Table[V]) bulkDeleteLocked(th *epoch.Thread, eval func(V) bool, del func(V)) {
	tab := t.tablePtr.Load()
	for i := range tab.buckets {
		b := &tab.buckets[i]

		// Cheap probe: is there anything worth locking the bucket for?
		// Walking the chain under a read-only epoch section, loading
		// the next bucket's head up front and the next node before
		// acting on the current one, is the closest portable stand-in
		// for a hardware prefetch of both.
		t.enterEpoch(th)
		if i+1 < len(tab.buckets) {
			_ = tab.buckets[i+1].firstRaw()
		}
		deletable := false
		for n := untagNode[V](b.firstRaw()); n != nil; {
			next := n.loadNext()
			if eval(n.value) {
				deletable = true
				break
			}
			n = next
		}
		t.exitEpoch(th)
		if !deletable {
			continue
		}

		b.lock()
		var removed []V
		prevPtr := &b.first
		n := untagNode[V](b.firstRaw())
		for n != nil && len(removed) < bulkDeleteLimit {
			next := n.loadNext()
			if eval(n.value) {
				assignHeadPreservingTag(prevPtr, next)
				removed = append(removed, n.value)
			} else {
				prevPtr = &n.next
			}
			n = next
		}
		b.unlock()

		if len(removed) == 0 {
			continue
		}
		t.size.Add(-int64(len(removed)))
		t.writeSynchronizeOnVisibleEpoch(th)
		for _, v := range removed {
			if del != nil {
				del(v)
			}
		}
	}
}

// TryBulkDelete removes values for which eval reports true, invoking
// del once per removed value only after establishing that no reader
// can still observe it. Each bucket gets one locked pass that removes
// at most bulkDeleteLimit values; further matches in that bucket stay
// in the table. It reports false immediately if the resize lock is
// already held elsewhere.
func (t *Table[V]) TryBulkDelete(th *epoch.Thread, eval func(V) bool, del func(V)) bool {
	if !t.tryResizeLock(th) {
		return false
	}
	defer t.unlockResizeLock()
	t.bulkDeleteLocked(th, eval, del)
	return true
}

// BulkDelete is TryBulkDelete's blocking counterpart.
func (t *Table[V]) BulkDelete(th *epoch.Thread, eval func(V) bool, del func(V)) {
	t.lockResizeLock(th)
	defer t.unlockResizeLock()
	t.bulkDeleteLocked(th, eval, del)
}

// UnsafeInsert is a single-threaded fast path: no bucket lock, no
// epoch section. The caller must guarantee no other goroutine is
// touching the table concurrently.
func (t *Table[V]) UnsafeInsert(value V) bool {
	hash, dead := t.cfg.Hash(value)
	if dead {
		return false
	}
	tab := t.tablePtr.Load()
	b := tab.bucketFor(hash)
	n := &node[V]{value: value}
	for {
		first := untagNode[V](b.firstRaw())
		n.storeNext(first)
		if b.casFirst(n, first) {
			t.size.Add(1)
			return true
		}
	}
}

// TryMoveNodesTo takes this table's resize lock and moves every node
// into other, recomputing each value's hash against other's current
// table and dropping any value now reported dead. It reports false
// immediately if this table's resize lock is already held elsewhere.
// Callers must ensure other is quiescent for the duration of the call.
func (t *Table[V]) TryMoveNodesTo(th *epoch.Thread, other *Table[V]) bool {
	if !t.tryResizeLock(th) {
		return false
	}
	defer t.unlockResizeLock()

	tab := t.tablePtr.Load()
	for i := range tab.buckets {
		b := &tab.buckets[i]
		for {
			first := untagNode[V](b.firstRaw())
			if first == nil {
				break
			}
			next := first.loadNext()
			if !b.casFirst(next, first) {
				continue
			}
			t.size.Add(-1)

			hash, dead := other.cfg.Hash(first.value)
			if dead {
				continue
			}
			dstTab := other.tablePtr.Load()
			dstB := dstTab.bucketFor(hash)
			for {
				dstFirst := untagNode[V](dstB.firstRaw())
				first.storeNext(dstFirst)
				if dstB.casFirst(first, dstFirst) {
					other.size.Add(1)
					break
				}
			}
		}
	}
	return true
}
