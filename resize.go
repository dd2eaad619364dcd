package chashtable

import (
	"github.com/llxisdsh/chashtable/internal/epoch"
)

// Grow doubles the table size if it is below log2Target and below the
// configured size limit. It takes the resize lock for its entire
// duration, so it serializes against any other Grow, Shrink, bulk
// delete, scan, or TryMoveNodesTo.
func (t *Table[V]) Grow(th *epoch.Thread, log2Target int) bool {
	t.lockResizeLock(th)
	defer t.unlockResizeLock()

	cur := t.tablePtr.Load()
	if cur.log2 >= log2Target || t.sizeLimitReached.Load() {
		return false
	}
	newLog2 := cur.log2 + 1
	if newLog2 > t.log2SizeLimit {
		return false
	}

	newTab := newInternalTable[V](newLog2)
	t.newTablePtr.Store(newTab)
	if newLog2 == t.log2SizeLimit {
		t.sizeLimitReached.Store(true)
	}

	oldSize := len(cur.buckets)
	for i := 0; i < oldSize; i++ {
		oldB := &cur.buckets[i]
		oldB.lock()

		evenB := &newTab.buckets[i]
		oddB := &newTab.buckets[i+oldSize]

		// Copy the entire head cell, LOCK bit included: both new
		// buckets start out logically locked and sharing the old
		// bucket's chain.
		raw := oldB.firstRaw()
		storePointer(&evenB.first, raw)
		storePointer(&oddB.first, raw)

		// From this point a reader arriving at oldB sees REDIRECT and
		// retries in newTab, where it finds the same chain until the
		// unzip below splits it. oldB is never unlocked again.
		oldB.redirect()

		empty := t.unzipBucket(th, i, oldSize, evenB, oddB, newTab)
		if empty {
			// Unzip was a no-op; still owe one synchronize before it
			// is safe to poison the now-dead old bucket head.
			t.writeSynchronizeOnVisibleEpoch(th)
			poisonRedirectedBucket(oldB)
		}

		evenB.unlock()
		oddB.unlock()
	}

	t.tablePtr.Store(newTab)
	t.counter.WriteSynchronize()
	t.newTablePtr.Store(nil)
	return true
}

// unzipBucket splits the chain shared by evenB and oddB (copied in from
// old bucket i of a table half newTab's size) into the two chains each
// bucket owns independently in the doubled table.
func (t *Table[V]) unzipBucket(th *epoch.Thread, i, oldSize int, evenB, oddB *bucket[V], newTab *internalTable[V]) bool {
	aux := untagNode[V](evenB.firstRaw())
	empty := aux == nil
	evenDst := &evenB.first
	oddDst := &oddB.first

	for aux != nil {
		h, dead := t.cfg.Hash(aux.value)
		next := aux.loadNext()

		switch {
		case dead:
			assignHeadPreservingTag(evenDst, next)
			assignHeadPreservingTag(oddDst, next)
		case h&newTab.mask == uintptr(i):
			// Stays even: drop it from the odd chain, advance the
			// even cursor onto it so it stays linked.
			assignHeadPreservingTag(oddDst, next)
			evenDst = &aux.next
		default:
			assignHeadPreservingTag(evenDst, next)
			oddDst = &aux.next
		}

		// A reader walking via one sibling must never be redirected
		// into the other mid-walk; wait out every reader that could
		// have been looking at the pre-split shared chain before
		// advancing to the next node.
		t.writeSynchronizeOnVisibleEpoch(th)

		aux = next
	}
	return empty
}

// Shrink halves the table size if it is above log2Target and above the
// configured start size.
func (t *Table[V]) Shrink(th *epoch.Thread, log2Target int) bool {
	t.lockResizeLock(th)
	defer t.unlockResizeLock()

	cur := t.tablePtr.Load()
	if cur.log2 <= t.log2StartSize || cur.log2 <= log2Target {
		return false
	}
	newLog2 := cur.log2 - 1
	if newLog2 < t.log2StartSize {
		return false
	}

	newTab := newInternalTable[V](newLog2)
	t.newTablePtr.Store(newTab)

	newSize := len(newTab.buckets)
	for j := 0; j < newSize; j++ {
		evenSrc := &cur.buckets[j]
		oddSrc := &cur.buckets[j+newSize]
		dst := &newTab.buckets[j]

		dst.lock()
		evenSrc.lock()
		oddSrc.lock()

		evenHead := untagNode[V](evenSrc.firstRaw())
		assignHeadPreservingTag(&dst.first, evenHead)

		oddHead := untagNode[V](oddSrc.firstRaw())
		if evenHead == nil {
			assignHeadPreservingTag(&dst.first, oddHead)
		} else {
			tail := evenHead
			for {
				n := tail.loadNext()
				if n == nil {
					break
				}
				tail = n
			}
			assignHeadPreservingTag(&tail.next, oddHead)
		}

		evenSrc.redirect()
		oddSrc.redirect()

		t.writeSynchronizeOnVisibleEpoch(th)

		dst.unlock()
	}

	t.tablePtr.Store(newTab)
	t.counter.WriteSynchronize()
	t.newTablePtr.Store(nil)
	t.sizeLimitReached.Store(false)
	return true
}
