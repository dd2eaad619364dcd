package chashtable

import (
	"github.com/llxisdsh/chashtable/internal/epoch"
)

// bulkDeleteLimit bounds how many nodes a single locked pass (cleaning,
// or one step of a table-wide bulk delete) unlinks before releasing the
// bucket lock, so a single bucket with a pathologically long dead
// chain cannot starve other writers.
const bulkDeleteLimit = 256

// Get looks up lookup.Hash()'s bucket and runs onFound against the
// first value for which lookup.Equals reports a match. It reports the
// length of the chain walked, which callers can compare against their
// own grow-hint threshold.
func (t *Table[V]) Get(th *epoch.Thread, lookup Lookup[V], onFound func(V)) (found bool, chainLen int) {
	t.enterEpoch(th)
	defer t.exitEpoch(th)

	b := t.resolveBucket(lookup.Hash())
	n := untagNode[V](b.firstRaw())
	for n != nil {
		chainLen++
		if eq, _ := lookup.Equals(n.value); eq {
			if onFound != nil {
				onFound(n.value)
			}
			return true, chainLen
		}
		n = n.loadNext()
	}
	return false, chainLen
}

// GetCopy is Get, returning a copy of the value (or the configured
// not-found sentinel) instead of invoking a callback.
func (t *Table[V]) GetCopy(th *epoch.Thread, lookup Lookup[V]) (V, int) {
	var out V
	found, chainLen := t.Get(th, lookup, func(v V) { out = v })
	if !found {
		return t.cfg.NotFound(), chainLen
	}
	return out, chainLen
}

// Insert inserts the value produced by produce() unless a value
// already matches lookup, in which case onResult is called with
// (false, existingValue) and no insertion happens. On a successful
// insertion onResult is called with (true, newValue).
//
// The fast path is a single CAS at the bucket head; it only escalates
// to a locked cleaning pass when the fast path succeeded on its very
// first attempt and that attempt also observed a dead node along the
// way — a retried attempt never triggers cleaning, since by then the
// chain it walked is stale.
func (t *Table[V]) Insert(th *epoch.Thread, lookup Lookup[V], produce func() V, onResult func(inserted bool, value V)) (inserted bool, chainLen int) {
	var newNode *node[V]
	hash := lookup.Hash()
	spins := 0

	for attempt := 0; ; attempt++ {
		t.enterEpoch(th)
		b := t.resolveBucket(hash)
		firstRaw := b.firstRaw()
		firstAtStart := untagNode[V](firstRaw)

		n := firstAtStart
		length := 0
		var dupValue V
		dup := false
		sawDead := false
		for n != nil {
			length++
			eq, dead := lookup.Equals(n.value)
			if dead {
				sawDead = true
			}
			if eq {
				dup = true
				dupValue = n.value
				break
			}
			n = n.loadNext()
		}

		if dup {
			t.exitEpoch(th)
			if onResult != nil {
				onResult(false, dupValue)
			}
			return false, length
		}

		if newNode == nil {
			newNode = &node[V]{}
		}
		newNode.value = produce()
		newNode.storeNext(firstAtStart)

		ok := b.casFirst(newNode, firstAtStart)
		t.exitEpoch(th)

		if ok {
			t.size.Add(1)
			if onResult != nil {
				onResult(true, newNode.value)
			}
			if attempt == 0 && sawDead {
				t.cleanBucketAt(th, hash, func(v V) bool {
					_, dead := lookup.Equals(v)
					return dead
				})
			}
			return true, length
		}

		// Lost the CAS race, either to a contending writer that holds
		// the lock or to another fast insert at the same head. Yield
		// immediately if the bucket is locked; otherwise back off with
		// a short pause before re-reading the bucket from scratch.
		if isLocked(firstRaw) {
			spins = spinPausesPerYield
		}
		delay(&spins)
	}
}

// Remove removes the first value matching lookup. If a value was
// removed, onDelete is invoked with it only after a global write-
// synchronize has established that no reader can still be looking at
// it.
func (t *Table[V]) Remove(th *epoch.Thread, lookup Lookup[V], onDelete func(V)) bool {
	b := t.getBucketLocked(th, lookup.Hash())

	var removed *node[V]
	prevPtr := &b.first
	n := untagNode[V](b.firstRaw())
	for n != nil {
		next := n.loadNext()
		if eq, _ := lookup.Equals(n.value); eq {
			assignHeadPreservingTag(prevPtr, next)
			removed = n
			break
		}
		prevPtr = &n.next
		n = next
	}
	b.unlock()

	if removed == nil {
		return false
	}
	t.size.Add(-1)
	// Remove cannot assume it is the resize-lock owner, so it always
	// pays the full global synchronize rather than the invisible-epoch
	// fast path.
	t.counter.WriteSynchronize()
	if onDelete != nil {
		onDelete(removed.value)
	}
	return true
}

// cleanBucketAt locks the bucket for hash, unlinks up to
// bulkDeleteLimit nodes for which isDead reports true, and releases
// the lock before synchronizing — an opportunistic pass amortized over
// a prior fast insert, not user-visible deletion.
func (t *Table[V]) cleanBucketAt(th *epoch.Thread, hash uintptr, isDead func(V) bool) {
	b := t.getBucketLocked(th, hash)

	removed := 0
	prevPtr := &b.first
	n := untagNode[V](b.firstRaw())
	for n != nil && removed < bulkDeleteLimit {
		next := n.loadNext()
		if isDead(n.value) {
			assignHeadPreservingTag(prevPtr, next)
			removed++
		} else {
			prevPtr = &n.next
		}
		n = next
	}
	b.unlock()

	if removed == 0 {
		return
	}
	t.size.Add(int64(-removed))
	// Insert-cleaning cannot assume it is the resize-lock owner either,
	// so like Remove it always pays the full global synchronize.
	t.counter.WriteSynchronize()
}
