//go:build chtdebug

package chashtable

import "unsafe"

// poisonAddr is an obviously-invalid, non-zero address used only to
// make an accidental dereference of a redirected bucket's stale head
// crash loudly under test, instead of silently reading freed memory.
const poisonAddr = uintptr(0xDEADBEEF) &^ tagMask

// poisonRedirectedBucket overwrites the node-pointer bits of an
// already-redirected, already-emptied bucket head with poisonAddr,
// preserving its LOCK|REDIRECT tag bits so invariant checks over the
// state machine keep seeing exactly what they expect. Only ever called
// once a write-synchronize has established no reader can still be
// resolving this bucket's old chain.
func poisonRedirectedBucket[V any](b *bucket[V]) {
	raw := b.firstRaw()
	tag := uintptr(raw) & tagMask
	storePointer(&b.first, unsafe.Pointer(poisonAddr|tag))
}
