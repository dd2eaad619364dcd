package chashtable

import "github.com/zeebo/errs"

// Errors is the error class for every error this package returns.
// Construction misconfiguration is the only recoverable error surface
// the table has; every other failure mode (duplicate insert, missing
// key, contended try-op) is reported through booleans or sentinels,
// not errors, per the table's error-handling design.
var Errors = errs.Class("chashtable")

// Config is the fixed, per-table policy: how to hash a value and what
// sentinel to return from GetCopy on a miss. Hash may also report a
// value as dead (tombstoned): such a value is dropped when Grow splits
// its bucket or TryMoveNodesTo moves it, and UnsafeInsert refuses it.
type Config[V any] interface {
	Hash(value V) (hash uintptr, dead bool)
	NotFound() V
}

// Lookup is the per-call policy supplied to Get/Insert/Remove: the
// hash of the key being searched for, and an equality check against a
// candidate value that may also report that candidate as dead.
type Lookup[V any] interface {
	Hash() uintptr
	Equals(value V) (equal bool, dead bool)
}

// LookupFunc adapts two closures into a Lookup, for callers who would
// rather not declare a named type per key shape.
type LookupFunc[V any] struct {
	HashFunc   func() uintptr
	EqualsFunc func(V) (equal bool, dead bool)
}

func (f LookupFunc[V]) Hash() uintptr { return f.HashFunc() }

func (f LookupFunc[V]) Equals(value V) (bool, bool) { return f.EqualsFunc(value) }
