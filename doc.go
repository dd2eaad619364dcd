// Package chashtable implements a concurrent, resizable, open-chaining
// hash table. Readers never block: point lookups run inside short
// epoch-guarded sections and never take a lock. Table-wide scans hold
// the resize lock and visit each bucket inside its own short epoch
// section.
// Single-key writers take only the lock on the bucket they are
// touching. Whole-table operations — Grow, Shrink, BulkDelete, scan —
// coexist with concurrent point operations by rerouting readers
// through a redirect bit carried in each bucket's head pointer, rather
// than by blocking them.
//
// Memory reclamation is epoch-based (see internal/epoch): a node
// unlinked from a chain is not handed to the garbage collector's usual
// path until a global write-synchronize establishes that no reader
// could still be holding a reference obtained before the unlink.
package chashtable
