// Package striped implements the per-key mutual exclusion and the
// concurrent keyholder table described in spec.md §4.2: a fixed-width
// array of mutexes indexed by a hash of the key, and a concurrent hash map
// from (region, key) to *keyholder.Keyholder.
//
// The two are kept in one package because every keyholder table operation
// that mutates a Keyholder's queues must be performed under that key's
// stripe lock (spec.md §5 "Locking discipline") - a Table carries its
// Locks, and callers take Table.Locks.Hold(region, key) before touching a
// keyholder that Lookup or GetOrCreate returns.
package striped
