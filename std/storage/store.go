// Package storage provides the key-value store consumed by the mesh
// settings engine, with persistent and in-memory backends.
package storage

// Store is the backend contract for settings records.
//
// Keys are short path-like strings. The store behaves like an append log
// with last-write-wins semantics per key; backends may buffer writes until
// Flush is called.
type Store interface {
	// Update writes value under key. A nil or empty value deletes the key.
	Update(key string, value []byte) error

	// Iterate visits the current value of every live key exactly once.
	// The visiting order is arbitrary but stable within one scan. A
	// non-nil error from fn aborts the scan and is returned as is.
	Iterate(fn func(key string, value []byte) error) error

	// EraseAll removes every key.
	EraseAll() error

	// Flush commits buffered writes to stable media.
	Flush() error

	// Close releases the backend. The store must not be used afterwards.
	Close() error
}
