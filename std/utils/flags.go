package utils

import "sync/atomic"

// Flags is a small atomic bit set indexed by bit position.
type Flags struct {
	bits atomic.Uint32
}

// Test reports whether the given bit is set.
func (f *Flags) Test(bit uint32) bool {
	return f.bits.Load()&(1<<bit) != 0
}

// Set sets the given bit.
func (f *Flags) Set(bit uint32) {
	f.bits.Or(1 << bit)
}

// Clear clears the given bit.
func (f *Flags) Clear(bit uint32) {
	f.bits.And(^uint32(1 << bit))
}

// TestAndSet sets the given bit and reports whether it was already set.
func (f *Flags) TestAndSet(bit uint32) bool {
	return f.bits.Or(1<<bit)&(1<<bit) != 0
}

// TestAndClear clears the given bit and reports whether it was set.
func (f *Flags) TestAndClear(bit uint32) bool {
	return f.bits.And(^uint32(1<<bit))&(1<<bit) != 0
}

// Any reports whether any bit of the given mask is set.
func (f *Flags) Any(mask uint32) bool {
	return f.bits.Load()&mask != 0
}

// Load returns the whole bit set.
func (f *Flags) Load() uint32 {
	return f.bits.Load()
}

// Reset clears every bit.
func (f *Flags) Reset() {
	f.bits.Store(0)
}
