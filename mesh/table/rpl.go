package table

import "sync/atomic"

// ReplayEntry tracks the latest sequence number seen from one source
// address. Store marks the entry dirty for the next settings flush; it is
// atomic so receive handlers can mark entries without locking.
type ReplayEntry struct {
	Src   uint16
	Seq   uint32
	OldIV bool
	Store atomic.Bool
}

// Reset returns the entry to the free state.
func (e *ReplayEntry) Reset() {
	e.Src = AddrUnassigned
	e.Seq = 0
	e.OldIV = false
	e.Store.Store(false)
}

// ReplayTable is the fixed-capacity replay protection list. A zero source
// address marks a free slot, which is safe because the unassigned address
// is not a valid message source.
type ReplayTable struct {
	entries []*ReplayEntry
}

func NewReplayTable(capacity int) *ReplayTable {
	entries := make([]*ReplayEntry, capacity)
	for i := range entries {
		entries[i] = &ReplayEntry{}
	}
	return &ReplayTable{entries: entries}
}

// Find returns the entry for the given source address, or nil.
func (rt *ReplayTable) Find(src uint16) *ReplayEntry {
	for _, e := range rt.entries {
		if e.Src == src {
			return e
		}
	}
	return nil
}

// Alloc returns the entry for the given source address, claiming a free
// slot when none exists. Returns nil for the unassigned address or when
// the table is full.
func (rt *ReplayTable) Alloc(src uint16) *ReplayEntry {
	if src == AddrUnassigned {
		return nil
	}
	if e := rt.Find(src); e != nil {
		return e
	}
	for _, e := range rt.entries {
		if e.Src == AddrUnassigned {
			e.Reset()
			e.Src = src
			return e
		}
	}
	return nil
}

// Clear resets every entry to the free state.
func (rt *ReplayTable) Clear() {
	for _, e := range rt.entries {
		e.Reset()
	}
}

// Foreach visits every slot, free ones included, in table order.
func (rt *ReplayTable) Foreach(fn func(*ReplayEntry)) {
	for _, e := range rt.entries {
		fn(e)
	}
}

func (rt *ReplayTable) Count() int {
	count := 0
	for _, e := range rt.entries {
		if e.Src != AddrUnassigned {
			count++
		}
	}
	return count
}
