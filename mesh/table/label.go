package table

import (
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
)

// Label is one virtual address entry. Ref counts the models referencing the
// label; a zero Ref marks the slot as logically deleted. Changed flags the
// slot for the next settings flush and is atomic so callers can mark it
// without locking.
type Label struct {
	Ref     uint16
	Addr    uint16
	UUID    uuid.UUID
	Changed atomic.Bool
}

// LabelTable is the fixed-capacity virtual address table. Slots are
// addressed by position, which is also the persistence key, so entries must
// never move between slots.
type LabelTable struct {
	labels []*Label
	byUUID map[uint64]*Label
}

func NewLabelTable(capacity int) *LabelTable {
	labels := make([]*Label, capacity)
	for i := range labels {
		labels[i] = &Label{}
	}
	return &LabelTable{
		labels: labels,
		byUUID: make(map[uint64]*Label, capacity),
	}
}

// Get returns the label in the given slot, or nil when out of range.
func (lt *LabelTable) Get(index uint16) *Label {
	if int(index) >= len(lt.labels) {
		return nil
	}
	return lt.labels[index]
}

// Index returns the slot position of lab.
func (lt *LabelTable) Index(lab *Label) uint16 {
	for i, l := range lt.labels {
		if l == lab {
			return uint16(i)
		}
	}
	return 0
}

// FindByUUID returns the live label carrying the given UUID, or nil. The
// UUID is compared in full so hash collisions and reused slots never alias.
func (lt *LabelTable) FindByUUID(id uuid.UUID) *Label {
	lab := lt.byUUID[xxhash.Sum64(id[:])]
	if lab == nil || lab.Ref == 0 || lab.UUID != id {
		return nil
	}
	return lab
}

// Alloc returns the live label for the given UUID, claiming a free slot
// when none exists. Returns nil when the table is full.
func (lt *LabelTable) Alloc(id uuid.UUID) *Label {
	if lab := lt.FindByUUID(id); lab != nil {
		return lab
	}
	for _, lab := range lt.labels {
		if lab.Ref == 0 {
			lab.Addr = AddrUnassigned
			lab.UUID = id
			lt.byUUID[xxhash.Sum64(id[:])] = lab
			return lab
		}
	}
	return nil
}

// Set places a restored label into the given slot and refreshes the UUID
// index. Returns nil when the slot is out of range.
func (lt *LabelTable) Set(index uint16, ref uint16, addr uint16, id uuid.UUID) *Label {
	lab := lt.Get(index)
	if lab == nil {
		return nil
	}
	lab.Ref = ref
	lab.Addr = addr
	lab.UUID = id
	lab.Changed.Store(false)
	lt.byUUID[xxhash.Sum64(id[:])] = lab
	return lab
}

// Foreach visits every slot, deleted ones included, in slot order.
func (lt *LabelTable) Foreach(fn func(index uint16, lab *Label)) {
	for i, lab := range lt.labels {
		fn(uint16(i), lab)
	}
}

func (lt *LabelTable) Count() int {
	count := 0
	for _, lab := range lt.labels {
		if lab.Ref > 0 {
			count++
		}
	}
	return count
}
