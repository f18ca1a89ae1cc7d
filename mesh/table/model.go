package table

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/meshworks/meshd/std/log"
	"github.com/meshworks/meshd/std/utils"
)

// Per-model dirty marker bits consumed by the settings flush.
const (
	ModBindPending uint32 = iota
	ModSubPending
	ModPubPending
)

// Model is one element-local model instance. Keys holds the bound
// application key indices (KeyUnused when free) and Groups the subscribed
// group addresses (AddrUnassigned when free).
type Model struct {
	ElemIdx uint8
	ModIdx  uint8
	ID      uint16
	Company uint16
	Vendor  bool

	Keys   []uint16
	Groups []uint16
	Pub    *ModelPub

	// dirty markers, set without locking and consumed by the settings flush
	Pending utils.Flags
	// set while opaque model data is on the store
	DataPresent atomic.Bool

	// DataRestore is handed the model's stored opaque data at load time.
	DataRestore func(m *Model, data []byte) error
	// Commit is called once all stored state has been applied at startup.
	Commit func(m *Model)
}

func (m *Model) String() string {
	if m.Vendor {
		return fmt.Sprintf("mesh-vnd-model-%d-%d", m.ElemIdx, m.ModIdx)
	}
	return fmt.Sprintf("mesh-model-%d-%d", m.ElemIdx, m.ModIdx)
}

// ModelPub is the publication state of a model. An unassigned destination
// address means publication is disabled.
type ModelPub struct {
	Addr       uint16
	Key        uint16
	TTL        uint8
	Retransmit uint8
	Period     uint8
	PeriodDiv  uint8
	Cred       bool
	// runtime only, halves the period PeriodDiv times when set
	FastPeriod bool

	// Update refreshes the publication payload before each periodic send.
	Update func(m *Model) error

	work *utils.DelayedWork
}

// PubPeriod returns the publication interval encoded in Period. The top two
// bits select the resolution, the low six bits the step count.
func (p *ModelPub) PubPeriod() time.Duration {
	steps := time.Duration(p.Period & 0x3f)

	var period time.Duration
	switch p.Period >> 6 {
	case 0x00:
		period = 100 * time.Millisecond * steps
	case 0x01:
		period = time.Second * steps
	case 0x02:
		period = 10 * time.Second * steps
	case 0x03:
		period = 10 * time.Minute * steps
	}

	if p.FastPeriod {
		return period >> p.PeriodDiv
	}
	return period
}

// StartPublish arms the periodic publication timer for m. It is a no-op
// unless the destination is assigned, an Update hook is set and the period
// is non-zero.
func (p *ModelPub) StartPublish(m *Model) {
	period := p.PubPeriod()
	if p.Update == nil || p.Addr == AddrUnassigned || period <= 0 {
		return
	}

	log.Debug(m, "Starting publish timer", "period", period)
	if p.work == nil {
		p.work = utils.NewDelayedWork(func() { p.publish(m) })
	}
	p.work.Submit(period)
}

// StopPublish cancels the periodic publication timer.
func (p *ModelPub) StopPublish() {
	if p.work != nil {
		p.work.Cancel()
	}
}

// PublishArmed reports whether the publication timer is running.
func (p *ModelPub) PublishArmed() bool {
	if p.work == nil {
		return false
	}
	_, armed := p.work.Remaining()
	return armed
}

func (p *ModelPub) publish(m *Model) {
	if p.Update != nil {
		if err := p.Update(m); err != nil {
			log.Warn(m, "Publication update failed", "err", err)
		}
	}
	if period := p.PubPeriod(); period > 0 && p.Addr != AddrUnassigned {
		p.work.Submit(period)
	}
}

// ModelTable is the model composition of the node. Models register once at
// startup; lookup is by element index and per-element model index.
type ModelTable struct {
	keyCount   int
	groupCount int
	sig        []*Model
	vnd        []*Model
}

func NewModelTable(keyCount int, groupCount int) *ModelTable {
	return &ModelTable{
		keyCount:   keyCount,
		groupCount: groupCount,
	}
}

// Register adds a model to the composition and returns it. Binding and
// subscription slots are sized from the table configuration when the model
// leaves them nil.
func (mt *ModelTable) Register(m *Model) *Model {
	if m.Keys == nil {
		m.Keys = make([]uint16, mt.keyCount)
		for i := range m.Keys {
			m.Keys[i] = KeyUnused
		}
	}
	if m.Groups == nil {
		m.Groups = make([]uint16, mt.groupCount)
	}

	if m.Vendor {
		mt.vnd = append(mt.vnd, m)
	} else {
		mt.sig = append(mt.sig, m)
	}
	return m
}

// Get returns the model at (elemIdx, modIdx), or nil if none is registered.
func (mt *ModelTable) Get(vendor bool, elemIdx uint8, modIdx uint8) *Model {
	list := mt.sig
	if vendor {
		list = mt.vnd
	}
	for _, m := range list {
		if m.ElemIdx == elemIdx && m.ModIdx == modIdx {
			return m
		}
	}
	return nil
}

// Foreach visits standard models first, then vendor models.
func (mt *ModelTable) Foreach(fn func(*Model)) {
	for _, m := range mt.sig {
		fn(m)
	}
	for _, m := range mt.vnd {
		fn(m)
	}
}

func (mt *ModelTable) Count() int {
	return len(mt.sig) + len(mt.vnd)
}
