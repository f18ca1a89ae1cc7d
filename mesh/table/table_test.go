package table_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meshworks/meshd/mesh/table"
	"github.com/stretchr/testify/require"
)

func TestSubnetTable(t *testing.T) {
	st := table.NewSubnetTable(2)
	require.Equal(t, 0, st.Count())
	require.Nil(t, st.Get(0x000))
	require.Nil(t, st.Primary())

	sub := st.Alloc(0x000)
	require.NotNil(t, sub)
	require.Equal(t, uint16(0x000), sub.NetIdx)
	require.Same(t, sub, st.Get(0x000))
	require.Same(t, sub, st.Alloc(0x000))
	require.Same(t, sub, st.Primary())

	other := st.Alloc(0x123)
	require.NotNil(t, other)
	require.Equal(t, 2, st.Count())

	// table full
	require.Nil(t, st.Alloc(0x456))

	// explicit delete frees the slot for reuse
	st.Delete(0x000)
	require.Nil(t, st.Get(0x000))
	require.Equal(t, 1, st.Count())
	require.Nil(t, st.Primary())
	require.NotNil(t, st.Alloc(0x456))

	seen := []uint16{}
	st.Foreach(func(s *table.Subnet) { seen = append(seen, s.NetIdx) })
	require.Equal(t, []uint16{0x456, 0x123}, seen)
}

func TestAppKeyTable(t *testing.T) {
	at := table.NewAppKeyTable(2)
	require.Nil(t, at.Find(0x001))

	key := at.Alloc(0x001)
	require.NotNil(t, key)
	require.Equal(t, uint16(0x001), key.AppIdx)

	// slot is only claimed once the caller binds the owning subnet
	require.Nil(t, at.Find(0x001))
	key.NetIdx = 0x000
	require.Same(t, key, at.Find(0x001))
	require.Same(t, key, at.Alloc(0x001))

	second := at.Alloc(0x002)
	require.NotNil(t, second)
	second.NetIdx = 0x000
	require.Equal(t, 2, at.Count())
	require.Nil(t, at.Alloc(0x003))

	at.Delete(0x001)
	require.Nil(t, at.Find(0x001))
	require.Equal(t, 1, at.Count())
}

func TestReplayTable(t *testing.T) {
	rt := table.NewReplayTable(3)
	require.Nil(t, rt.Find(0x0001))

	// the unassigned address marks free slots and is never a valid source
	require.Nil(t, rt.Alloc(table.AddrUnassigned))

	rpl := rt.Alloc(0x0001)
	require.NotNil(t, rpl)
	rpl.Seq = 100
	require.Same(t, rpl, rt.Find(0x0001))
	require.Same(t, rpl, rt.Alloc(0x0001))

	require.NotNil(t, rt.Alloc(0x0002))
	require.NotNil(t, rt.Alloc(0x0003))
	require.Nil(t, rt.Alloc(0x0004))
	require.Equal(t, 3, rt.Count())

	slots := 0
	rt.Foreach(func(*table.ReplayEntry) { slots++ })
	require.Equal(t, 3, slots)

	rt.Clear()
	require.Equal(t, 0, rt.Count())
	require.Nil(t, rt.Find(0x0001))

	// cleared slots are allocatable again
	fresh := rt.Alloc(0x0009)
	require.NotNil(t, fresh)
	require.Equal(t, uint32(0), fresh.Seq)
	require.False(t, fresh.Store.Load())
}

func TestModelTable(t *testing.T) {
	mt := table.NewModelTable(2, 3)

	sig := mt.Register(&table.Model{ElemIdx: 0, ModIdx: 0, ID: 0x0000})
	vnd := mt.Register(&table.Model{ElemIdx: 0, ModIdx: 0, ID: 0x0001, Company: 0x05f1, Vendor: true})
	require.Equal(t, 2, mt.Count())

	// slots sized from the table configuration
	require.Equal(t, []uint16{table.KeyUnused, table.KeyUnused}, sig.Keys)
	require.Equal(t, []uint16{0, 0, 0}, sig.Groups)

	require.Same(t, sig, mt.Get(false, 0, 0))
	require.Same(t, vnd, mt.Get(true, 0, 0))
	require.Nil(t, mt.Get(false, 1, 0))

	// standard models visit before vendor models
	order := []*table.Model{}
	mt.Foreach(func(m *table.Model) { order = append(order, m) })
	require.Equal(t, []*table.Model{sig, vnd}, order)
}

func TestPubPeriod(t *testing.T) {
	pub := &table.ModelPub{}

	pub.Period = 0x00
	require.Equal(t, time.Duration(0), pub.PubPeriod())
	pub.Period = 0x21 // 33 steps of 100ms
	require.Equal(t, 3300*time.Millisecond, pub.PubPeriod())
	pub.Period = 0x41 // 1 step of 1s
	require.Equal(t, time.Second, pub.PubPeriod())
	pub.Period = 0x82 // 2 steps of 10s
	require.Equal(t, 20*time.Second, pub.PubPeriod())
	pub.Period = 0xc1 // 1 step of 10min
	require.Equal(t, 10*time.Minute, pub.PubPeriod())

	pub.Period = 0x44 // 4s
	pub.PeriodDiv = 2
	require.Equal(t, 4*time.Second, pub.PubPeriod())
	pub.FastPeriod = true
	require.Equal(t, time.Second, pub.PubPeriod())
}

func TestModelPublish(t *testing.T) {
	mod := &table.Model{}
	pub := &table.ModelPub{Period: 0x41}
	mod.Pub = pub

	// no update hook
	pub.StartPublish(mod)
	require.False(t, pub.PublishArmed())

	pub.Update = func(*table.Model) error { return nil }
	pub.StartPublish(mod)
	require.False(t, pub.PublishArmed()) // still unassigned

	pub.Addr = 0xc000
	pub.StartPublish(mod)
	require.True(t, pub.PublishArmed())

	pub.StopPublish()
	require.False(t, pub.PublishArmed())
}

func TestLabelTable(t *testing.T) {
	lt := table.NewLabelTable(2)
	id := uuid.MustParse("f0debc9a-7856-3412-f0de-bc9a78563412")

	lab := lt.Alloc(id)
	require.NotNil(t, lab)
	require.Equal(t, uint16(0), lt.Index(lab))

	// a zero ref count means logically deleted
	require.Nil(t, lt.FindByUUID(id))
	lab.Ref = 1
	lab.Addr = 0xb52a
	require.Same(t, lab, lt.FindByUUID(id))
	require.Same(t, lab, lt.Alloc(id))
	require.Equal(t, 1, lt.Count())

	other := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	second := lt.Alloc(other)
	require.NotNil(t, second)
	second.Ref = 2
	require.Equal(t, uint16(1), lt.Index(second))

	full := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	require.Nil(t, lt.Alloc(full))

	// restore into a fixed slot
	restored := lt.Set(1, 3, 0x9123, full)
	require.NotNil(t, restored)
	require.Same(t, restored, lt.FindByUUID(full))
	require.Nil(t, lt.Set(7, 1, 0x0001, full))
}

func TestNodeTable(t *testing.T) {
	nt := table.NewNodeTable(2)
	require.Nil(t, nt.Find(0x0002))

	node := nt.Alloc(0x0002)
	require.NotNil(t, node)
	node.NetIdx = 0x000
	node.NumElem = 3
	require.Same(t, node, nt.Find(0x0002))
	require.Same(t, node, nt.Alloc(0x0002))

	require.NotNil(t, nt.Alloc(0x0010))
	require.Nil(t, nt.Alloc(0x0020))
	require.Equal(t, 2, nt.Count())

	nt.Delete(0x0002)
	require.Nil(t, nt.Find(0x0002))
	require.Equal(t, 1, nt.Count())
}

func TestHeartbeatEnabled(t *testing.T) {
	hb := &table.HeartbeatPub{}
	require.False(t, hb.Enabled())

	hb.Dst = 0x0005
	require.False(t, hb.Enabled())
	hb.Count = table.HeartbeatIndefinite
	require.False(t, hb.Enabled())
	hb.Period = 2
	require.True(t, hb.Enabled())
}
