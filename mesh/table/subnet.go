package table

// SubnetKeys is one derived credential set of a subnet.
type SubnetKeys struct {
	Net     Key
	Enc     Key
	Privacy Key
	Beacon  Key
	NID     uint8
	// set once the credentials have been derived from Net
	Ready bool
}

// Subnet is one network key slot. Keys[0] holds the current credentials;
// Keys[1] holds the new ones while a key refresh is in progress.
type Subnet struct {
	NetIdx  uint16
	KRFlag  bool
	KRPhase uint8
	Keys    [2]SubnetKeys
}

// SubnetTable is the fixed-capacity network key table.
type SubnetTable struct {
	subs []Subnet
}

func NewSubnetTable(capacity int) *SubnetTable {
	subs := make([]Subnet, capacity)
	for i := range subs {
		subs[i].NetIdx = KeyUnused
	}
	return &SubnetTable{subs: subs}
}

// Get returns the subnet with the given index, or nil if it is not known.
func (st *SubnetTable) Get(netIdx uint16) *Subnet {
	for i := range st.subs {
		if st.subs[i].NetIdx == netIdx {
			return &st.subs[i]
		}
	}
	return nil
}

// Alloc returns the subnet with the given index, claiming a free slot when
// it does not exist yet. Returns nil when the table is full.
func (st *SubnetTable) Alloc(netIdx uint16) *Subnet {
	if sub := st.Get(netIdx); sub != nil {
		return sub
	}
	for i := range st.subs {
		if st.subs[i].NetIdx == KeyUnused {
			st.subs[i] = Subnet{NetIdx: netIdx}
			return &st.subs[i]
		}
	}
	return nil
}

// Delete frees the slot holding netIdx, if any.
func (st *SubnetTable) Delete(netIdx uint16) {
	if sub := st.Get(netIdx); sub != nil {
		*sub = Subnet{NetIdx: KeyUnused}
	}
}

// Primary returns the subnet in slot zero, or nil when the node holds no
// network keys. A provisioned node always fills slot zero first.
func (st *SubnetTable) Primary() *Subnet {
	if len(st.subs) == 0 || st.subs[0].NetIdx == KeyUnused {
		return nil
	}
	return &st.subs[0]
}

// Foreach visits the used slots in table order.
func (st *SubnetTable) Foreach(fn func(*Subnet)) {
	for i := range st.subs {
		if st.subs[i].NetIdx != KeyUnused {
			fn(&st.subs[i])
		}
	}
}

func (st *SubnetTable) Count() int {
	count := 0
	for i := range st.subs {
		if st.subs[i].NetIdx != KeyUnused {
			count++
		}
	}
	return count
}
