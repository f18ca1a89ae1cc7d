package table

// Node is one provisioned peer managed by a coordinator.
type Node struct {
	Addr    uint16
	NetIdx  uint16
	DevKey  Key
	NumElem uint8
}

// NodeTable is the fixed-capacity table of managed peers. A slot is free
// while its address is unassigned.
type NodeTable struct {
	nodes []Node
}

func NewNodeTable(capacity int) *NodeTable {
	return &NodeTable{nodes: make([]Node, capacity)}
}

// Find returns the node with the given address, or nil.
func (nt *NodeTable) Find(addr uint16) *Node {
	for i := range nt.nodes {
		if nt.nodes[i].Addr == addr {
			return &nt.nodes[i]
		}
	}
	return nil
}

// Alloc returns the node with the given address, claiming a free slot when
// none exists. Returns nil when the table is full.
func (nt *NodeTable) Alloc(addr uint16) *Node {
	if node := nt.Find(addr); node != nil {
		return node
	}
	for i := range nt.nodes {
		if nt.nodes[i].Addr == AddrUnassigned {
			nt.nodes[i] = Node{Addr: addr}
			return &nt.nodes[i]
		}
	}
	return nil
}

// Delete frees the slot holding addr, if any.
func (nt *NodeTable) Delete(addr uint16) {
	if node := nt.Find(addr); node != nil {
		*node = Node{}
	}
}

// Foreach visits the used slots in table order.
func (nt *NodeTable) Foreach(fn func(*Node)) {
	for i := range nt.nodes {
		if nt.nodes[i].Addr != AddrUnassigned {
			fn(&nt.nodes[i])
		}
	}
}

func (nt *NodeTable) Count() int {
	count := 0
	for i := range nt.nodes {
		if nt.nodes[i].Addr != AddrUnassigned {
			count++
		}
	}
	return count
}
