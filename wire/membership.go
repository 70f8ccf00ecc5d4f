package wire

import "encoding/binary"

// NodeDescriptor is one entry of a node list (spec.md §3).
type NodeDescriptor struct {
	NodeID       uint32
	DataCenterID uint32
	State        NodeState
}

func encodeNodeDescriptor(n NodeDescriptor) []byte {
	b := make([]byte, 9)
	binary.BigEndian.PutUint32(b[0:4], n.NodeID)
	binary.BigEndian.PutUint32(b[4:8], n.DataCenterID)
	b[8] = byte(n.State)
	return b
}

func decodeNodeDescriptor(b []byte) (NodeDescriptor, bool) {
	if len(b) < 9 {
		return NodeDescriptor{}, false
	}
	return NodeDescriptor{
		NodeID:       binary.BigEndian.Uint32(b[0:4]),
		DataCenterID: binary.BigEndian.Uint32(b[4:8]),
		State:        NodeState(b[8]),
	}, true
}

// NodeList is an ordered sequence of node descriptors. Equality is
// order-independent over NodeID (spec.md §3) but insertion order is
// preserved for logging reproducibility.
type NodeList []NodeDescriptor

// Equal reports whether two node lists contain the same set of NodeIDs
// with the same State, irrespective of order.
func (l NodeList) Equal(other NodeList) bool {
	if len(l) != len(other) {
		return false
	}
	idx := make(map[uint32]NodeState, len(l))
	for _, n := range l {
		idx[n.NodeID] = n.State
	}
	for _, n := range other {
		st, ok := idx[n.NodeID]
		if !ok || st != n.State {
			return false
		}
	}
	return true
}

// RingID totally orders membership epochs: lexicographic on (Seq, NodeID).
type RingID struct {
	NodeID uint32
	Seq    uint64
}

// Less reports whether r sorts strictly before other.
func (r RingID) Less(other RingID) bool {
	if r.Seq != other.Seq {
		return r.Seq < other.Seq
	}
	return r.NodeID < other.NodeID
}

// optsFromNodeList packs a NodeList as repeated OptNodeDescriptor options.
func optsFromNodeList(nodes NodeList) []Option {
	opts := make([]Option, 0, len(nodes))
	for _, n := range nodes {
		opts = append(opts, Option{Type: OptNodeDescriptor, Data: encodeNodeDescriptor(n)})
	}
	return opts
}

// NodeListFromMessage decodes every OptNodeDescriptor option in m, in
// the order they appear.
func NodeListFromMessage(m *Message) NodeList {
	var nodes NodeList
	for _, o := range m.All(OptNodeDescriptor) {
		if nd, ok := decodeNodeDescriptor(o.Data); ok {
			nodes = append(nodes, nd)
		}
	}
	return nodes
}

// RingIDFromMessage decodes a RingID from its two component options, if
// both are present.
func RingIDFromMessage(m *Message) (RingID, bool) {
	nodeOpt, ok1 := m.Get(OptRingIDNodeID)
	seqOpt, ok2 := m.Get(OptRingIDSeq)
	if !ok1 || !ok2 {
		return RingID{}, false
	}
	return RingID{NodeID: nodeOpt.Uint32(), Seq: seqOpt.Uint64()}, true
}
