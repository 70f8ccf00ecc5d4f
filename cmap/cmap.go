// Package cmap defines the arbiter client's view of the cluster
// configuration map: the named external collaborator of spec.md §1/§4.6.
// It ships an in-memory Adaptor implementation suitable for embedding
// tests and for driving the client against a real corosync-style
// cmap over its own transport.
package cmap

import (
	"encoding/binary"
	"net"
)

// NodeEntry mirrors one nodelist.node.<i>.* family of keys.
type NodeEntry struct {
	NodeID       *uint32 // nil means "not set": derive from Ring0Addr
	Ring0Addr    string
	DataCenterID uint32
}

// Snapshot is the subset of cmap state the client cares about
// (spec.md §6 "Cluster-map keys consumed").
type Snapshot struct {
	Nodes             []NodeEntry
	ConfigVersion     uint64
	ClearNodeHighBit  bool
	ReloadInProgress  bool
}

// Listener receives coalesced events from an Adaptor. OnConfigNodeList
// fires at most once per reload-barrier release (spec.md §4.6).
type Listener interface {
	OnConfigNodeList(Snapshot)
}

// Adaptor is the external cluster-map collaborator interface.
type Adaptor interface {
	// Subscribe registers l to receive coalesced config events.
	Subscribe(l Listener)
	// Current returns the adaptor's current snapshot.
	Current() Snapshot
	// Fd returns a readiness file descriptor an I/O loop can poll
	// alongside sockets, or -1 if the adaptor has no fd of its own
	// (e.g. the in-memory adaptor, which dispatches synchronously).
	Fd() int
	// DispatchAll processes any pending cmap events. Must not perform
	// network I/O (spec.md §5: "synchronous micro-handlers").
	DispatchAll()
}

// NodeIDFromAddress derives a node id from a ring0_addr per spec.md
// §4.6: resolve to IPv4, interpret the four octets as a big-endian
// 32-bit integer, then optionally clear bit 31. Non-IPv4 addresses
// yield 0, which callers must treat as invalid.
//
// spec.md §9 flags the original's derivation (htonl of an
// already-network-order address) as producing a host-order
// reinterpretation on some platforms; this implementation follows the
// normative big-endian description of §4.6 rather than replicating a
// host-endian-dependent C artifact.
func NodeIDFromAddress(addr string, clearHighBit bool) uint32 {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	id := binary.BigEndian.Uint32(v4)
	if clearHighBit {
		id &^= 1 << 31
	}
	return id
}

// ResolveNodeID returns the entry's explicit NodeID if set, otherwise
// derives one from Ring0Addr.
func ResolveNodeID(e NodeEntry, clearHighBit bool) uint32 {
	if e.NodeID != nil {
		return *e.NodeID
	}
	return NodeIDFromAddress(e.Ring0Addr, clearHighBit)
}
