// Package votequorum defines the arbiter client's view of the
// vote-quorum library: the other named external collaborator of
// spec.md §1. It ships an in-memory Adaptor for tests and standalone
// drivers, and the cast-vote installer the client's timer ultimately
// calls into (spec.md §4.4).
package votequorum

import "github.com/luxfi/qdevice/wire"

// QuorumNotify mirrors a quorum_notify callback payload.
type QuorumNotify struct {
	Quorate bool
	Members wire.NodeList
}

// NodelistNotify mirrors a nodelist_notify callback payload.
type NodelistNotify struct {
	RingID  wire.RingID
	Members wire.NodeList
}

// Listener receives vote-quorum events.
type Listener interface {
	OnQuorumNotify(QuorumNotify)
	OnNodelistNotify(NodelistNotify)
}

// Vote is the cast vote a node reports to its local vote-quorum service.
type Vote uint8

const (
	VoteNo Vote = iota
	VoteYes
)

// Adaptor is the external vote-quorum collaborator interface.
type Adaptor interface {
	Subscribe(l Listener)
	// Fd returns a readiness file descriptor, or -1 for adaptors (like
	// MemAdaptor) that dispatch synchronously.
	Fd() int
	// DispatchAll processes pending vote-quorum events. Must not
	// perform network I/O (spec.md §5).
	DispatchAll()
	// CastVote installs a vote for this node, called from the expiry
	// of the client's cast-vote timer (spec.md §4.4).
	CastVote(v Vote) error
}

// MemAdaptor is an in-memory Adaptor for tests and standalone drivers.
type MemAdaptor struct {
	listeners []Listener
	LastVote  Vote
	VoteCount int
}

// NewMemAdaptor returns an adaptor with no cast vote yet.
func NewMemAdaptor() *MemAdaptor { return &MemAdaptor{} }

// Subscribe implements Adaptor.
func (a *MemAdaptor) Subscribe(l Listener) { a.listeners = append(a.listeners, l) }

// Fd implements Adaptor.
func (a *MemAdaptor) Fd() int { return -1 }

// DispatchAll implements Adaptor.
func (a *MemAdaptor) DispatchAll() {}

// CastVote implements Adaptor, recording the vote for test assertions.
func (a *MemAdaptor) CastVote(v Vote) error {
	a.LastVote = v
	a.VoteCount++
	return nil
}

// EmitQuorumNotify drives OnQuorumNotify on every subscriber, for tests
// simulating a real vote-quorum library callback.
func (a *MemAdaptor) EmitQuorumNotify(n QuorumNotify) {
	for _, l := range a.listeners {
		l.OnQuorumNotify(n)
	}
}

// EmitNodelistNotify drives OnNodelistNotify on every subscriber.
func (a *MemAdaptor) EmitNodelistNotify(n NodelistNotify) {
	for _, l := range a.listeners {
		l.OnNodelistNotify(n)
	}
}
