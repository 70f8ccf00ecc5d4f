// Package algorithm implements the decision-algorithm plug-in surface
// of spec.md §4.5/§9: a capability interface registered by name,
// dispatched by the server on every client event, with each algorithm
// owning its per-session state through an opaque associated-data slot
// whose lifetime is bound to the session rather than through a global.
package algorithm

import (
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// Session is the server's view of one connected client, as seen by an
// algorithm. The NodeList handed to an algorithm is decoded afresh for
// each message, so an algorithm may keep it after the call returns.
type Session interface {
	NodeID() uint32
	// AlgorithmData returns the algorithm's private per-session slot.
	AlgorithmData() any
	// SetAlgorithmData replaces the algorithm's private per-session slot.
	SetAlgorithmData(any)
}

// Cluster is the server's view of a cluster, as seen by an algorithm:
// every session sharing a cluster name and a decision algorithm.
type Cluster interface {
	Name() string
	// Sessions returns every session currently in the cluster,
	// including the one an entry point was called for.
	Sessions() []Session
	// SendVoteInfo enqueues a vote-info push to target, outside the
	// request/reply flow that triggered the current entry point. The
	// reply arrives later at OnVoteInfoReply.
	SendVoteInfo(target Session, vote wire.ResultVote) error
}

// Algorithm is the plug-in contract of spec.md §4.5. Every entry point
// returns the status.Code to report (status.OK unless the session
// should be closed with a server-error) and the ResultVote to reply
// with to the session the event arrived on.
type Algorithm interface {
	Name() string
	Init(c Cluster, s Session) status.Code
	ConfigNodeListReceived(c Cluster, s Session, nodes wire.NodeList) (status.Code, wire.ResultVote)
	MembershipNodeListReceived(c Cluster, s Session, nodes wire.NodeList, ring wire.RingID) (status.Code, wire.ResultVote)
	QuorumNodeListReceived(c Cluster, s Session, nodes wire.NodeList, quorate bool) (status.Code, wire.ResultVote)
	AskForVoteReceived(c Cluster, s Session, origSeq uint32) (status.Code, wire.ResultVote)
	VoteInfoReplyReceived(c Cluster, s Session) (status.Code, wire.ResultVote)
	ClientDisconnect(c Cluster, s Session, serverGoingDown bool)
}

// Factory constructs a fresh Algorithm instance, one per cluster, so
// that cluster-scoped state (e.g. last known quorate membership) never
// leaks across clusters using the same algorithm name.
type Factory func() Algorithm

var registry = map[string]Factory{}

// Register adds a named algorithm factory to the registry. Intended to
// be called from init() functions of algorithm implementations.
func Register(name string, f Factory) { registry[name] = f }

// New returns a fresh instance of the named algorithm, or false if no
// such algorithm is registered (spec.md §6
// UNSUPPORTED_DECISION_ALGORITHM).
func New(name string) (Algorithm, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns every registered algorithm name, for diagnostics.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

func init() {
	Register("TEST", newTest)
	Register("FFSPLIT", newFFSplit)
	Register("LMS", newLMS)
	Register("2NODELMS", newTwoNodeLMS)
}
