package algorithm

import (
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// lmsAlgorithm implements "last man standing": a reporting partition is
// granted ACK if it was a subset of the last known quorate membership,
// per spec.md §4.5. The first membership report ever seen (before any
// quorate quorum-node-list has arrived) is always granted, since there
// is nothing yet to compare against.
type lmsAlgorithm struct {
	lastQuorate      wire.NodeList
	haveLastQuorate  bool
}

func newLMS() Algorithm { return &lmsAlgorithm{} }

func (*lmsAlgorithm) Name() string { return "LMS" }

func (*lmsAlgorithm) Init(Cluster, Session) status.Code { return status.OK }

func (*lmsAlgorithm) ConfigNodeListReceived(Cluster, Session, wire.NodeList) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultNoChange
}

func (a *lmsAlgorithm) MembershipNodeListReceived(_ Cluster, _ Session, nodes wire.NodeList, _ wire.RingID) (status.Code, wire.ResultVote) {
	if !a.haveLastQuorate {
		return status.OK, wire.ResultACK
	}
	if isSubset(nodes, a.lastQuorate) {
		return status.OK, wire.ResultACK
	}
	return status.OK, wire.ResultNACK
}

func (a *lmsAlgorithm) QuorumNodeListReceived(_ Cluster, _ Session, nodes wire.NodeList, quorate bool) (status.Code, wire.ResultVote) {
	if quorate {
		a.lastQuorate = nodes
		a.haveLastQuorate = true
		return status.OK, wire.ResultACK
	}
	return status.OK, wire.ResultNoChange
}

func (*lmsAlgorithm) AskForVoteReceived(Cluster, Session, uint32) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultAskLater
}

func (*lmsAlgorithm) VoteInfoReplyReceived(Cluster, Session) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultNoChange
}

func (*lmsAlgorithm) ClientDisconnect(Cluster, Session, bool) {}

// isSubset reports whether every node_id in sub is present in super,
// ignoring state (spec.md §3: node list equality is order-independent
// over node_id).
func isSubset(sub, super wire.NodeList) bool {
	idx := make(map[uint32]bool, len(super))
	for _, n := range super {
		idx[n.NodeID] = true
	}
	for _, n := range sub {
		if !idx[n.NodeID] {
			return false
		}
	}
	return true
}
