package algorithm

import (
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// ffsplitAlgorithm grants the vote to whichever partition holds a
// strict majority of the last known total node count; on an exact tie
// it grants the partition containing the lowest node_id, per spec.md
// §4.5. Because a tie can only be resolved once both sides of the
// split have reported in, the first reporter is told WAIT-FOR-REPLY and
// the decision for both sides is made (and pushed via vote-info to
// whichever session didn't trigger the deciding call) once the second
// arrives for the same ring epoch.
type ffsplitAlgorithm struct {
	totalNodes int
	tie        *ffTie
}

type ffTie struct {
	ring  wire.RingID
	parts []ffPart
}

type ffPart struct {
	session Session
	nodes   wire.NodeList
}

func newFFSplit() Algorithm { return &ffsplitAlgorithm{} }

func (*ffsplitAlgorithm) Name() string { return "FFSPLIT" }

func (*ffsplitAlgorithm) Init(Cluster, Session) status.Code { return status.OK }

func (a *ffsplitAlgorithm) ConfigNodeListReceived(_ Cluster, _ Session, nodes wire.NodeList) (status.Code, wire.ResultVote) {
	if len(nodes) > a.totalNodes {
		a.totalNodes = len(nodes)
	}
	return status.OK, wire.ResultNoChange
}

func (a *ffsplitAlgorithm) MembershipNodeListReceived(c Cluster, s Session, nodes wire.NodeList, ring wire.RingID) (status.Code, wire.ResultVote) {
	total := a.totalNodes
	if total == 0 {
		total = len(nodes)
	}
	size := len(nodes)

	switch {
	case size*2 > total:
		return status.OK, wire.ResultACK
	case size*2 < total:
		return status.OK, wire.ResultNACK
	}

	// Exact split: need the sibling partition to arbitrate.
	if a.tie == nil || a.tie.ring != ring {
		a.tie = &ffTie{ring: ring}
	}
	a.tie.parts = append(a.tie.parts, ffPart{session: s, nodes: nodes})
	if len(a.tie.parts) < 2 {
		return status.OK, wire.ResultWaitForReply
	}

	winner := lowestNodeIDPartition(a.tie.parts)
	decided := a.tie
	a.tie = nil

	var myVote wire.ResultVote
	for i, p := range decided.parts {
		vote := wire.ResultNACK
		if i == winner {
			vote = wire.ResultACK
		}
		if p.session == s {
			myVote = vote
			continue
		}
		_ = c.SendVoteInfo(p.session, vote)
	}
	return status.OK, myVote
}

func lowestNodeIDPartition(parts []ffPart) int {
	best := 0
	bestID := minNodeID(parts[0].nodes)
	for i := 1; i < len(parts); i++ {
		id := minNodeID(parts[i].nodes)
		if id < bestID {
			bestID = id
			best = i
		}
	}
	return best
}

func minNodeID(nodes wire.NodeList) uint32 {
	if len(nodes) == 0 {
		return ^uint32(0)
	}
	min := nodes[0].NodeID
	for _, n := range nodes[1:] {
		if n.NodeID < min {
			min = n.NodeID
		}
	}
	return min
}

func (a *ffsplitAlgorithm) QuorumNodeListReceived(_ Cluster, _ Session, nodes wire.NodeList, quorate bool) (status.Code, wire.ResultVote) {
	if quorate {
		return status.OK, wire.ResultACK
	}
	if len(nodes) > a.totalNodes {
		a.totalNodes = len(nodes)
	}
	return status.OK, wire.ResultNoChange
}

func (*ffsplitAlgorithm) AskForVoteReceived(Cluster, Session, uint32) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultAskLater
}

func (*ffsplitAlgorithm) VoteInfoReplyReceived(Cluster, Session) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultNoChange
}

func (a *ffsplitAlgorithm) ClientDisconnect(_ Cluster, s Session, _ bool) {
	if a.tie == nil {
		return
	}
	kept := a.tie.parts[:0]
	for _, p := range a.tie.parts {
		if p.session != s {
			kept = append(kept, p)
		}
	}
	a.tie.parts = kept
	if len(a.tie.parts) == 0 {
		a.tie = nil
	}
}
