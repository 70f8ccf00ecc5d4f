package algorithm

import (
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// twoNodeLMSAlgorithm specializes LMS for exactly two configured nodes.
// Plain LMS cannot discriminate a clean split of a two-node cluster:
// both resulting singleton partitions are trivially subsets of the
// last quorate {1,2} membership. For that specific ambiguous case this
// algorithm falls back to the same two-way tie arbitration FFSplit uses
// (lowest node_id wins), waiting for the sibling singleton to report in
// before deciding either side.
type twoNodeLMSAlgorithm struct {
	base lmsAlgorithm
	tie  *ffTie
}

func newTwoNodeLMS() Algorithm { return &twoNodeLMSAlgorithm{} }

func (*twoNodeLMSAlgorithm) Name() string { return "2NODELMS" }

func (a *twoNodeLMSAlgorithm) Init(c Cluster, s Session) status.Code { return a.base.Init(c, s) }

func (a *twoNodeLMSAlgorithm) ConfigNodeListReceived(c Cluster, s Session, nodes wire.NodeList) (status.Code, wire.ResultVote) {
	return a.base.ConfigNodeListReceived(c, s, nodes)
}

func (a *twoNodeLMSAlgorithm) isAmbiguousSplit(nodes wire.NodeList) bool {
	return a.base.haveLastQuorate && len(a.base.lastQuorate) == 2 && len(nodes) == 1
}

func (a *twoNodeLMSAlgorithm) MembershipNodeListReceived(c Cluster, s Session, nodes wire.NodeList, ring wire.RingID) (status.Code, wire.ResultVote) {
	if !a.isAmbiguousSplit(nodes) {
		return a.base.MembershipNodeListReceived(c, s, nodes, ring)
	}

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

func (a *twoNodeLMSAlgorithm) QuorumNodeListReceived(c Cluster, s Session, nodes wire.NodeList, quorate bool) (status.Code, wire.ResultVote) {
	return a.base.QuorumNodeListReceived(c, s, nodes, quorate)
}

func (*twoNodeLMSAlgorithm) AskForVoteReceived(Cluster, Session, uint32) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultAskLater
}

func (*twoNodeLMSAlgorithm) VoteInfoReplyReceived(Cluster, Session) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultNoChange
}

func (a *twoNodeLMSAlgorithm) ClientDisconnect(c Cluster, s Session, serverGoingDown bool) {
	if a.tie != nil {
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
	a.base.ClientDisconnect(c, s, serverGoingDown)
}
