package algorithm

import (
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// testAlgorithm always ACKs. Grounded on qnetd-algo-test.c in
// original_source/: development and smoke-test use only, never wire it
// into a production cluster.
type testAlgorithm struct{}

func newTest() Algorithm { return &testAlgorithm{} }

func (*testAlgorithm) Name() string { return "TEST" }

func (*testAlgorithm) Init(Cluster, Session) status.Code { return status.OK }

func (*testAlgorithm) ConfigNodeListReceived(Cluster, Session, wire.NodeList) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultACK
}

func (*testAlgorithm) MembershipNodeListReceived(Cluster, Session, wire.NodeList, wire.RingID) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultACK
}

func (*testAlgorithm) QuorumNodeListReceived(Cluster, Session, wire.NodeList, bool) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultACK
}

func (*testAlgorithm) AskForVoteReceived(Cluster, Session, uint32) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultACK
}

func (*testAlgorithm) VoteInfoReplyReceived(Cluster, Session) (status.Code, wire.ResultVote) {
	return status.OK, wire.ResultNoChange
}

func (*testAlgorithm) ClientDisconnect(Cluster, Session, bool) {}
