package algorithm

import (
	"testing"

	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id   uint32
	data any
}

func (s *fakeSession) NodeID() uint32         { return s.id }
func (s *fakeSession) AlgorithmData() any     { return s.data }
func (s *fakeSession) SetAlgorithmData(v any) { s.data = v }

type votePush struct {
	target Session
	vote   wire.ResultVote
}

type fakeCluster struct {
	name     string
	sessions []Session
	pushed   []votePush
}

func (c *fakeCluster) Name() string          { return c.name }
func (c *fakeCluster) Sessions() []Session   { return c.sessions }
func (c *fakeCluster) SendVoteInfo(target Session, v wire.ResultVote) error {
	c.pushed = append(c.pushed, votePush{target: target, vote: v})
	return nil
}

func nodes(ids ...uint32) wire.NodeList {
	out := make(wire.NodeList, 0, len(ids))
	for _, id := range ids {
		out = append(out, wire.NodeDescriptor{NodeID: id, State: wire.NodeMember})
	}
	return out
}

func TestRegistryHasAllFourAlgorithms(t *testing.T) {
	for _, name := range []string{"TEST", "FFSPLIT", "LMS", "2NODELMS"} {
		a, ok := New(name)
		require.True(t, ok, name)
		require.Equal(t, name, a.Name())
	}
	_, ok := New("NOSUCH")
	require.False(t, ok)
}

func TestFFSplitMajorityDecidesWithoutTie(t *testing.T) {
	a := newFFSplit()
	c := &fakeCluster{name: "c"}
	s1 := &fakeSession{id: 1}

	_, v := a.ConfigNodeListReceived(c, s1, nodes(1, 2, 3))
	require.Equal(t, wire.ResultNoChange, v)

	_, v = a.MembershipNodeListReceived(c, s1, nodes(1, 2), wire.RingID{Seq: 1})
	require.Equal(t, wire.ResultACK, v)

	_, v = a.MembershipNodeListReceived(c, s1, nodes(1), wire.RingID{Seq: 2})
	require.Equal(t, wire.ResultNACK, v)
}

func TestFFSplitExactTieWaitsThenDecidesLowestNodeID(t *testing.T) {
	a := newFFSplit()
	c := &fakeCluster{name: "c"}
	a.ConfigNodeListReceived(c, &fakeSession{id: 1}, nodes(1, 2, 3, 4))

	sHigh := &fakeSession{id: 3}
	sLow := &fakeSession{id: 1}
	ring := wire.RingID{Seq: 5}

	_, v := a.MembershipNodeListReceived(c, sHigh, nodes(3, 4), ring)
	require.Equal(t, wire.ResultWaitForReply, v)
	require.Empty(t, c.pushed)

	_, v = a.MembershipNodeListReceived(c, sLow, nodes(1, 2), ring)
	require.Equal(t, wire.ResultACK, v)
	require.Len(t, c.pushed, 1)
	require.Same(t, sHigh, c.pushed[0].target)
	require.Equal(t, wire.ResultNACK, c.pushed[0].vote)
}

func TestFFSplitClientDisconnectPrunesPendingTie(t *testing.T) {
	a := newFFSplit().(*ffsplitAlgorithm)
	c := &fakeCluster{name: "c"}
	a.ConfigNodeListReceived(c, &fakeSession{id: 1}, nodes(1, 2, 3, 4))
	s1 := &fakeSession{id: 1}
	ring := wire.RingID{Seq: 9}
	a.MembershipNodeListReceived(c, s1, nodes(1, 2), ring)
	require.NotNil(t, a.tie)

	a.ClientDisconnect(c, s1, false)
	require.Nil(t, a.tie)
}

func TestLMSFirstReportAlwaysAcked(t *testing.T) {
	a := newLMS()
	c := &fakeCluster{}
	_, v := a.MembershipNodeListReceived(c, &fakeSession{id: 1}, nodes(1), wire.RingID{})
	require.Equal(t, wire.ResultACK, v)
}

func TestLMSSubsetOfLastQuorateAcked(t *testing.T) {
	a := newLMS()
	c := &fakeCluster{}
	s := &fakeSession{id: 1}
	_, v := a.QuorumNodeListReceived(c, s, nodes(1, 2, 3), true)
	require.Equal(t, wire.ResultACK, v)

	_, v = a.MembershipNodeListReceived(c, s, nodes(1, 2), wire.RingID{})
	require.Equal(t, wire.ResultACK, v)

	_, v = a.MembershipNodeListReceived(c, s, nodes(4), wire.RingID{})
	require.Equal(t, wire.ResultNACK, v)
}

func TestTwoNodeLMSArbitratesSingletonSplit(t *testing.T) {
	a := newTwoNodeLMS()
	c := &fakeCluster{}
	sLow := &fakeSession{id: 1}
	sHigh := &fakeSession{id: 2}

	_, v := a.QuorumNodeListReceived(c, sLow, nodes(1, 2), true)
	require.Equal(t, wire.ResultACK, v)

	ring := wire.RingID{Seq: 1}
	_, v = a.MembershipNodeListReceived(c, sHigh, nodes(2), ring)
	require.Equal(t, wire.ResultWaitForReply, v)

	_, v = a.MembershipNodeListReceived(c, sLow, nodes(1), ring)
	require.Equal(t, wire.ResultACK, v)
	require.Len(t, c.pushed, 1)
	require.Same(t, sHigh, c.pushed[0].target)
	require.Equal(t, wire.ResultNACK, c.pushed[0].vote)
}

func TestTwoNodeLMSFallsBackToLMSWhenNotAmbiguous(t *testing.T) {
	a := newTwoNodeLMS()
	c := &fakeCluster{}
	s := &fakeSession{id: 1}
	_, v := a.MembershipNodeListReceived(c, s, nodes(1), wire.RingID{})
	require.Equal(t, wire.ResultACK, v)
}

func TestTestAlgorithmAlwaysAcks(t *testing.T) {
	a := newTest()
	c := &fakeCluster{}
	s := &fakeSession{id: 1}
	code, v := a.MembershipNodeListReceived(c, s, nodes(1), wire.RingID{})
	require.Equal(t, status.OK, code)
	require.Equal(t, wire.ResultACK, v)
}
