package client

import (
	"testing"
	"time"

	"github.com/luxfi/qdevice/cmap"
	"github.com/luxfi/qdevice/timer"
	"github.com/luxfi/qdevice/votequorum"
	"github.com/luxfi/qdevice/wire"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return New(Config{
		ClusterName:           "mycluster",
		NodeID:                1,
		DecisionAlgorithm:     "TEST",
		HeartbeatMillis:       1000,
		CastVoteTimerInterval: time.Second,
	}, timer.NewList(), nil)
}

func TestHandshakeReachesSteadyWithoutTLS(t *testing.T) {
	c := newTestClient()
	c.Start()
	require.Equal(t, StateWaitPreinitReply, c.State())

	require.NoError(t, c.Handle(wire.NewPreinitReply(wire.TLSUnsupported)))
	require.Equal(t, StateWaitInitReply, c.State())

	require.NoError(t, c.Handle(wire.NewInitReplyOK()))
	require.Equal(t, StateWaitSetOptionReply, c.State())

	require.NoError(t, c.Handle(wire.NewSetOptionReply()))
	require.Equal(t, StateSteady, c.State())
}

func TestHandshakeRequestsUpgradeWhenServerRequiresTLS(t *testing.T) {
	c := newTestClient()
	c.Start()

	err := c.Handle(wire.NewPreinitReply(wire.TLSRequired))
	require.ErrorIs(t, err, ErrUpgradeRequested)
	require.Equal(t, StateWaitStartTLSSent, c.State())

	c.TLSUpgraded()
	require.Equal(t, StateWaitInitReply, c.State())
}

func TestServerErrorClosesSessionFromAnyState(t *testing.T) {
	c := newTestClient()
	c.Start()
	err := c.Handle(wire.NewServerError(wire.ErrUnsupportedDecisionAlgorithm, "nope"))
	require.ErrorIs(t, err, ErrServerRejected)
	require.Equal(t, StateClosed, c.State())
}

func steadyClient(t *testing.T) *Client {
	c := newTestClient()
	c.Start()
	require.NoError(t, c.Handle(wire.NewPreinitReply(wire.TLSUnsupported)))
	require.NoError(t, c.Handle(wire.NewInitReplyOK()))
	require.NoError(t, c.Handle(wire.NewSetOptionReply()))
	require.Equal(t, StateSteady, c.State())
	return c
}

func TestConfigNodeListFingerprintDedupSuppressesRepeats(t *testing.T) {
	c := steadyClient(t)
	before := c.SendQueue.Len()

	snap := cmap.Snapshot{Nodes: []cmap.NodeEntry{{Ring0Addr: "10.0.0.1"}}}
	c.OnConfigNodeList(snap)
	afterFirst := c.SendQueue.Len()
	require.Greater(t, afterFirst, before)

	c.OnConfigNodeList(snap)
	require.Equal(t, afterFirst, c.SendQueue.Len())
}

func TestConfigNodeListIgnoredMidReload(t *testing.T) {
	c := steadyClient(t)
	before := c.SendQueue.Len()
	c.OnConfigNodeList(cmap.Snapshot{ReloadInProgress: true})
	require.Equal(t, before, c.SendQueue.Len())
}

func TestAskLaterSchedulesRetryAndInstallsVoteOnFinalDecision(t *testing.T) {
	c := steadyClient(t)
	vq := votequorum.NewMemAdaptor()
	c.VQ = vq

	c.OnNodelistNotify(votequorum.NodelistNotify{RingID: wire.RingID{Seq: 1}, Members: wire.NodeList{{NodeID: 1}}})
	var seq uint32
	for s := range c.pending {
		seq = s
	}
	require.NotZero(t, seq)

	require.NoError(t, c.Handle(&wire.Message{Type: wire.MsgNodeListReply, SeqNum: seq, Options: []wire.Option{wire.OptUint8(wire.OptResultVote.AsMandatory(), uint8(wire.ResultAskLater))}}))
	require.Contains(t, c.pending, seq)

	c.timers.FireExpired(time.Now().Add(2 * time.Second))
	require.Equal(t, seq, c.pendingRetryOrigSeq)

	require.NoError(t, c.Handle(&wire.Message{Type: wire.MsgAskForVoteReply, Options: []wire.Option{wire.OptUint8(wire.OptResultVote.AsMandatory(), uint8(wire.ResultACK))}}))
	require.NotContains(t, c.pending, seq)
	require.Zero(t, vq.VoteCount, "vote must not install before the cast-vote timer fires")

	c.timers.FireExpired(time.Now().Add(2 * time.Second))
	require.Equal(t, votequorum.VoteYes, vq.LastVote)
}

func TestWaitForReplySuppressesFurtherNodeListSends(t *testing.T) {
	c := steadyClient(t)

	c.OnNodelistNotify(votequorum.NodelistNotify{RingID: wire.RingID{Seq: 1}, Members: wire.NodeList{{NodeID: 1}}})
	var seq uint32
	for s := range c.pending {
		seq = s
	}
	require.NotZero(t, seq)

	require.NoError(t, c.Handle(&wire.Message{Type: wire.MsgNodeListReply, SeqNum: seq, Options: []wire.Option{wire.OptUint8(wire.OptResultVote.AsMandatory(), uint8(wire.ResultWaitForReply))}}))
	require.True(t, c.waitingForVoteInfo)

	afterReply := c.SendQueue.Len()
	c.OnNodelistNotify(votequorum.NodelistNotify{RingID: wire.RingID{Seq: 2}, Members: wire.NodeList{{NodeID: 1}}})
	require.Equal(t, afterReply, c.SendQueue.Len(), "sendNodeList must stay suppressed while awaiting vote-info")

	vq := votequorum.NewMemAdaptor()
	c.VQ = vq
	require.NoError(t, c.Handle(&wire.Message{Type: wire.MsgVoteInfo, Options: []wire.Option{wire.OptUint8(wire.OptResultVote.AsMandatory(), uint8(wire.ResultNACK))}}))
	require.False(t, c.waitingForVoteInfo)

	c.OnNodelistNotify(votequorum.NodelistNotify{RingID: wire.RingID{Seq: 3}, Members: wire.NodeList{{NodeID: 1}}})
	require.Greater(t, c.SendQueue.Len(), afterReply, "sends must resume once vote-info clears the suppression")

	c.timers.FireExpired(time.Now().Add(2 * time.Second))
	require.Equal(t, votequorum.VoteNo, vq.LastVote)
}

func TestHeartbeatTimeoutAfterTwoMissedProbes(t *testing.T) {
	c := steadyClient(t)
	timedOut := false
	c.OnHeartbeatTimeout = func() { timedOut = true }

	now := time.Now()
	c.timers.FireExpired(now.Add(2 * time.Second))
	require.False(t, timedOut)
	c.timers.FireExpired(now.Add(4 * time.Second))
	require.False(t, timedOut)
	c.timers.FireExpired(now.Add(6 * time.Second))
	require.True(t, timedOut)
	require.Equal(t, StateClosed, c.State())
}
