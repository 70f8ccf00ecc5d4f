package server

import (
	"testing"

	"github.com/luxfi/qdevice/cluster"
	"github.com/luxfi/qdevice/wire"
	"github.com/stretchr/testify/require"
)

func newTestSession(registry *cluster.Registry, requireTLS bool) *Session {
	return NewSession(1, "10.0.0.1:12345", registry, wire.TLSSupported, requireTLS, nil)
}

func TestFullHandshakeReachesSteady(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), false)

	reply, err := s.Handle(wire.NewPreinit("mycluster"))
	require.NoError(t, err)
	require.Equal(t, wire.MsgPreinitReply, reply.Type)
	require.Equal(t, StateWaitStartTLSOrInit, s.State())

	init := wire.NewInit(wire.InitParams{
		ProtocolVersion: 1,
		NodeID:          7,
		DecisionAlgo:    "TEST",
		ClusterName:     "mycluster",
	})
	reply, err = s.Handle(init)
	require.NoError(t, err)
	require.Equal(t, wire.MsgInitReply, reply.Type)
	require.Equal(t, StateSteady, s.State())
	require.Equal(t, uint32(7), s.NodeID())
}

func TestStartTLSTransitionsToWaitInit(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), true)
	s.Handle(wire.NewPreinit("c"))

	_, err := s.Handle(wire.NewStartTLS())
	require.ErrorIs(t, err, ErrUpgradeRequested)
	require.Equal(t, StateWaitInit, s.State())

	init := wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 1})
	reply, err := s.Handle(init)
	require.NoError(t, err)
	require.Equal(t, wire.MsgInitReply, reply.Type)
	require.Equal(t, StateSteady, s.State())
}

func TestTLSRequiredRejectsPlainInit(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), true)
	s.Handle(wire.NewPreinit("c"))

	init := wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 1})
	reply, err := s.Handle(init)
	require.ErrorIs(t, err, ErrProtocolViolation)
	code, _ := reply.ServerError()
	require.Equal(t, wire.ErrTLSRequired, code)
}

func TestUnexpectedMessageInWaitPreinitClosesWithError(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), false)
	reply, err := s.Handle(wire.NewEchoRequest())
	require.ErrorIs(t, err, ErrProtocolViolation)
	require.Equal(t, wire.MsgServerError, reply.Type)
	require.Equal(t, StateClosed, s.State())
}

func TestDuplicateNodeIDIsRejectedWithServerError(t *testing.T) {
	registry := cluster.NewRegistry()
	s1 := newTestSession(registry, false)
	s1.Handle(wire.NewPreinit("c"))
	s1.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 9}))

	s2 := NewSession(2, "10.0.0.2:1", registry, wire.TLSSupported, false, nil)
	s2.Handle(wire.NewPreinit("c"))
	reply, err := s2.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 9}))
	require.ErrorIs(t, err, ErrProtocolViolation)
	code, _ := reply.ServerError()
	require.Equal(t, wire.ErrDuplicateNodeID, code)
}

func TestAlgorithmMismatchIsRejected(t *testing.T) {
	registry := cluster.NewRegistry()
	s1 := newTestSession(registry, false)
	s1.Handle(wire.NewPreinit("c"))
	s1.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 1}))

	s2 := NewSession(2, "addr", registry, wire.TLSSupported, false, nil)
	s2.Handle(wire.NewPreinit("c"))
	reply, err := s2.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "LMS", ClusterName: "c", NodeID: 2}))
	require.ErrorIs(t, err, ErrProtocolViolation)
	code, _ := reply.ServerError()
	require.Equal(t, wire.ErrAlgorithmDiffers, code)
}

func TestUnsupportedAlgorithmIsRejected(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), false)
	s.Handle(wire.NewPreinit("c"))
	reply, err := s.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "NOSUCH", ClusterName: "c", NodeID: 1}))
	require.ErrorIs(t, err, ErrProtocolViolation)
	code, _ := reply.ServerError()
	require.Equal(t, wire.ErrUnsupportedDecisionAlgorithm, code)
}

func TestSteadyHandlesEchoSetOptionAndNodeList(t *testing.T) {
	s := newTestSession(cluster.NewRegistry(), false)
	s.Handle(wire.NewPreinit("c"))
	s.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 1}))

	reply, err := s.Handle(wire.NewEchoRequest())
	require.NoError(t, err)
	require.Equal(t, wire.MsgEchoReply, reply.Type)

	reply, err = s.Handle(wire.NewSetOption(1000))
	require.NoError(t, err)
	require.Equal(t, wire.MsgSetOptionReply, reply.Type)

	nl := wire.NewNodeList(wire.NodeListMembership, wire.NodeList{{NodeID: 1, State: wire.NodeMember}}, &wire.RingID{Seq: 1}, nil)
	reply, err = s.Handle(nl)
	require.NoError(t, err)
	require.Equal(t, wire.MsgNodeListReply, reply.Type)
	require.Equal(t, wire.ResultACK, reply.Vote())
}

func TestCloseLeavesClusterAndInvokesDisconnect(t *testing.T) {
	registry := cluster.NewRegistry()
	s := newTestSession(registry, false)
	s.Handle(wire.NewPreinit("c"))
	s.Handle(wire.NewInit(wire.InitParams{DecisionAlgo: "TEST", ClusterName: "c", NodeID: 1}))

	s.Close(false)
	_, ok := registry.Lookup("c")
	require.False(t, ok)
}
