package ioloop

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/qdevice/cluster"
	"github.com/luxfi/qdevice/wire"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ServerConfig{
		Listener:      ln,
		Registry:      cluster.NewRegistry(),
		MaxMessageLen: wire.MaxMessageLen,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	return ln.Addr().String(), func() {
		cancel()
		<-done
	}
}

func TestServerReachesSteadyOverRealSocket(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	send := func(m *wire.Message) {
		b, err := wire.Encode(m)
		require.NoError(t, err)
		_, err = conn.Write(b)
		require.NoError(t, err)
	}
	recv := func() *wire.Message {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, err := wire.ReadFrame(conn, wire.MaxMessageLen)
		require.NoError(t, err)
		return m
	}

	preinit := wire.NewPreinit("mycluster")
	preinit.SeqNum = 11
	send(preinit)
	reply := recv()
	require.Equal(t, wire.MsgPreinitReply, reply.Type)
	require.Equal(t, preinit.SeqNum, reply.SeqNum, "preinit-reply must echo the request's seq num")

	initMsg := wire.NewInit(wire.InitParams{
		ProtocolVersion: 1,
		NodeID:          1,
		DecisionAlgo:    "TEST",
		ClusterName:     "mycluster",
	})
	initMsg.SeqNum = 12
	send(initMsg)
	reply = recv()
	require.Equal(t, wire.MsgInitReply, reply.Type)
	require.Equal(t, initMsg.SeqNum, reply.SeqNum, "init-reply must echo the request's seq num")

	echo := wire.NewEchoRequest()
	echo.SeqNum = 13
	send(echo)
	reply = recv()
	require.Equal(t, wire.MsgEchoReply, reply.Type)
	require.Equal(t, echo.SeqNum, reply.SeqNum, "echo-reply must echo the request's seq num")
}

// TestFFSplitTieDeliversVoteInfoToLoser drives two sessions in the same
// FFSPLIT cluster into an exact tie over real sockets, and asserts the
// losing partition actually receives the server's out-of-band vote-info
// push — the cross-connection SendVoteInfo path that the dispatch
// loop's per-event reply write alone cannot deliver.
func TestFFSplitTieDeliversVoteInfoToLoser(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	dial := func(nodeID uint32) net.Conn {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		require.NoError(t, err)
		send := func(m *wire.Message) {
			b, err := wire.Encode(m)
			require.NoError(t, err)
			_, err = conn.Write(b)
			require.NoError(t, err)
		}
		recv := func() *wire.Message {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			m, err := wire.ReadFrame(conn, wire.MaxMessageLen)
			require.NoError(t, err)
			return m
		}
		send(wire.NewPreinit("ffcluster"))
		preinitReply := recv()
		require.Equal(t, wire.MsgPreinitReply, preinitReply.Type)
		send(wire.NewInit(wire.InitParams{DecisionAlgo: "FFSPLIT", ClusterName: "ffcluster", NodeID: nodeID}))
		reply := recv()
		require.Equal(t, wire.MsgInitReply, reply.Type)
		return conn
	}
	send := func(conn net.Conn, m *wire.Message) {
		b, err := wire.Encode(m)
		require.NoError(t, err)
		_, err = conn.Write(b)
		require.NoError(t, err)
	}
	recv := func(conn net.Conn) *wire.Message {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, err := wire.ReadFrame(conn, wire.MaxMessageLen)
		require.NoError(t, err)
		return m
	}

	highConn := dial(10)
	defer highConn.Close()
	lowConn := dial(5)
	defer lowConn.Close()

	// Establish a total node count of 2 so a single-node membership
	// report on each side is an exact split.
	send(highConn, wire.NewNodeList(wire.NodeListConfig, wire.NodeList{{NodeID: 10}, {NodeID: 5}}, nil, nil))
	reply := recv(highConn)
	require.Equal(t, wire.MsgNodeListReply, reply.Type)

	ring := &wire.RingID{Seq: 1}
	send(highConn, wire.NewNodeList(wire.NodeListMembership, wire.NodeList{{NodeID: 10}}, ring, nil))
	reply = recv(highConn)
	require.Equal(t, wire.MsgNodeListReply, reply.Type)
	require.Equal(t, wire.ResultWaitForReply, reply.Vote())

	send(lowConn, wire.NewNodeList(wire.NodeListMembership, wire.NodeList{{NodeID: 5}}, ring, nil))
	reply = recv(lowConn)
	require.Equal(t, wire.MsgNodeListReply, reply.Type)
	require.Equal(t, wire.ResultACK, reply.Vote(), "lowest node_id partition wins the tie")

	voteInfo := recv(highConn)
	require.Equal(t, wire.MsgVoteInfo, voteInfo.Type)
	require.Equal(t, wire.ResultNACK, voteInfo.Vote(), "losing partition must receive the forced vote-info push")
}

func TestServerRejectsUnknownAlgorithmOverRealSocket(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	b, err := wire.Encode(wire.NewPreinit("c"))
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = wire.ReadFrame(conn, wire.MaxMessageLen)
	require.NoError(t, err)

	b, err = wire.Encode(wire.NewInit(wire.InitParams{DecisionAlgo: "NOSUCH", ClusterName: "c", NodeID: 1}))
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.ReadFrame(conn, wire.MaxMessageLen)
	require.NoError(t, err)
	require.Equal(t, wire.MsgServerError, reply.Type)
	code, _ := reply.ServerError()
	require.Equal(t, wire.ErrUnsupportedDecisionAlgorithm, code)
}
