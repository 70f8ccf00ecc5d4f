package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripWellFormedMessages(t *testing.T) {
	ring := RingID{NodeID: 1, Seq: 5}
	quorate := true
	msgs := []*Message{
		NewPreinit("c1"),
		NewPreinitReply(TLSSupported),
		NewStartTLS(),
		NewInit(InitParams{
			ProtocolVersion: 1,
			NodeID:          1,
			DecisionAlgo:    "TEST",
			HeartbeatMillis: 8000,
			TLSSupported:    TLSSupported,
			ClusterName:     "c1",
		}),
		NewInitReplyOK(),
		NewSetOption(8000),
		NewSetOptionReply(),
		NewEchoRequest(),
		NewEchoReply(),
		NewNodeList(NodeListMembership, NodeList{
			{NodeID: 1, State: NodeMember},
			{NodeID: 2, State: NodeMember},
		}, &ring, &quorate),
		NewNodeListReply(ResultACK),
		NewAskForVote(42),
		NewAskForVoteReply(ResultACK),
		NewVoteInfo(ResultNACK),
		NewVoteInfoReply(),
		NewServerError(ErrDuplicateNodeID, "node 1 already present"),
	}

	for _, m := range msgs {
		m.SeqNum = 7
		encoded, err := Encode(m)
		require.NoError(t, err)

		// msg_len must match the advertised length: bytes 4..8 big
		// endian equal len(encoded) - 8.
		msgLen := uint32(encoded[4])<<24 | uint32(encoded[5])<<16 | uint32(encoded[6])<<8 | uint32(encoded[7])
		require.Equal(t, len(encoded)-8, int(msgLen), "msg_len must cover exactly the option bytes for %s", m.Type)

		decoded, n, err := Decode(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)
		require.Equal(t, m.Type, decoded.Type)
		require.Equal(t, m.SeqNum, decoded.SeqNum)
		require.ElementsMatch(t, optionData(m.Options), optionData(decoded.Options), "options for %s", m.Type)
	}
}

func optionData(opts []Option) []Option {
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	m := NewPreinit("c1")
	m.SeqNum = 1
	encoded, err := Encode(m)
	require.NoError(t, err)

	_, _, err = Decode(encoded, 4) // smaller than actual msg_len
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeRejectsTruncatedOption(t *testing.T) {
	m := NewPreinit("c1")
	m.SeqNum = 1
	encoded, err := Encode(m)
	require.NoError(t, err)

	truncated := encoded[:len(encoded)-2]
	_, _, err = Decode(truncated, 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNodeListEqualityIsOrderIndependent(t *testing.T) {
	a := NodeList{{NodeID: 1, State: NodeMember}, {NodeID: 2, State: NodeDead}}
	b := NodeList{{NodeID: 2, State: NodeDead}, {NodeID: 1, State: NodeMember}}
	require.True(t, a.Equal(b))

	c := NodeList{{NodeID: 2, State: NodeMember}, {NodeID: 1, State: NodeMember}}
	require.False(t, a.Equal(c))
}

func TestRingIDOrdering(t *testing.T) {
	low := RingID{NodeID: 9, Seq: 1}
	high := RingID{NodeID: 1, Seq: 2}
	require.True(t, low.Less(high))
	require.False(t, high.Less(low))
}

func TestUnknownMandatoryOptionRejected(t *testing.T) {
	m := &Message{Type: MsgInit}
	m.Add(Option{Type: OptType(9999).AsMandatory(), Data: []byte("x")})
	known := map[OptType]bool{OptClusterName: true}
	require.ErrorIs(t, RejectUnknownMandatory(m, known), ErrUnsupportedOption)
}

func TestUnknownNonMandatoryOptionIgnored(t *testing.T) {
	m := &Message{Type: MsgInit}
	m.Add(Option{Type: OptType(9999), Data: []byte("x")})
	known := map[OptType]bool{OptClusterName: true}
	require.NoError(t, RejectUnknownMandatory(m, known))
}
