package wire

// This file collects typed constructors for the well-known messages of
// spec.md §3/§4. Each builder returns a *Message with SeqNum left at
// zero; callers (client/server session code) stamp in the next
// sequence number before encoding, keeping the monotone-sequence
// invariant in one place rather than scattered across builders.

// NewPreinit builds a preinit(cluster_name) message.
func NewPreinit(cluster string) *Message {
	m := &Message{Type: MsgPreinit}
	m.Add(OptString(OptClusterName.AsMandatory(), cluster))
	return m
}

// NewPreinitReply builds a preinit-reply carrying the server's TLS posture.
func NewPreinitReply(tls TLSMode) *Message {
	m := &Message{Type: MsgPreinitReply}
	m.Add(OptUint8(OptTLSSupported, uint8(tls)))
	return m
}

// NewStartTLS builds the in-band STARTTLS upgrade request.
func NewStartTLS() *Message {
	return &Message{Type: MsgStartTLS}
}

// InitParams carries every field the init message negotiates.
type InitParams struct {
	ProtocolVersion  uint8
	NodeID           uint32
	DecisionAlgo     string
	HeartbeatMillis  uint32
	TLSSupported     TLSMode
	TLSClientCert    bool
	ClusterName      string
}

// NewInit builds an init message from InitParams.
func NewInit(p InitParams) *Message {
	m := &Message{Type: MsgInit}
	m.Add(OptUint8(OptProtocolVersion.AsMandatory(), p.ProtocolVersion))
	m.Add(OptUint32(OptNodeID.AsMandatory(), p.NodeID))
	m.Add(OptString(OptDecisionAlgorithm.AsMandatory(), p.DecisionAlgo))
	m.Add(OptUint32(OptHeartbeatInterval, p.HeartbeatMillis))
	m.Add(OptUint8(OptTLSSupported, uint8(p.TLSSupported)))
	m.Add(OptBool(OptTLSClientCertRequired, p.TLSClientCert))
	m.Add(OptString(OptClusterName.AsMandatory(), p.ClusterName))
	return m
}

// Init decodes InitParams back out of an init message.
func (m *Message) Init() InitParams {
	p := InitParams{}
	if o, ok := m.Get(OptProtocolVersion); ok {
		p.ProtocolVersion = o.Uint8()
	}
	if o, ok := m.Get(OptNodeID); ok {
		p.NodeID = o.Uint32()
	}
	if o, ok := m.Get(OptDecisionAlgorithm); ok {
		p.DecisionAlgo = o.String()
	}
	if o, ok := m.Get(OptHeartbeatInterval); ok {
		p.HeartbeatMillis = o.Uint32()
	}
	if o, ok := m.Get(OptTLSSupported); ok {
		p.TLSSupported = TLSMode(o.Uint8())
	}
	if o, ok := m.Get(OptTLSClientCertRequired); ok {
		p.TLSClientCert = o.Bool()
	}
	if o, ok := m.Get(OptClusterName); ok {
		p.ClusterName = o.String()
	}
	return p
}

// NewInitReplyOK builds a successful init-reply.
func NewInitReplyOK() *Message {
	return &Message{Type: MsgInitReply}
}

// NewSetOption builds a set-option(heartbeat) message.
func NewSetOption(heartbeatMillis uint32) *Message {
	m := &Message{Type: MsgSetOption}
	m.Add(OptUint32(OptHeartbeatInterval, heartbeatMillis))
	return m
}

// NewSetOptionReply acknowledges a set-option request.
func NewSetOptionReply() *Message { return &Message{Type: MsgSetOptionReply} }

// NewEchoRequest builds a heartbeat probe.
func NewEchoRequest() *Message { return &Message{Type: MsgEchoRequest} }

// NewEchoReply builds a heartbeat probe reply.
func NewEchoReply() *Message { return &Message{Type: MsgEchoReply} }

// NewNodeList builds a node-list event of the given subtype, optionally
// carrying a ring id (membership events) and a quorate flag (quorum
// events).
func NewNodeList(subtype NodeListSubtype, nodes NodeList, ring *RingID, quorate *bool) *Message {
	m := &Message{Type: MsgNodeList}
	m.Add(OptUint8(OptNodeListSubtype.AsMandatory(), uint8(subtype)))
	if ring != nil {
		m.Add(OptUint32(OptRingIDNodeID, ring.NodeID))
		m.Add(OptUint64(OptRingIDSeq, ring.Seq))
	}
	if quorate != nil {
		m.Add(OptBool(OptQuorate, *quorate))
	}
	m.Options = append(m.Options, optsFromNodeList(nodes)...)
	return m
}

// Subtype returns the node-list subtype carried by m.
func (m *Message) Subtype() NodeListSubtype {
	if o, ok := m.Get(OptNodeListSubtype); ok {
		return NodeListSubtype(o.Uint8())
	}
	return 0
}

// Quorate returns the quorate flag carried by m, if present.
func (m *Message) Quorate() (bool, bool) {
	o, ok := m.Get(OptQuorate)
	if !ok {
		return false, false
	}
	return o.Bool(), true
}

// NewNodeListReply builds a reply carrying the decided vote.
func NewNodeListReply(vote ResultVote) *Message {
	m := &Message{Type: MsgNodeListReply}
	m.Add(OptUint8(OptResultVote.AsMandatory(), uint8(vote)))
	return m
}

// Vote returns the ResultVote carried by a reply message.
func (m *Message) Vote() ResultVote {
	if o, ok := m.Get(OptResultVote); ok {
		return ResultVote(o.Uint8())
	}
	return ResultNone
}

// NewAskForVote builds a retry request referencing the original
// node-list request's sequence number.
func NewAskForVote(origSeq uint32) *Message {
	m := &Message{Type: MsgAskForVote}
	m.Add(OptUint32(OptRequestSeqRef.AsMandatory(), origSeq))
	return m
}

// RequestSeqRef returns the referenced sequence number, if present.
func (m *Message) RequestSeqRef() (uint32, bool) {
	o, ok := m.Get(OptRequestSeqRef)
	if !ok {
		return 0, false
	}
	return o.Uint32(), true
}

// NewAskForVoteReply builds the reply to an ask-for-vote retry.
func NewAskForVoteReply(vote ResultVote) *Message {
	m := &Message{Type: MsgAskForVoteReply}
	m.Add(OptUint8(OptResultVote.AsMandatory(), uint8(vote)))
	return m
}

// NewVoteInfo builds a server-forced vote push to a specific client.
func NewVoteInfo(vote ResultVote) *Message {
	m := &Message{Type: MsgVoteInfo}
	m.Add(OptUint8(OptResultVote.AsMandatory(), uint8(vote)))
	return m
}

// NewVoteInfoReply acknowledges a vote-info push.
func NewVoteInfoReply() *Message { return &Message{Type: MsgVoteInfoReply} }

// ErrorCode is the closed error-code enumeration of spec.md §6.
type ErrorCode uint16

const (
	ErrNoError ErrorCode = iota
	ErrInternalError
	ErrUnexpectedMessage
	ErrMalformedMsg
	ErrTLSRequired
	ErrUnsupportedNeededOption
	ErrUnsupportedMsg
	ErrDuplicateNodeID
	ErrTieBreakerDiffers
	ErrAlgorithmDiffers
	ErrUnsupportedDecisionAlgorithm
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNoError:
		return "NO_ERROR"
	case ErrInternalError:
		return "INTERNAL_ERROR"
	case ErrUnexpectedMessage:
		return "UNEXPECTED_MESSAGE"
	case ErrMalformedMsg:
		return "MALFORMED"
	case ErrTLSRequired:
		return "TLS_REQUIRED"
	case ErrUnsupportedNeededOption:
		return "UNSUPPORTED_NEEDED_OPTION"
	case ErrUnsupportedMsg:
		return "UNSUPPORTED_MSG"
	case ErrDuplicateNodeID:
		return "DUPLICATE_NODE_ID"
	case ErrTieBreakerDiffers:
		return "TIE_BREAKER_DIFFERS_FROM_OTHER_NODES"
	case ErrAlgorithmDiffers:
		return "ALGORITHM_DIFFERS_FROM_OTHER_NODES"
	case ErrUnsupportedDecisionAlgorithm:
		return "UNSUPPORTED_DECISION_ALGORITHM"
	default:
		return "UNKNOWN_ERROR"
	}
}

// NewServerError builds a server-error(code, msg) message.
func NewServerError(code ErrorCode, msg string) *Message {
	m := &Message{Type: MsgServerError}
	m.Add(OptUint32(OptErrorCode.AsMandatory(), uint32(code)))
	m.Add(OptString(OptErrorMsg, msg))
	return m
}

// ServerError decodes the code/message pair from a server-error frame.
func (m *Message) ServerError() (ErrorCode, string) {
	var code ErrorCode
	if o, ok := m.Get(OptErrorCode); ok {
		code = ErrorCode(o.Uint32())
	}
	msg := ""
	if o, ok := m.Get(OptErrorMsg); ok {
		msg = o.String()
	}
	return code, msg
}
