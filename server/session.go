// Package server implements the arbiter server's per-connection
// protocol state machine of spec.md §4.2: WAIT_PREINIT ->
// WAIT_STARTTLS_OR_INIT -> WAIT_INIT -> STEADY, dispatching steady-state
// client events to the cluster's decision Algorithm.
package server

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/qdevice/algorithm"
	"github.com/luxfi/qdevice/cluster"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/sendbuf"
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/wire"
)

// State is one position in the server-side session state machine.
type State int

const (
	StateWaitPreinit State = iota
	StateWaitStartTLSOrInit
	StateWaitInit
	StateSteady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaitPreinit:
		return "WAIT_PREINIT"
	case StateWaitStartTLSOrInit:
		return "WAIT_STARTTLS_OR_INIT"
	case StateWaitInit:
		return "WAIT_INIT"
	case StateSteady:
		return "STEADY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrProtocolViolation is returned by Handle alongside a server-error
// reply: the caller must send the reply and then close the connection.
var ErrProtocolViolation = errors.New("server: protocol violation")

// ErrUpgradeRequested is returned by Handle after a starttls message:
// the ioloop must complete a TLS handshake on the connection before
// resuming reads, and must not send a reply frame (starttls has none).
var ErrUpgradeRequested = errors.New("server: starttls upgrade requested")

// Session is the server-side state for one connected client. It is
// driven exclusively by the ioloop's single dispatch goroutine and
// holds no locks of its own, per SPEC_FULL.md §8's concurrency model.
type Session struct {
	ID         uint64
	RemoteAddr string
	TLSMode    wire.TLSMode

	registry *cluster.Registry
	log      log.Logger

	state           State
	clusterName     string
	algoName        string
	nodeID          uint32
	heartbeatMillis uint32

	cluster  *cluster.Cluster
	algoData any

	nextSeq   uint32
	SendQueue *sendbuf.List

	requireTLS bool
	tlsActive  bool
}

// NewSession constructs a Session in its initial WAIT_PREINIT state.
func NewSession(id uint64, remoteAddr string, registry *cluster.Registry, tlsMode wire.TLSMode, requireTLS bool, logger log.Logger) *Session {
	if logger == nil {
		logger = qlog.NewNoOpLogger()
	}
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		TLSMode:    tlsMode,
		registry:   registry,
		requireTLS: requireTLS,
		log:        logger,
		state:      StateWaitPreinit,
		SendQueue:  sendbuf.New(0, 0),
	}
}

func (s *Session) NodeID() uint32         { return s.nodeID }
func (s *Session) AlgorithmData() any     { return s.algoData }
func (s *Session) SetAlgorithmData(v any) { s.algoData = v }
func (s *Session) State() State           { return s.state }
func (s *Session) ClusterName() string    { return s.clusterName }

// queue encodes msg, stamping the next outgoing sequence number, and
// appends the frame to the session's send-buffer list.
func (s *Session) queue(msg *wire.Message, requiresTLS bool) error {
	s.nextSeq++
	msg.SeqNum = s.nextSeq
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return s.SendQueue.Append(b, msg.SeqNum, requiresTLS)
}

// SendVoteInfo satisfies cluster.Session: an out-of-band vote push
// outside the request/reply flow that produced an algorithm decision,
// used by FFSPLIT/2NODELMS tie resolution to notify the losing side.
func (s *Session) SendVoteInfo(vote wire.ResultVote) error {
	return s.queue(wire.NewVoteInfo(vote), s.tlsActive)
}

// Handle dispatches one decoded client message, returning the reply to
// queue (if any) and an error. ErrUpgradeRequested signals the ioloop
// to perform a TLS handshake; ErrProtocolViolation means the returned
// server-error reply must be sent and the connection then closed.
func (s *Session) Handle(msg *wire.Message) (*wire.Message, error) {
	var reply *wire.Message
	var err error
	switch s.state {
	case StateWaitPreinit:
		reply, err = s.handlePreinit(msg)
	case StateWaitStartTLSOrInit:
		reply, err = s.handleStartTLSOrInit(msg)
	case StateWaitInit:
		reply, err = s.handleWaitInit(msg)
	case StateSteady:
		reply, err = s.handleSteady(msg)
	default:
		return nil, fmt.Errorf("server: message received while closed")
	}
	// Every synchronous reply carries its request's sequence number as
	// the correlation id (spec.md §4.2); the client keys its pending
	// table on it to recognize ASK-LATER retries and final decisions.
	if reply != nil {
		reply.SeqNum = msg.SeqNum
	}
	return reply, err
}

func (s *Session) handlePreinit(msg *wire.Message) (*wire.Message, error) {
	if msg.Type != wire.MsgPreinit {
		return s.reject(wire.ErrUnexpectedMessage, "expected preinit")
	}
	if o, ok := msg.Get(wire.OptClusterName); ok {
		s.clusterName = o.String()
	}
	s.state = StateWaitStartTLSOrInit
	s.log.Info("preinit received", "cluster", s.clusterName, "remote_addr", s.RemoteAddr)
	return wire.NewPreinitReply(s.TLSMode), nil
}

func (s *Session) handleStartTLSOrInit(msg *wire.Message) (*wire.Message, error) {
	switch msg.Type {
	case wire.MsgStartTLS:
		s.state = StateWaitInit
		return nil, ErrUpgradeRequested
	case wire.MsgInit:
		return s.processInit(msg)
	default:
		return s.reject(wire.ErrUnexpectedMessage, "expected starttls or init")
	}
}

func (s *Session) handleWaitInit(msg *wire.Message) (*wire.Message, error) {
	if msg.Type != wire.MsgInit {
		return s.reject(wire.ErrUnexpectedMessage, "expected init after starttls")
	}
	s.tlsActive = true
	return s.processInit(msg)
}

func (s *Session) processInit(msg *wire.Message) (*wire.Message, error) {
	p := msg.Init()
	s.nodeID = p.NodeID
	s.heartbeatMillis = p.HeartbeatMillis

	if s.requireTLS && !s.tlsActive {
		return s.reject(wire.ErrTLSRequired, "TLS required before init")
	}

	c, err := s.registry.Join(s.clusterName, p.DecisionAlgo, s)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrUnknownAlgorithm):
			return s.reject(wire.ErrUnsupportedDecisionAlgorithm, err.Error())
		case errors.Is(err, cluster.ErrAlgorithmMismatch):
			return s.reject(wire.ErrAlgorithmDiffers, err.Error())
		case errors.Is(err, cluster.ErrDuplicateNodeID):
			return s.reject(wire.ErrDuplicateNodeID, err.Error())
		default:
			return s.reject(wire.ErrInternalError, err.Error())
		}
	}
	s.cluster = c
	s.algoName = p.DecisionAlgo
	s.state = StateSteady
	s.log.Info("session reached steady state", "cluster", s.clusterName, "node_id", s.nodeID, "algorithm", s.algoName)
	return wire.NewInitReplyOK(), nil
}

func (s *Session) handleSteady(msg *wire.Message) (*wire.Message, error) {
	if s.cluster == nil {
		return s.reject(wire.ErrInternalError, "steady state reached without a joined cluster")
	}
	algo := s.cluster.Algorithm()

	switch msg.Type {
	case wire.MsgSetOption:
		if o, ok := msg.Get(wire.OptHeartbeatInterval); ok {
			s.heartbeatMillis = o.Uint32()
		}
		return wire.NewSetOptionReply(), nil
	case wire.MsgEchoRequest:
		return wire.NewEchoReply(), nil
	case wire.MsgNodeList:
		return s.dispatchNodeList(algo, msg)
	case wire.MsgAskForVote:
		origSeq, _ := msg.RequestSeqRef()
		code, vote := algo.AskForVoteReceived(s.cluster, s, origSeq)
		if code != status.OK {
			return s.reject(wire.ErrInternalError, "algorithm rejected ask-for-vote")
		}
		return wire.NewAskForVoteReply(vote), nil
	case wire.MsgVoteInfoReply:
		algo.VoteInfoReplyReceived(s.cluster, s)
		return nil, nil
	default:
		return s.reject(wire.ErrUnexpectedMessage, "unexpected message in steady state")
	}
}

func (s *Session) dispatchNodeList(algo algorithm.Algorithm, msg *wire.Message) (*wire.Message, error) {
	subtype := msg.Subtype()
	nodes := wire.NodeListFromMessage(msg)

	var code status.Code
	var vote wire.ResultVote
	switch subtype {
	case wire.NodeListConfig:
		code, vote = algo.ConfigNodeListReceived(s.cluster, s, nodes)
	case wire.NodeListMembership:
		ring, _ := wire.RingIDFromMessage(msg)
		code, vote = algo.MembershipNodeListReceived(s.cluster, s, nodes, ring)
	case wire.NodeListQuorum:
		quorate, _ := msg.Quorate()
		code, vote = algo.QuorumNodeListReceived(s.cluster, s, nodes, quorate)
	default:
		return s.reject(wire.ErrMalformedMsg, "unrecognized node-list subtype")
	}
	if code != status.OK {
		return s.reject(wire.ErrInternalError, "algorithm rejected node-list")
	}
	return wire.NewNodeListReply(vote), nil
}

func (s *Session) reject(code wire.ErrorCode, msg string) (*wire.Message, error) {
	s.state = StateClosed
	s.log.Warn("rejecting session", "cluster", s.clusterName, "node_id", s.nodeID, "code", code.String(), "reason", msg)
	return wire.NewServerError(code, msg), fmt.Errorf("%w: %s (%s)", ErrProtocolViolation, msg, code)
}

// Close removes the session from its cluster, invoking the algorithm's
// ClientDisconnect hook, and marks the session terminal.
func (s *Session) Close(serverGoingDown bool) {
	if s.cluster != nil {
		s.registry.Leave(s.clusterName, s, serverGoingDown)
		s.cluster = nil
	}
	s.state = StateClosed
}
