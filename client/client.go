// Package client implements the arbiter client's (qdevice) protocol
// state machine and its translation of cmap/votequorum events into
// outbound node-list messages, per spec.md §4.4.
package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/qdevice/cmap"
	qlog "github.com/luxfi/qdevice/log"
	"github.com/luxfi/qdevice/sendbuf"
	"github.com/luxfi/qdevice/timer"
	"github.com/luxfi/qdevice/votequorum"
	"github.com/luxfi/qdevice/wire"
)

// State is one position in the client-side session state machine.
type State int

const (
	StateWaitPreinitReply State = iota
	StateWaitStartTLSSent
	StateWaitInitReply
	StateWaitSetOptionReply
	StateSteady // WAIT_VOTEQUORUM_CMAP_EVENTS
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaitPreinitReply:
		return "WAIT_PREINIT_REPLY"
	case StateWaitStartTLSSent:
		return "WAIT_STARTTLS_SENT"
	case StateWaitInitReply:
		return "WAIT_INIT_REPLY"
	case StateWaitSetOptionReply:
		return "WAIT_SET_OPTION_REPLY"
	case StateSteady:
		return "WAIT_VOTEQUORUM_CMAP_EVENTS"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrUpgradeRequested signals the ioloop to perform a TLS handshake,
	// then call Client.TLSUpgraded once it completes.
	ErrUpgradeRequested = errors.New("client: starttls upgrade requested")
	// ErrServerRejected wraps a server-error reply; the session is dead.
	ErrServerRejected = errors.New("client: server rejected session")
)

// Config carries the per-connection parameters negotiated at init time.
type Config struct {
	ClusterName           string
	NodeID                uint32
	DecisionAlgorithm     string
	HeartbeatMillis       uint32
	UseTLS                bool
	CastVoteTimerInterval time.Duration
}

type pendingVote struct {
	subtype wire.NodeListSubtype
	nodes   wire.NodeList
	ring    *wire.RingID
	quorate *bool
}

// Client is the arbiter-client protocol state machine of spec.md §4.4:
// WAIT_PREINIT_REPLY -> WAIT_STARTTLS_SENT -> WAIT_INIT_REPLY ->
// WAIT_SET_OPTION_REPLY -> WAIT_VOTEQUORUM_CMAP_EVENTS. Exactly one
// goroutine (the ioloop's dispatch loop) ever calls into a Client.
type Client struct {
	cfg       Config
	state     State
	log       log.Logger
	tlsActive bool

	nextSeq   uint32
	SendQueue *sendbuf.List

	timers              *timer.List
	heartbeatHandle     timer.Handle
	pendingHeartbeats   int
	pendingRetryOrigSeq uint32

	// castVoteHandle is the one-shot timer, armed on every ACK/NACK
	// decision (reply or vote-info push), that actually installs the
	// vote with vote-quorum at now+CastVoteTimerInterval. Arming again
	// before it fires replaces whichever vote was still pending.
	castVoteHandle timer.Handle

	// waitingForVoteInfo is set once a reply carries WAIT-FOR-REPLY and
	// cleared when the server's vote-info push finally arrives; while
	// set, sendNodeList must not send another request for the same tie.
	waitingForVoteInfo bool

	pending map[uint32]pendingVote

	haveFingerprint bool
	lastFingerprint [32]byte

	// OnHeartbeatTimeout is invoked from the heartbeat timer callback
	// once two consecutive probes go unanswered; the ioloop is expected
	// to tear down the connection and reconnect after its own backoff.
	OnHeartbeatTimeout func()

	// VQ installs the decided vote with the local vote-quorum service,
	// once a node-list or ask-for-vote decision finalizes. Nil in tests
	// that only exercise the wire-level state machine.
	VQ votequorum.Adaptor
}

func (c *Client) installVote(vote wire.ResultVote) {
	if c.VQ == nil {
		return
	}
	switch vote {
	case wire.ResultACK:
		_ = c.VQ.CastVote(votequorum.VoteYes)
	case wire.ResultNACK:
		_ = c.VQ.CastVote(votequorum.VoteNo)
	}
}

// armCastVoteTimer schedules the one-shot cast-vote timer that installs
// vote once CastVoteTimerInterval elapses, per spec.md §4.4. Any timer
// still pending from an earlier decision is canceled first, so only the
// most recent decision is ever installed.
func (c *Client) armCastVoteTimer(vote wire.ResultVote) {
	if c.castVoteHandle != 0 {
		c.timers.Delete(c.castVoteHandle)
	}
	c.castVoteHandle = c.timers.Add(c.cfg.CastVoteTimerInterval, func() {
		c.castVoteHandle = 0
		c.installVote(vote)
	}, false)
}

// New constructs a Client in its initial WAIT_PREINIT_REPLY state.
func New(cfg Config, timers *timer.List, logger log.Logger) *Client {
	if logger == nil {
		logger = qlog.NewNoOpLogger()
	}
	if cfg.CastVoteTimerInterval <= 0 {
		cfg.CastVoteTimerInterval = time.Second
	}
	return &Client{
		cfg:       cfg,
		state:     StateWaitPreinitReply,
		log:       logger,
		timers:    timers,
		SendQueue: sendbuf.New(0, 0),
		pending:   make(map[uint32]pendingVote),
	}
}

func (c *Client) State() State { return c.state }

func (c *Client) queue(msg *wire.Message, requiresTLS bool) uint32 {
	c.nextSeq++
	msg.SeqNum = c.nextSeq
	b, err := wire.Encode(msg)
	if err != nil {
		c.log.Error("failed to encode outbound message", "error", err)
		return msg.SeqNum
	}
	if err := c.SendQueue.Append(b, msg.SeqNum, requiresTLS); err != nil {
		c.log.Error("send queue overflow, closing session", "error", err)
		c.state = StateClosed
	}
	return msg.SeqNum
}

// Start queues the initial preinit message.
func (c *Client) Start() {
	c.queue(wire.NewPreinit(c.cfg.ClusterName), false)
}

// Handle dispatches one decoded server message.
func (c *Client) Handle(msg *wire.Message) error {
	if msg.Type == wire.MsgServerError {
		code, text := msg.ServerError()
		c.state = StateClosed
		return fmt.Errorf("%w: %s: %s", ErrServerRejected, code, text)
	}

	switch c.state {
	case StateWaitPreinitReply:
		return c.handlePreinitReply(msg)
	case StateWaitInitReply:
		return c.handleInitReply(msg)
	case StateWaitSetOptionReply:
		return c.handleSetOptionReply(msg)
	case StateSteady:
		return c.handleSteady(msg)
	default:
		return fmt.Errorf("client: message received in state %s", c.state)
	}
}

func (c *Client) handlePreinitReply(msg *wire.Message) error {
	if msg.Type != wire.MsgPreinitReply {
		return fmt.Errorf("client: expected preinit-reply, got %s", msg.Type)
	}
	var serverTLS wire.TLSMode
	if o, ok := msg.Get(wire.OptTLSSupported); ok {
		serverTLS = wire.TLSMode(o.Uint8())
	}
	if c.cfg.UseTLS || serverTLS == wire.TLSRequired {
		c.queue(wire.NewStartTLS(), false)
		c.state = StateWaitStartTLSSent
		return ErrUpgradeRequested
	}
	c.sendInit()
	return nil
}

// TLSUpgraded is called by the ioloop once the in-band TLS handshake
// requested by handlePreinitReply has completed.
func (c *Client) TLSUpgraded() {
	c.tlsActive = true
	c.sendInit()
}

func (c *Client) sendInit() {
	c.queue(wire.NewInit(wire.InitParams{
		ProtocolVersion: 1,
		NodeID:          c.cfg.NodeID,
		DecisionAlgo:    c.cfg.DecisionAlgorithm,
		HeartbeatMillis: c.cfg.HeartbeatMillis,
		ClusterName:     c.cfg.ClusterName,
	}), c.tlsActive)
	c.state = StateWaitInitReply
}

func (c *Client) handleInitReply(msg *wire.Message) error {
	if msg.Type != wire.MsgInitReply {
		return fmt.Errorf("client: expected init-reply, got %s", msg.Type)
	}
	c.queue(wire.NewSetOption(c.cfg.HeartbeatMillis), c.tlsActive)
	c.state = StateWaitSetOptionReply
	return nil
}

func (c *Client) handleSetOptionReply(msg *wire.Message) error {
	if msg.Type != wire.MsgSetOptionReply {
		return fmt.Errorf("client: expected set-option-reply, got %s", msg.Type)
	}
	c.state = StateSteady
	c.startHeartbeat()
	return nil
}

func (c *Client) startHeartbeat() {
	interval := time.Duration(c.cfg.HeartbeatMillis) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c.heartbeatHandle = c.timers.Add(interval, c.onHeartbeatTick, true)
}

func (c *Client) onHeartbeatTick() {
	if c.pendingHeartbeats >= 2 {
		c.log.Warn("heartbeat timed out twice, reconnect required")
		c.timers.Delete(c.heartbeatHandle)
		c.state = StateClosed
		if c.OnHeartbeatTimeout != nil {
			c.OnHeartbeatTimeout()
		}
		return
	}
	c.pendingHeartbeats++
	c.queue(wire.NewEchoRequest(), c.tlsActive)
}

func (c *Client) handleSteady(msg *wire.Message) error {
	switch msg.Type {
	case wire.MsgEchoReply:
		c.pendingHeartbeats = 0
		return nil
	case wire.MsgNodeListReply:
		return c.handleNodeListReply(msg)
	case wire.MsgAskForVoteReply:
		return c.handleAskForVoteReply(msg)
	case wire.MsgVoteInfo:
		vote := msg.Vote()
		c.log.Info("vote-info pushed by server", "vote", vote.String())
		c.waitingForVoteInfo = false
		c.armCastVoteTimer(vote)
		c.queue(wire.NewVoteInfoReply(), c.tlsActive)
		return nil
	default:
		return fmt.Errorf("client: unexpected message %s in steady state", msg.Type)
	}
}

func (c *Client) handleNodeListReply(msg *wire.Message) error {
	vote := msg.Vote()
	pv, ok := c.pending[msg.SeqNum]
	switch {
	case vote == wire.ResultAskLater && ok:
		c.scheduleRetry(msg.SeqNum, pv)
		return nil
	case vote == wire.ResultWaitForReply:
		c.waitingForVoteInfo = true
		delete(c.pending, msg.SeqNum)
		c.log.Debug("node-list decision deferred, awaiting vote-info", "seq", msg.SeqNum)
		return nil
	}
	delete(c.pending, msg.SeqNum)
	c.log.Debug("node-list decision", "vote", vote.String())
	c.armCastVoteTimer(vote)
	return nil
}

func (c *Client) handleAskForVoteReply(msg *wire.Message) error {
	origSeq := c.pendingRetryOrigSeq
	vote := msg.Vote()
	pv, ok := c.pending[origSeq]
	switch {
	case vote == wire.ResultAskLater && ok:
		c.scheduleRetry(origSeq, pv)
		return nil
	case vote == wire.ResultWaitForReply:
		c.waitingForVoteInfo = true
		delete(c.pending, origSeq)
		c.log.Debug("ask-for-vote decision deferred, awaiting vote-info", "seq", origSeq)
		return nil
	}
	delete(c.pending, origSeq)
	c.log.Debug("ask-for-vote decision", "vote", vote.String())
	c.armCastVoteTimer(vote)
	return nil
}

func (c *Client) scheduleRetry(origSeq uint32, pv pendingVote) {
	c.timers.Add(c.cfg.CastVoteTimerInterval, func() {
		c.pendingRetryOrigSeq = origSeq
		c.queue(wire.NewAskForVote(origSeq), c.tlsActive)
	}, false)
}

func (c *Client) sendNodeList(subtype wire.NodeListSubtype, nodes wire.NodeList, ring *wire.RingID, quorate *bool) {
	if c.state != StateSteady || c.waitingForVoteInfo {
		return
	}
	msg := wire.NewNodeList(subtype, nodes, ring, quorate)
	seq := c.queue(msg, c.tlsActive)
	c.pending[seq] = pendingVote{subtype: subtype, nodes: nodes, ring: ring, quorate: quorate}
}

// OnConfigNodeList satisfies cmap.Listener. Snapshots arriving mid
// reload (ReloadInProgress) are ignored; the coalesced snapshot that
// ends the reload (cmap.MemAdaptor.EndReload) is what gets forwarded,
// and only when its fingerprint differs from the last one sent.
func (c *Client) OnConfigNodeList(snap cmap.Snapshot) {
	if snap.ReloadInProgress {
		return
	}
	nodes := make(wire.NodeList, 0, len(snap.Nodes))
	for _, e := range snap.Nodes {
		nodes = append(nodes, wire.NodeDescriptor{
			NodeID:       cmap.ResolveNodeID(e, snap.ClearNodeHighBit),
			DataCenterID: e.DataCenterID,
			State:        wire.NodeMember,
		})
	}
	fp := fingerprint(nodes)
	if c.haveFingerprint && fp == c.lastFingerprint {
		return
	}
	c.haveFingerprint = true
	c.lastFingerprint = fp
	c.sendNodeList(wire.NodeListConfig, nodes, nil, nil)
}

// OnNodelistNotify satisfies votequorum.Listener.
func (c *Client) OnNodelistNotify(n votequorum.NodelistNotify) {
	ring := n.RingID
	c.sendNodeList(wire.NodeListMembership, n.Members, &ring, nil)
}

// OnQuorumNotify satisfies votequorum.Listener.
func (c *Client) OnQuorumNotify(n votequorum.QuorumNotify) {
	quorate := n.Quorate
	c.sendNodeList(wire.NodeListQuorum, n.Members, nil, &quorate)
}
