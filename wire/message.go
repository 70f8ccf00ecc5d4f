// Package wire implements the tagged-length-value framing used by the
// qdevice arbiter protocol between qnetd and qdevice.
package wire

import "fmt"

// MsgType identifies the kind of a framed message.
type MsgType uint8

const (
	MsgPreinit MsgType = iota + 1
	MsgPreinitReply
	MsgStartTLS
	MsgInit
	MsgInitReply
	MsgSetOption
	MsgSetOptionReply
	MsgEchoRequest
	MsgEchoReply
	MsgNodeList
	MsgNodeListReply
	MsgAskForVote
	MsgAskForVoteReply
	MsgVoteInfo
	MsgVoteInfoReply
	MsgServerError
)

func (t MsgType) String() string {
	switch t {
	case MsgPreinit:
		return "preinit"
	case MsgPreinitReply:
		return "preinit-reply"
	case MsgStartTLS:
		return "starttls"
	case MsgInit:
		return "init"
	case MsgInitReply:
		return "init-reply"
	case MsgSetOption:
		return "set-option"
	case MsgSetOptionReply:
		return "set-option-reply"
	case MsgEchoRequest:
		return "echo-request"
	case MsgEchoReply:
		return "echo-reply"
	case MsgNodeList:
		return "node-list"
	case MsgNodeListReply:
		return "node-list-reply"
	case MsgAskForVote:
		return "ask-for-vote"
	case MsgAskForVoteReply:
		return "ask-for-vote-reply"
	case MsgVoteInfo:
		return "vote-info"
	case MsgVoteInfoReply:
		return "vote-info-reply"
	case MsgServerError:
		return "server-error"
	default:
		return fmt.Sprintf("msg-type(%d)", uint8(t))
	}
}

// NodeListSubtype distinguishes the three node-list event sources.
type NodeListSubtype uint8

const (
	NodeListConfig NodeListSubtype = iota + 1
	NodeListMembership
	NodeListQuorum
)

func (s NodeListSubtype) String() string {
	switch s {
	case NodeListConfig:
		return "config"
	case NodeListMembership:
		return "membership"
	case NodeListQuorum:
		return "quorum"
	default:
		return fmt.Sprintf("subtype(%d)", uint8(s))
	}
}

// ResultVote is the vote outcome a reply can carry.
type ResultVote uint8

const (
	ResultNone ResultVote = iota
	ResultACK
	ResultNACK
	ResultAskLater
	ResultWaitForReply
	ResultNoChange
)

func (r ResultVote) String() string {
	switch r {
	case ResultACK:
		return "ACK"
	case ResultNACK:
		return "NACK"
	case ResultAskLater:
		return "ASK-LATER"
	case ResultWaitForReply:
		return "WAIT-FOR-REPLY"
	case ResultNoChange:
		return "NO-CHANGE"
	default:
		return "NONE"
	}
}

// NodeState is the lifecycle state of a node descriptor.
type NodeState uint8

const (
	NodeNotSet NodeState = iota
	NodeMember
	NodeDead
	NodeLeaving
)

// Message is a decoded protocol frame: a type, a sender-assigned
// sequence number, and a bag of TLV options.
type Message struct {
	Type    MsgType
	SeqNum  uint32
	Options []Option
}

// Get returns the first option of the given type, if present.
func (m *Message) Get(t OptType) (Option, bool) {
	for _, o := range m.Options {
		if o.Type.Tag() == t.Tag() {
			return o, true
		}
	}
	return Option{}, false
}

// All returns every option of the given type, in encounter order.
func (m *Message) All(t OptType) []Option {
	var out []Option
	for _, o := range m.Options {
		if o.Type.Tag() == t.Tag() {
			out = append(out, o)
		}
	}
	return out
}

// Add appends an option to the message.
func (m *Message) Add(o Option) {
	m.Options = append(m.Options, o)
}
