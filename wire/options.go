package wire

import "encoding/binary"

// OptType is a 16-bit TLV option tag. The high bit marks the option
// mandatory: RejectUnknownMandatory reports an unrecognized mandatory
// option with ErrUnsupportedOption. The server and client state
// machines do not call it, so such options are skipped there like any
// other unknown option.
type OptType uint16

const mandatoryBit OptType = 0x8000

// Tag returns the option type stripped of the mandatory bit, so options
// can be looked up regardless of whether the sender flagged them.
func (t OptType) Tag() OptType { return t &^ mandatoryBit }

// Mandatory reports whether the mandatory bit is set.
func (t OptType) Mandatory() bool { return t&mandatoryBit != 0 }

// AsMandatory returns the tag with the mandatory bit set.
func (t OptType) AsMandatory() OptType { return t.Tag() | mandatoryBit }

// Recognized option tags. Values are stable across protocol versions;
// new options must pick unused tags rather than renumber these.
const (
	OptSeqNum OptType = iota + 1
	OptClusterName
	OptProtocolVersion
	OptSupportedMessages
	OptSupportedOptions
	OptNodeID
	OptDataCenterID
	OptDecisionAlgorithm
	OptHeartbeatInterval
	OptTLSSupported
	OptTLSClientCertRequired
	OptNodeListSubtype
	OptNodeDescriptor
	OptRingIDNodeID
	OptRingIDSeq
	OptQuorate
	OptResultVote
	OptRequestSeqRef
	OptErrorCode
	OptErrorMsg
	OptConfigVersion
)

// TLSMode is the tri-state TLS posture advertised during preinit/init.
type TLSMode uint8

const (
	TLSUnsupported TLSMode = iota
	TLSSupported
	TLSRequired
)

// Option is one decoded TLV entry: a tag and its raw payload.
type Option struct {
	Type OptType
	Data []byte
}

func optU8(t OptType, v uint8) Option  { return Option{Type: t, Data: []byte{v}} }
func optBytes(t OptType, v []byte) Option {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Option{Type: t, Data: cp}
}

func optU32(t OptType, v uint32) Option {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Option{Type: t, Data: b}
}

func optU64(t OptType, v uint64) Option {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return Option{Type: t, Data: b}
}

// OptString builds a string-valued option.
func OptString(t OptType, v string) Option { return optBytes(t, []byte(v)) }

// OptUint8 builds a single-byte option.
func OptUint8(t OptType, v uint8) Option { return optU8(t, v) }

// OptUint32 builds a big-endian 32-bit option.
func OptUint32(t OptType, v uint32) Option { return optU32(t, v) }

// OptUint64 builds a big-endian 64-bit option.
func OptUint64(t OptType, v uint64) Option { return optU64(t, v) }

// OptBool builds a one-byte boolean option ({0,1}).
func OptBool(t OptType, v bool) Option {
	if v {
		return optU8(t, 1)
	}
	return optU8(t, 0)
}

// String returns the option's payload as a string.
func (o Option) String() string { return string(o.Data) }

// Uint8 returns the option's payload as a single byte, or 0 if empty.
func (o Option) Uint8() uint8 {
	if len(o.Data) < 1 {
		return 0
	}
	return o.Data[0]
}

// Bool returns the option's payload interpreted as a one-byte boolean.
func (o Option) Bool() bool { return o.Uint8() != 0 }

// Uint32 returns the option's payload as a big-endian 32-bit integer.
func (o Option) Uint32() uint32 {
	if len(o.Data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(o.Data)
}

// Uint64 returns the option's payload as a big-endian 64-bit integer.
func (o Option) Uint64() uint64 {
	if len(o.Data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(o.Data)
}
